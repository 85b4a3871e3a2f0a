package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/techquest-tech/gin-resolver/pkg/autodi"
	"github.com/techquest-tech/gin-resolver/pkg/core"
	"github.com/techquest-tech/gin-resolver/pkg/ioc"
	"github.com/techquest-tech/gin-resolver/pkg/mvc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	KeyAddress = "address"
	KeyBaseUri = "baseUri"
)

// Controller adds routes to the base router group. Handlers normally come
// from mvc.Handle so they are resolved per request.
type Controller func(router *gin.RouterGroup)

var controllers []Controller

// RequestConfiguration, when set, registers request scoped services.
var RequestConfiguration func(*ioc.Builder)

func RegisterController(c ...Controller) {
	controllers = append(controllers, c...)
}

func NewEngine(logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, false))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(mvc.UnitOfWorkMiddleware())

	base := router.Group(viper.GetString(KeyBaseUri))
	for _, c := range controllers {
		c(base)
	}

	logger.Info("router engine inited.", zap.Int("controllers", len(controllers)))
	return router
}

// NewResolver builds the application container and installs the resolver as mvc.Current.
func NewResolver(logger *zap.Logger) (*autodi.Resolver, error) {
	container, err := core.BuildContainer()
	if err != nil {
		return nil, err
	}
	opts := []autodi.Option{autodi.WithLogger(logger)}
	if RequestConfiguration != nil {
		opts = append(opts, autodi.WithConfiguration(RequestConfiguration))
	}
	resolver, err := autodi.New(container, opts...)
	if err != nil {
		return nil, err
	}
	mvc.SetResolver(resolver)
	return resolver, nil
}

func Start(ctx context.Context) (err error) {
	logger, err := core.InitLogger()
	if err != nil {
		return err
	}
	core.PrintVersion()

	resolver, err := NewResolver(logger)
	if err != nil {
		logger.Error("init resolver failed.", zap.Error(err))
		return err
	}
	defer func() {
		mvc.ResetResolver()
		err = multierr.Append(err, resolver.ApplicationContainer().Close())
	}()

	if len(controllers) == 0 {
		return errors.New("no controller available")
	}

	viper.SetDefault(KeyAddress, ":5001")
	server := &http.Server{
		Addr:    viper.GetString(KeyAddress),
		Handler: NewEngine(logger),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("app is stopping")
		core.Bus.Publish(core.EventStopping)
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			logger.Warn("shutdown failed.", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("run app failed.", zap.Error(err))
		return err
	}
	logger.Info("stopped.")
	return nil
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the http server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Start(cmd.Context())
	},
}
