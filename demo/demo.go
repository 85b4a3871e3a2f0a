package main

import (
	_ "embed"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/techquest-tech/gin-resolver/cmd"
	"github.com/techquest-tech/gin-resolver/pkg/core"
	"github.com/techquest-tech/gin-resolver/pkg/ioc"
	"github.com/techquest-tech/gin-resolver/pkg/mvc"
	"go.uber.org/zap"
)

// Counter lives in the application container, one for the process.
type Counter struct {
	hits atomic.Int64
}

// RequestClock is created once per request.
type RequestClock struct {
	Started time.Time
}

func (c *RequestClock) Close() error {
	zap.L().Debug("request done", zap.Duration("took", time.Since(c.Started)))
	return nil
}

//go:embed app.yaml
var defaultConfig []byte

type DemoController struct {
	counter *Counter
	clock   *RequestClock
}

func NewDemoController(counter *Counter, clock *RequestClock) *DemoController {
	return &DemoController{counter: counter, clock: clock}
}

func (d *DemoController) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hello":   "world",
		"hits":    d.counter.hits.Add(1),
		"started": d.clock.Started,
	})
}

func main() {
	if err := core.ToEmbedConfig(defaultConfig); err != nil {
		zap.L().Error("load default config failed.", zap.Error(err))
		os.Exit(1)
	}

	counter := &Counter{}
	core.ProvideInstance(counter)
	core.OnServiceStopping(func() {
		zap.L().Info("demo stopping", zap.Int64("hits", counter.hits.Load()))
	})
	core.OnScopeEnd(func(e core.ScopeEvent) {
		zap.L().Debug("request scope ended", zap.String("scope", e.Scope), zap.Error(e.Err))
	})

	cmd.RequestConfiguration = func(b *ioc.Builder) {
		b.Register(func() *RequestClock { return &RequestClock{Started: time.Now()} })
		b.Register(NewDemoController)
	}

	cmd.RegisterController(func(router *gin.RouterGroup) {
		router.GET("/healthz", mvc.Handle((*DemoController).Hello))
	})

	root := &cobra.Command{Use: "demo"}
	cmd.ApplyEnvParams(root)
	root.AddCommand(cmd.ServeCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
