package core

import (
	"log"
	"os"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/techquest-tech/gin-resolver/pkg/ioc"
	"go.uber.org/zap"
)

// Builder collects the application registrations until BuildContainer is called.
var Builder = ioc.NewBuilder()

const (
	NO_INIT = "SCM_MUTED"
)

var (
	cc        = sync.Once{}
	buildOnce = sync.Once{}
	container *ioc.Container
	buildErr  error
)

func Ignored() bool {
	noinit := os.Getenv(NO_INIT)
	return noinit == "true"
}

// Provide registers constructors into the application builder.
func Provide(constructor ...any) {
	if Ignored() {
		cc.Do(func() {
			log.Println("Init is disabled.")
		})
		return
	}

	for _, item := range constructor {
		Builder.Register(item)
	}
}

func ProvideInstance(values ...any) {
	for _, item := range values {
		Builder.RegisterInstance(item)
	}
}

// BuildContainer builds the application container once. The logger and the
// event bus are always available to constructors.
func BuildContainer() (*ioc.Container, error) {
	buildOnce.Do(func() {
		logger := zap.L()
		Builder.RegisterInstance(logger)
		Builder.Register(func() EventBus.Bus { return Bus })
		container, buildErr = Builder.WithLogger(logger).Build()
		if buildErr == nil {
			logger.Info("application container built.")
		}
	})
	return container, buildErr
}

// GetContainer panics if the container cannot be built.
func GetContainer() *ioc.Container {
	c, err := BuildContainer()
	if err != nil {
		zap.L().Error("build container failed.", zap.Error(err))
		panic(err)
	}
	return c
}
