package core

import (
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InitLogger builds the zap logger from the `log` section and installs it as zap.L().
func InitLogger() (*zap.Logger, error) {

	InitConfig()

	settings := viper.Sub("log")

	if settings == nil {
		settings = viper.New()
	}

	settings.SetDefault("level", "info")
	settings.SetDefault("format", "console")

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(settings.GetString("level"))); err != nil {
		return nil, err
	}

	config := zap.NewDevelopmentConfig()
	if settings.GetString("format") == "json" {
		config = zap.NewProductionConfig()
	}

	config.OutputPaths = []string{"stdout"}
	config.Level = level

	if !settings.GetBool("trace") {
		config.DisableStacktrace = true
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
