package core

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var AppName = "gin resolver"
var Version = "latest"

const (
	KeyResolver       = "resolver"
	DefaultScopeTag   = "request"
	KeyScopeTag       = "resolver.scopeTag"
	KeyLogResolutions = "resolver.logResolutions"
)

// EnvValues are KEY=VALUE pairs from the command line, applied before config is loaded.
var EnvValues []string

var configOnce sync.Once

// ResolverSettings is the `resolver` section of app.yaml.
type ResolverSettings struct {
	ScopeTag       string
	LogResolutions bool
}

func ToEmbedConfig(content []byte) error {
	configItem := viper.New()
	configItem.SetConfigType("yaml")
	err := configItem.ReadConfig(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("read embed config failed. %w", err)
	}
	err = viper.MergeConfigMap(configItem.AllSettings())
	if err != nil {
		return err
	}
	zap.L().Warn("process preconfig yaml done, might overwrite some settings.", zap.Any("keys", configItem.AllKeys()))
	return nil
}

// InitConfig loads app.yaml (or $APP_CONFIG) and the $ENV profile once per process.
func InitConfig() {
	configOnce.Do(func() {
		for _, item := range EnvValues {
			if k, v, ok := strings.Cut(item, "="); ok && k != "" {
				os.Setenv(k, v)
			}
		}

		viper.SetDefault(KeyScopeTag, DefaultScopeTag)
		viper.SetDefault(KeyLogResolutions, false)

		configName := os.Getenv("APP_CONFIG")
		if configName == "" {
			configName = "app"
		}
		viperApp := viper.New()
		viperApp.SetConfigName(configName)
		viperApp.SetConfigType("yaml")
		viperApp.AddConfigPath("config")
		viperApp.AddConfigPath("../config")
		viperApp.AddConfigPath("/etc/gin")
		viperApp.AddConfigPath("$HOME/.gin")
		viperApp.AddConfigPath(".")

		err := viperApp.ReadInConfig()
		if err != nil {
			log.Printf("WARN! read config failed. %+v", err)
		}
		viper.MergeConfigMap(viperApp.AllSettings())

		envfile := os.Getenv("ENV")
		if envfile != "" {
			profileConfig := viper.New()
			profileConfig.SetConfigName(envfile)
			profileConfig.SetConfigType("yaml")
			profileConfig.AddConfigPath("config")
			profileConfig.AddConfigPath("../config")
			err := profileConfig.ReadInConfig()
			if err != nil {
				err = fmt.Errorf("load env profile %s failed, %w", envfile, err)
				log.Println(err.Error())
				panic(err)
			}
			viper.MergeConfigMap(profileConfig.AllSettings())
			log.Printf("env profile %s loaded", envfile)
		}

		log.Print("load config done.")
	})
}

// LoadResolverSettings reads the resolver section, falling back to defaults.
func LoadResolverSettings() ResolverSettings {
	settings := ResolverSettings{
		ScopeTag:       viper.GetString(KeyScopeTag),
		LogResolutions: viper.GetBool(KeyLogResolutions),
	}
	if sub := viper.Sub(KeyResolver); sub != nil {
		if err := sub.Unmarshal(&settings); err != nil {
			zap.L().Warn("unmarshal resolver settings failed.", zap.Error(err))
		}
	}
	if settings.ScopeTag == "" {
		settings.ScopeTag = DefaultScopeTag
	}
	return settings
}

func PrintVersion() {
	zap.L().Info("Application info:", zap.String("appName", AppName),
		zap.String("verion", Version),
		zap.String("Go version", runtime.Version()),
	)
}
