package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable prefix for host configuration.
const envPrefix = "SCRIPTENGINE"

// Loader handles loading and merging configuration from a file and the
// environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("engine", "SCRIPTENGINE_ENGINE")
	_ = v.BindEnv("assetRoot", "SCRIPTENGINE_ASSET_ROOT")
	_ = v.BindEnv("environment", "SCRIPTENGINE_ENVIRONMENT")
	_ = v.BindEnv("platform", "SCRIPTENGINE_PLATFORM")
	_ = v.BindEnv("debug", "SCRIPTENGINE_DEBUG")
	_ = v.BindEnv("isStoreBuild", "SCRIPTENGINE_IS_STORE_BUILD")
	_ = v.BindEnv("maxHeapMB", "SCRIPTENGINE_MAX_HEAP_MB")
	_ = v.BindEnv("gcPercent", "SCRIPTENGINE_GC_PERCENT")
	_ = v.BindEnv("log.verbose", "SCRIPTENGINE_LOG_VERBOSE")

	return &Loader{v: v}
}

// Load loads configuration from configFile. A missing file is not an error;
// defaults and environment variables are used instead. Environment variables
// take precedence over file values.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
		l.v.SetConfigType("yaml")

		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration and applies defaults.
func (l *Loader) LoadWithDefaults(configFile string) (*Config, error) {
	cfg, err := l.Load(configFile)
	if err != nil {
		return nil, err
	}
	return cfg.WithDefaults(), nil
}
