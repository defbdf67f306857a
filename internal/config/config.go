package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. PII_GUARD_GUARD_PROVIDER.
const EnvPrefix = "PII_GUARD"

// envKeys are bound explicitly so they can be overridden without a config file.
var envKeys = []string{
	"server.port",
	"privacy.enabled",
	"privacy.locale",
	"privacy.seed",
	"privacy.consistent_replacements",
	"privacy.merge_policy",
	"guard.provider",
	"guard.timeout",
	"cache.backend",
	"cache.redis_url",
	"cache.bolt_path",
	"audit.enabled",
	"audit.database_url",
	"logging.level",
	"logging.format",
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath == "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pii-guard/")
	v.AddConfigPath("$HOME/.pii-guard/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration. Locale and pattern validity are
// checked by the privacy package when the Protector is built.
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Privacy.MergePolicy != "precedence" && config.Privacy.MergePolicy != "positional" {
		return fmt.Errorf("invalid merge policy: %s (must be precedence or positional)", config.Privacy.MergePolicy)
	}

	switch config.Cache.Backend {
	case "memory", "redis", "bolt":
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis, or bolt)", config.Cache.Backend)
	}

	if config.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch worker count: %d", config.Batch.Workers)
	}

	if config.Guard.Timeout < 0 {
		return fmt.Errorf("invalid guard timeout: %s", config.Guard.Timeout)
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit is enabled but audit.database_url is empty")
	}

	return nil
}

// Watch starts watching the configuration file for changes. Invalid edits are
// reported through onError and the previous configuration stays in effect.
func Watch(configPath string, callback func(*Config), onError func(error)) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
