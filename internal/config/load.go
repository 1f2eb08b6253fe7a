package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SOLUTION_SERVER_PORT.
const EnvPrefix = "SOLUTION"

// ConfigName is the base name of the optional config file.
const ConfigName = "solution-server"

type loadOptions struct {
	configFile string
	flags      *pflag.FlagSet
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithConfigFile reads the given file instead of searching the default locations.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.configFile = path
	}
}

// WithFlags binds command-line flags so they take precedence over every
// other source. Flag names use dots or dashes matching config keys
// ("port" and "host" map onto the server section).
func WithFlags(flags *pflag.FlagSet) LoadOption {
	return func(o *loadOptions) {
		o.flags = flags
	}
}

// Load configuration from defaults, an optional config file, environment
// variables and flags, in increasing order of precedence.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(opts ...LoadOption) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	setDefaults(v)

	if options.configFile != "" {
		v.SetConfigFile(options.configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+ConfigName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if options.flags != nil {
		if err := bindFlags(v, options.flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("tasks.worker_count", 2)
	v.SetDefault("tasks.shutdown_timeout", 30*time.Second)
	v.SetDefault("tasks.drain_poll_interval", 50*time.Millisecond)

	v.SetDefault("solution.base_dir", defaultBaseDir())
	v.SetDefault("solution.catalogs", []string{})
	v.SetDefault("solution.recent_limit", 20)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", ConfigName)
	v.SetDefault("telemetry.insecure", false)
}

// flagKeys maps short CLI flag names onto config keys.
var flagKeys = map[string]string{
	"host":      "server.host",
	"port":      "server.port",
	"log-level": "server.log_level",
	"workers":   "tasks.worker_count",
	"base-dir":  "solution.base_dir",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), ConfigName)
	}
	return filepath.Join(home, "."+ConfigName)
}
