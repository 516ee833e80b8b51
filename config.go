package baserepo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes how to reach the relational engine behind a repository.
// It is consumed by the sql adapters; repositories themselves never read it.
type Config struct {
	// Adapter type: postgres, pgx, mysql, sqlite or sqlite-pure.
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	FilePath string `mapstructure:"file_path"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`

	// Driver specific connection parameters.
	Options map[string]string `mapstructure:"options"`

	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  30 * time.Second,
		Options:         make(map[string]string),
	}
}

// Validate checks the configuration for the selected adapter type.
func (c *Config) Validate() error {
	var errs []error
	switch c.Type {
	case "":
		errs = append(errs, errors.New("type is required"))
	case "sqlite", "sqlite3", "sqlite-pure":
		if c.FilePath == "" {
			errs = append(errs, errors.New("file_path is required for sqlite"))
		}
	case "postgres", "postgresql", "pgx", "mysql":
		if c.Database == "" {
			errs = append(errs, fmt.Errorf("database is required for %s", c.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported type %q", c.Type))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		errs = append(errs, errors.New("connection pool sizes must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return &ConfigurationError{Message: "invalid database config", Err: err}
	}
	return nil
}

var configKeys = []string{
	"type", "host", "port", "username", "password", "database", "file_path", "ssl_mode",
	"max_open_conns", "max_idle_conns", "conn_max_lifetime", "conn_max_idle_time",
	"connect_timeout", "enable_metrics",
}

// LoadConfig reads a Config from an optional file and from environment
// variables named PREFIX_KEY (for example REPO_MAX_OPEN_CONNS). Environment
// variables override the file, which overrides DefaultConfig.
func LoadConfig(prefix, file string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, fmt.Errorf("failed to read config file %s: %w", file, err)
			}
		}
	}

	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
