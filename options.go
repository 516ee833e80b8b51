package baserepo

import (
	"time"
)

// Option configures a database configuration.
type Option func(*Config)

// Database connection options

// WithConnection sets basic connection parameters for network-based backends.
func WithConnection(host string, port int, username, password, database string) Option {
	return func(c *Config) {
		c.Host = host
		c.Port = port
		c.Username = username
		c.Password = password
		c.Database = database
	}
}

// WithHost sets the connection host.
func WithHost(host string) Option {
	return func(c *Config) {
		c.Host = host
	}
}

// WithPort sets the connection port.
func WithPort(port int) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// WithCredentials sets username and password.
func WithCredentials(username, password string) Option {
	return func(c *Config) {
		c.Username = username
		c.Password = password
	}
}

// WithDatabase sets the database name.
func WithDatabase(database string) Option {
	return func(c *Config) {
		c.Database = database
	}
}

// WithFilePath sets the database file for SQLite.
func WithFilePath(path string) Option {
	return func(c *Config) {
		c.FilePath = path
	}
}

// WithPooling configures connection pooling settings.
func WithPooling(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(c *Config) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
		c.ConnMaxLifetime = maxLifetime
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(max int) Option {
	return func(c *Config) {
		c.MaxOpenConns = max
	}
}

// WithConnectTimeout sets the timeout of the initial ping.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ConnectTimeout = timeout
	}
}

// WithSSL configures the PostgreSQL sslmode.
func WithSSL(mode string) Option {
	return func(c *Config) {
		c.SSLMode = mode
	}
}

// WithSSLDisabled disables SSL (equivalent to WithSSL("disable")).
func WithSSLDisabled() Option {
	return WithSSL("disable")
}

// WithMetricsEnabled enables metrics collection.
func WithMetricsEnabled() Option {
	return func(c *Config) {
		c.EnableMetrics = true
	}
}

// WithOption sets a driver specific connection parameter.
func WithOption(key, value string) Option {
	return func(c *Config) {
		if c.Options == nil {
			c.Options = make(map[string]string)
		}
		c.Options[key] = value
	}
}

// Backend-specific convenience functions

// PostgreSQLOptions returns common PostgreSQL configuration options for the
// lib/pq adapter.
func PostgreSQLOptions(database, username, password string, opts ...Option) []Option {
	base := []Option{
		func(c *Config) { c.Type = "postgres" },
		func(c *Config) { c.Port = 5432 },
		WithDatabase(database),
		WithCredentials(username, password),
		WithSSLDisabled(),
	}
	return append(base, opts...)
}

// PgxOptions is PostgreSQLOptions for the pgx adapter.
func PgxOptions(database, username, password string, opts ...Option) []Option {
	base := PostgreSQLOptions(database, username, password)
	base = append(base, func(c *Config) { c.Type = "pgx" })
	return append(base, opts...)
}

// MySQLOptions returns common MySQL configuration options.
func MySQLOptions(database, username, password string, opts ...Option) []Option {
	base := []Option{
		func(c *Config) { c.Type = "mysql" },
		func(c *Config) { c.Port = 3306 },
		WithDatabase(database),
		WithCredentials(username, password),
	}
	return append(base, opts...)
}

// SQLiteOptions returns common SQLite configuration options. In-memory
// databases exist per connection, so the pool is limited to one.
func SQLiteOptions(filePath string, opts ...Option) []Option {
	base := []Option{
		func(c *Config) { c.Type = "sqlite" },
		WithFilePath(filePath),
		WithMaxOpenConns(1),
	}
	return append(base, opts...)
}

// PureSQLiteOptions is SQLiteOptions for the cgo-free driver.
func PureSQLiteOptions(filePath string, opts ...Option) []Option {
	base := SQLiteOptions(filePath)
	base = append(base, func(c *Config) { c.Type = "sqlite-pure" })
	return append(base, opts...)
}

// NewConfig creates a new configuration with the given options.
func NewConfig(opts ...Option) Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// Apply applies multiple options to an existing configuration.
func (c *Config) Apply(opts ...Option) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}
