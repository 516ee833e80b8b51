package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"baserepo"
)

// BaseSQLAdapter provides common functionality for all SQL adapters.
type BaseSQLAdapter struct {
	db         *sql.DB
	driverName string
	name       AdapterName
}

// NewBaseSQLAdapter creates a new base SQL adapter.
func NewBaseSQLAdapter(driverName string, name AdapterName) *BaseSQLAdapter {
	return &BaseSQLAdapter{
		driverName: driverName,
		name:       name,
	}
}

// Name returns the adapter name.
func (a *BaseSQLAdapter) Name() AdapterName {
	return a.name
}

// DriverName returns the database/sql driver name.
func (a *BaseSQLAdapter) DriverName() string {
	return a.driverName
}

// Open opens and verifies a connection with the common pool configuration.
func (a *BaseSQLAdapter) Open(ctx context.Context, config *baserepo.Config, connectionString string) (*sql.DB, error) {
	db, err := sql.Open(a.driverName, connectionString)
	if err != nil {
		return nil, connectError(err, "open", a.name, config.Host)
	}

	a.configureConnectionPool(db, config)

	pingCtx := ctx
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, connectError(err, "ping", a.name, config.Host)
	}

	a.db = db
	return db, nil
}

func (a *BaseSQLAdapter) configureConnectionPool(db *sql.DB, config *baserepo.Config) {
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
}

func connectError(err error, op string, name AdapterName, host string) error {
	return &baserepo.EngineError{
		Op:   fmt.Sprintf("%s %s", op, name),
		Kind: baserepo.EngineErrorConnection,
		Err:  fmt.Errorf("host %q: %w", host, err),
	}
}

// Close closes the database connection.
func (a *BaseSQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// DB returns the underlying database connection.
func (a *BaseSQLAdapter) DB() *sql.DB {
	return a.db
}

// Common dialect defaults

func (a *BaseSQLAdapter) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

func (a *BaseSQLAdapter) QuoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (a *BaseSQLAdapter) SupportsReturning() bool {
	return false
}

func (a *BaseSQLAdapter) SupportsRowValues() bool {
	return true
}

// DefaultTxOptions returns default transaction options.
func (a *BaseSQLAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

// Common error checking methods - message patterns shared across drivers.
// Adapters check typed driver errors first and fall back to these.

func (a *BaseSQLAdapter) IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return containsAny(err.Error(),
		"connection refused",
		"connection reset",
		"connection closed",
		"network is unreachable",
		"driver: bad connection",
	)
}

func (a *BaseSQLAdapter) IsUniqueConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "unique constraint", "duplicate key", "duplicate entry")
}

func (a *BaseSQLAdapter) IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "foreign key constraint", "violates foreign key")
}

func containsAny(s string, patterns ...string) bool {
	s = strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
