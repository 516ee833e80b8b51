package adapter

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"baserepo"
)

// AdapterName identifies an adapter in the registry.
type AdapterName string

// Adapter represents a SQL database adapter (PostgreSQL, MySQL, SQLite).
// It opens connections and describes the dialect the SQL compiler targets.
type Adapter interface {
	// Name returns the adapter's unique identifier.
	Name() AdapterName

	// DriverName returns the database/sql driver the adapter opens.
	DriverName() string

	// Connect establishes a connection to the database.
	Connect(ctx context.Context, config *baserepo.Config) (*sql.DB, error)

	// ConnectionString builds the connection string from config.
	ConnectionString(config *baserepo.Config) string

	// Dialect
	PlaceholderFormat() sq.PlaceholderFormat
	QuoteIdentifier(identifier string) string
	SupportsReturning() bool
	SupportsRowValues() bool
	DefaultTxOptions() *sql.TxOptions

	// Error classification
	IsUniqueConstraintViolation(err error) bool
	IsForeignKeyViolation(err error) bool
	IsConnectionError(err error) bool

	// Close releases any resources held by the adapter.
	Close() error
}

// Classify maps a driver error to an engine error kind using a.
func Classify(a Adapter, err error) baserepo.EngineErrorKind {
	switch {
	case err == nil:
		return ""
	case a.IsUniqueConstraintViolation(err):
		return baserepo.EngineErrorUnique
	case a.IsForeignKeyViolation(err):
		return baserepo.EngineErrorForeignKey
	case a.IsConnectionError(err):
		return baserepo.EngineErrorConnection
	}
	return baserepo.EngineErrorUnknown
}
