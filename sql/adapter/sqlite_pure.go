package adapter

import (
	"context"
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"baserepo"
)

// PureSQLiteAdapter implements the Adapter interface for SQLite using the
// cgo-free modernc driver.
type PureSQLiteAdapter struct {
	*BaseSQLAdapter
}

// NewPureSQLiteAdapter creates a new cgo-free SQLite adapter.
func NewPureSQLiteAdapter() *PureSQLiteAdapter {
	return &PureSQLiteAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("sqlite", "sqlite-pure"),
	}
}

// Connect establishes a connection to SQLite and enables foreign keys.
func (a *PureSQLiteAdapter) Connect(ctx context.Context, config *baserepo.Config) (*sql.DB, error) {
	return openSQLite(ctx, a.BaseSQLAdapter, config, a.ConnectionString(config))
}

// ConnectionString constructs a SQLite connection string.
func (a *PureSQLiteAdapter) ConnectionString(config *baserepo.Config) string {
	return sqliteDSN(config)
}

func (a *PureSQLiteAdapter) SupportsReturning() bool {
	return true
}

func (a *PureSQLiteAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

func (a *PureSQLiteAdapter) IsUniqueConstraintViolation(err error) bool {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) && (sqErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
		sqErr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return true
	}
	// Without extended result codes only the message tells constraints apart.
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *PureSQLiteAdapter) IsForeignKeyViolation(err error) bool {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) && sqErr.Code() == sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}

func (a *PureSQLiteAdapter) IsConnectionError(err error) bool {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		code := sqErr.Code() & 0xff
		return code == sqlitelib.SQLITE_BUSY ||
			code == sqlitelib.SQLITE_LOCKED ||
			code == sqlitelib.SQLITE_CANTOPEN
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
