package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"

	"baserepo"
)

// SQLiteAdapter implements the Adapter interface for SQLite using the cgo
// driver.
type SQLiteAdapter struct {
	*BaseSQLAdapter
}

// NewSQLiteAdapter creates a new SQLite adapter.
func NewSQLiteAdapter() *SQLiteAdapter {
	return &SQLiteAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("sqlite3", "sqlite"),
	}
}

// Connect establishes a connection to SQLite and enables foreign keys.
func (a *SQLiteAdapter) Connect(ctx context.Context, config *baserepo.Config) (*sql.DB, error) {
	return openSQLite(ctx, a.BaseSQLAdapter, config, a.ConnectionString(config))
}

func openSQLite(ctx context.Context, base *BaseSQLAdapter, config *baserepo.Config, dsn string) (*sql.DB, error) {
	cfg := *config
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	db, err := base.Open(ctx, &cfg, dsn)
	if err != nil {
		return nil, err
	}
	// Foreign keys are disabled by default in SQLite.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// ConnectionString constructs a SQLite connection string. An empty file path
// selects an in-memory database.
func (a *SQLiteAdapter) ConnectionString(config *baserepo.Config) string {
	return sqliteDSN(config)
}

func sqliteDSN(config *baserepo.Config) string {
	dbPath := config.FilePath
	if dbPath == "" {
		dbPath = ":memory:"
	} else if !filepath.IsAbs(dbPath) && !strings.HasPrefix(dbPath, ":") && !strings.HasPrefix(dbPath, "file:") {
		dbPath = filepath.Clean(dbPath)
	}

	keys := make([]string, 0, len(config.Options))
	for key := range config.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	params := make([]string, 0, len(keys))
	for _, key := range keys {
		params = append(params, fmt.Sprintf("%s=%s", key, config.Options[key]))
	}

	if len(params) > 0 {
		return fmt.Sprintf("%s?%s", dbPath, strings.Join(params, "&"))
	}
	return dbPath
}

// SQLite-specific overrides

// SupportsReturning reports RETURNING support, available since SQLite 3.35.
func (a *SQLiteAdapter) SupportsReturning() bool {
	return true
}

// DefaultTxOptions returns default transaction options for SQLite.
func (a *SQLiteAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

func (a *SQLiteAdapter) IsUniqueConstraintViolation(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *SQLiteAdapter) IsForeignKeyViolation(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}

func (a *SQLiteAdapter) IsConnectionError(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrBusy ||
			sqErr.Code == sqlite3.ErrLocked ||
			sqErr.Code == sqlite3.ErrCantOpen
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
