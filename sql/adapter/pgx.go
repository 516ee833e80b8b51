package adapter

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"baserepo"
)

// PgxAdapter implements the Adapter interface for PostgreSQL using the pgx
// database/sql driver.
type PgxAdapter struct {
	*BaseSQLAdapter
}

// NewPgxAdapter creates a new pgx adapter.
func NewPgxAdapter() *PgxAdapter {
	return &PgxAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("pgx", "pgx"),
	}
}

// Connect establishes a connection to PostgreSQL.
func (a *PgxAdapter) Connect(ctx context.Context, config *baserepo.Config) (*sql.DB, error) {
	return a.Open(ctx, config, a.ConnectionString(config))
}

// ConnectionString constructs a keyword/value connection string, which pgx
// accepts in the same format as lib/pq.
func (a *PgxAdapter) ConnectionString(config *baserepo.Config) string {
	return postgresDSN(config)
}

func (a *PgxAdapter) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Dollar
}

func (a *PgxAdapter) SupportsReturning() bool {
	return true
}

func (a *PgxAdapter) IsUniqueConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *PgxAdapter) IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}

func (a *PgxAdapter) IsConnectionError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgConnectionClass
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
