package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"baserepo"
)

// PostgreSQL SQLSTATE codes used for error classification.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgConnectionClass     = "08"
)

// PostgreSQLAdapter implements the Adapter interface for PostgreSQL using
// lib/pq.
type PostgreSQLAdapter struct {
	*BaseSQLAdapter
}

// NewPostgreSQLAdapter creates a new PostgreSQL adapter.
func NewPostgreSQLAdapter() *PostgreSQLAdapter {
	return &PostgreSQLAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("postgres", "postgres"),
	}
}

// Connect establishes a connection to PostgreSQL.
func (a *PostgreSQLAdapter) Connect(ctx context.Context, config *baserepo.Config) (*sql.DB, error) {
	return a.Open(ctx, config, a.ConnectionString(config))
}

// ConnectionString constructs a PostgreSQL keyword/value connection string.
func (a *PostgreSQLAdapter) ConnectionString(config *baserepo.Config) string {
	return postgresDSN(config)
}

func postgresDSN(config *baserepo.Config) string {
	var parts []string

	if config.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", config.Host))
	}
	if config.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", config.Port))
	}
	if config.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", config.Database))
	}
	if config.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", config.Username))
	}
	if config.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", config.Password))
	}

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslMode))

	keys := make([]string, 0, len(config.Options))
	for key := range config.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, config.Options[key]))
	}

	return strings.Join(parts, " ")
}

// PostgreSQL-specific overrides

func (a *PostgreSQLAdapter) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Dollar
}

func (a *PostgreSQLAdapter) SupportsReturning() bool {
	return true
}

func (a *PostgreSQLAdapter) IsUniqueConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *PostgreSQLAdapter) IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgForeignKeyViolation
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}

func (a *PostgreSQLAdapter) IsConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == pgConnectionClass
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
