package adapter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baserepo"
)

func TestPostgresConnectionString(t *testing.T) {
	cfg := baserepo.NewConfig(baserepo.PostgreSQLOptions("app", "svc", "secret",
		baserepo.WithHost("db.internal"),
		baserepo.WithOption("connect_timeout", "5"),
		baserepo.WithOption("application_name", "repoctl"),
	)...)

	want := "host=db.internal port=5432 dbname=app user=svc password=secret sslmode=disable application_name=repoctl connect_timeout=5"
	assert.Equal(t, want, NewPostgreSQLAdapter().ConnectionString(&cfg))
	assert.Equal(t, want, NewPgxAdapter().ConnectionString(&cfg))

	cfg.SSLMode = "require"
	assert.Contains(t, NewPostgreSQLAdapter().ConnectionString(&cfg), "sslmode=require")
}

func TestMySQLConnectionString(t *testing.T) {
	cfg := baserepo.NewConfig(baserepo.MySQLOptions("app", "svc", "secret", baserepo.WithHost("db.internal"))...)
	dsn := NewMySQLAdapter().ConnectionString(&cfg)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "svc", parsed.User)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.internal:3306", parsed.Addr)
	assert.Equal(t, "app", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Contains(t, dsn, "charset=utf8mb4")

	cfg.Options["charset"] = "latin1"
	dsn = NewMySQLAdapter().ConnectionString(&cfg)
	assert.Contains(t, dsn, "charset=latin1")
	assert.NotContains(t, dsn, "utf8mb4")
}

func TestSQLiteConnectionString(t *testing.T) {
	tests := []struct {
		path    string
		options map[string]string
		want    string
	}{
		{path: "", want: ":memory:"},
		{path: ":memory:", want: ":memory:"},
		{path: "data/../app.db", want: "app.db"},
		{path: "/var/lib/app.db", options: map[string]string{"cache": "shared", "_busy_timeout": "5000"}, want: "/var/lib/app.db?_busy_timeout=5000&cache=shared"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := &baserepo.Config{FilePath: tt.path, Options: tt.options}
			assert.Equal(t, tt.want, NewSQLiteAdapter().ConnectionString(cfg))
			assert.Equal(t, tt.want, NewPureSQLiteAdapter().ConnectionString(cfg))
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, NewPostgreSQLAdapter().QuoteIdentifier("users"))
	assert.Equal(t, `"a""b"`, NewSQLiteAdapter().QuoteIdentifier(`a"b`))
	assert.Equal(t, "`users`", NewMySQLAdapter().QuoteIdentifier("users"))
	assert.Equal(t, "`a``b`", NewMySQLAdapter().QuoteIdentifier("a`b"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		adapter Adapter
		err     error
		want    baserepo.EngineErrorKind
	}{
		{name: "nil", adapter: NewSQLiteAdapter(), err: nil, want: ""},
		{name: "pq unique", adapter: NewPostgreSQLAdapter(), err: &pq.Error{Code: "23505"}, want: baserepo.EngineErrorUnique},
		{name: "pq foreign key", adapter: NewPostgreSQLAdapter(), err: &pq.Error{Code: "23503"}, want: baserepo.EngineErrorForeignKey},
		{name: "pq connection", adapter: NewPostgreSQLAdapter(), err: &pq.Error{Code: "08006"}, want: baserepo.EngineErrorConnection},
		{name: "pgx unique", adapter: NewPgxAdapter(), err: &pgconn.PgError{Code: "23505"}, want: baserepo.EngineErrorUnique},
		{name: "pgx foreign key wrapped", adapter: NewPgxAdapter(), err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"}), want: baserepo.EngineErrorForeignKey},
		{name: "mysql duplicate", adapter: NewMySQLAdapter(), err: &mysql.MySQLError{Number: 1062}, want: baserepo.EngineErrorUnique},
		{name: "mysql referenced", adapter: NewMySQLAdapter(), err: &mysql.MySQLError{Number: 1451}, want: baserepo.EngineErrorForeignKey},
		{name: "mysql invalid conn", adapter: NewMySQLAdapter(), err: mysql.ErrInvalidConn, want: baserepo.EngineErrorConnection},
		{name: "sqlite unique", adapter: NewSQLiteAdapter(), err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, want: baserepo.EngineErrorUnique},
		{name: "sqlite busy", adapter: NewSQLiteAdapter(), err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: baserepo.EngineErrorConnection},
		{name: "message fallback", adapter: NewPureSQLiteAdapter(), err: errors.New("UNIQUE constraint failed: users.email"), want: baserepo.EngineErrorUnique},
		{name: "refused", adapter: NewPostgreSQLAdapter(), err: errors.New("dial tcp: connection refused"), want: baserepo.EngineErrorConnection},
		{name: "unknown", adapter: NewMySQLAdapter(), err: errors.New("syntax error"), want: baserepo.EngineErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.adapter, tt.err))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []AdapterName{"mysql", "pgx", "postgres", "postgresql", "sqlite", "sqlite-pure", "sqlite3"}, r.List())

	a, err := r.Get("postgresql")
	require.NoError(t, err)
	assert.Equal(t, AdapterName("postgres"), a.Name())
	assert.Equal(t, "postgres", a.DriverName())

	a, err = r.Get("sqlite-pure")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", a.DriverName())

	_, err = r.Get("oracle")
	assert.Error(t, err)

	r.Register("custom", func() Adapter { return NewSQLiteAdapter() })
	assert.True(t, r.Exists("custom"))
	assert.False(t, Exists("custom"))
}

func TestDialectFlags(t *testing.T) {
	for _, a := range []Adapter{NewPostgreSQLAdapter(), NewPgxAdapter(), NewSQLiteAdapter(), NewPureSQLiteAdapter()} {
		assert.True(t, a.SupportsReturning(), a.Name())
	}
	assert.False(t, NewMySQLAdapter().SupportsReturning())
	assert.True(t, NewMySQLAdapter().SupportsRowValues())
}
