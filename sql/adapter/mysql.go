package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"baserepo"
)

// MySQL server error numbers used for error classification.
const (
	mysqlDuplicateEntry    = 1062
	mysqlRowIsReferenced   = 1451
	mysqlNoReferencedRow   = 1452
	mysqlServerGoneAway    = 2006
	mysqlServerLostConnect = 2013
)

// MySQLAdapter implements the Adapter interface for MySQL.
type MySQLAdapter struct {
	*BaseSQLAdapter
}

// NewMySQLAdapter creates a new MySQL adapter.
func NewMySQLAdapter() *MySQLAdapter {
	return &MySQLAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("mysql", "mysql"),
	}
}

// Connect establishes a connection to MySQL.
func (a *MySQLAdapter) Connect(ctx context.Context, config *baserepo.Config) (*sql.DB, error) {
	return a.Open(ctx, config, a.ConnectionString(config))
}

// ConnectionString constructs a MySQL DSN.
// Format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (a *MySQLAdapter) ConnectionString(config *baserepo.Config) string {
	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.DBName = config.Database
	cfg.ParseTime = true

	if config.Host != "" || config.Port > 0 {
		host := config.Host
		if host == "" {
			host = "localhost"
		}
		cfg.Net = "tcp"
		cfg.Addr = host
		if config.Port > 0 {
			cfg.Addr = fmt.Sprintf("%s:%d", host, config.Port)
		}
	}

	cfg.Params = map[string]string{}
	hasCharset := false
	for key, value := range config.Options {
		if strings.EqualFold(key, "charset") {
			hasCharset = true
		}
		cfg.Params[key] = value
	}
	if !hasCharset {
		cfg.Params["charset"] = "utf8mb4"
	}

	return cfg.FormatDSN()
}

// MySQL-specific overrides

func (a *MySQLAdapter) QuoteIdentifier(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// DefaultTxOptions returns MySQL-specific transaction options.
func (a *MySQLAdapter) DefaultTxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
}

func (a *MySQLAdapter) IsUniqueConstraintViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *MySQLAdapter) IsForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlRowIsReferenced || myErr.Number == mysqlNoReferencedRow
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}

func (a *MySQLAdapter) IsConnectionError(err error) bool {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlServerGoneAway || myErr.Number == mysqlServerLostConnect
	}
	return a.BaseSQLAdapter.IsConnectionError(err)
}
