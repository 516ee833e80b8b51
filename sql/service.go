package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"baserepo"
	"baserepo/sql/adapter"
)

// Service wraps a SQL adapter and its connection pool. It creates sessions
// and owns the transaction boundary helpers.
type Service struct {
	adapter adapter.Adapter
	db      *sql.DB
	config  *baserepo.Config
	logger  *slog.Logger
}

// NewService creates a new SQL service with the given adapter.
func NewService(adpt adapter.Adapter, config *baserepo.Config) *Service {
	return &Service{
		adapter: adpt,
		config:  config,
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger handed to new sessions.
func (s *Service) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Connect validates the configuration and establishes the database
// connection.
func (s *Service) Connect(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	db, err := s.adapter.Connect(ctx, s.config)
	if err != nil {
		return err
	}
	s.db = db
	s.logger.Info("database connected", "adapter", s.adapter.Name(), "host", s.config.Host, "database", s.config.Database)
	return nil
}

// DB returns the underlying database connection.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Adapter returns the underlying adapter.
func (s *Service) Adapter() adapter.Adapter {
	return s.adapter
}

// Close closes the database connection.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stats returns database connection statistics.
func (s *Service) Stats() sql.DBStats {
	if s.db != nil {
		return s.db.Stats()
	}
	return sql.DBStats{}
}

// NewSession creates a session executing on db, which may be the pool or a
// transaction.
func (s *Service) NewSession(db DBTX) *Session {
	return NewSession(db, s.adapter, s.logger)
}

// Session creates an autocommit session on the pool.
func (s *Service) Session() *Session {
	return s.NewSession(s.db)
}

// ExecuteSQL executes raw SQL (for migrations, table creation, etc.).
func (s *Service) ExecuteSQL(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return baserepo.WrapEngineError(err, "execute_sql", "", adapter.Classify(s.adapter, err))
	}
	return nil
}

// Open creates and connects a new SQL service using the specified adapter.
func Open(ctx context.Context, adpt adapter.Adapter, config *baserepo.Config) (*Service, error) {
	service := NewService(adpt, config)
	if err := service.Connect(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// OpenWithName creates and connects a new SQL service using the adapter
// registered under config.Type, after applying opts.
func OpenWithName(ctx context.Context, config *baserepo.Config, opts ...baserepo.Option) (*Service, error) {
	config.Apply(opts...)

	adpt, err := adapter.Get(adapter.AdapterName(config.Type))
	if err != nil {
		return nil, baserepo.NewConfigurationErrorForField("", "type", fmt.Sprintf("unknown database type %q", config.Type))
	}

	return Open(ctx, adpt, config)
}
