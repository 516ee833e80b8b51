package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"baserepo"
	"baserepo/sql/adapter"
)

type sessionContextKey struct{}

// SessionFromContext extracts the session stored by WithTx or WithSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// WithTx runs fn inside a transaction whose session is stored in the context
// passed to fn. Pending entities are flushed before commit; any error rolls
// the transaction back. A session already in ctx is reused.
func (s *Service) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return s.withTx(ctx, s.adapter.DefaultTxOptions(), "begin", fn)
}

// WithReadTx is WithTx with a read-only transaction.
func (s *Service) WithReadTx(ctx context.Context, fn func(context.Context) error) error {
	opts := s.adapter.DefaultTxOptions()
	if opts == nil {
		opts = &sql.TxOptions{}
	}
	ro := *opts
	ro.ReadOnly = true
	return s.withTx(ctx, &ro, "begin_read", fn)
}

func (s *Service) withTx(ctx context.Context, opts *sql.TxOptions, op string, fn func(context.Context) error) error {
	// Reuse existing transaction if present
	if _, ok := SessionFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return baserepo.WrapEngineError(err, op, "", adapter.Classify(s.adapter, err))
	}
	session := s.NewSession(tx)
	txCtx := WithSession(ctx, session)

	if err := fn(txCtx); err != nil {
		return rollback(tx, err)
	}
	if err := session.Flush(txCtx); err != nil {
		return rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return baserepo.WrapEngineError(err, "commit", "", adapter.Classify(s.adapter, err))
	}
	return nil
}

func rollback(tx *sql.Tx, cause error) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Join(cause, err)
	}
	return cause
}

// ContextProvider is a SessionProvider reading the session stored in the
// context by WithTx. Without one it returns an autocommit session on the pool
// when AllowAutocommit is set, and an error otherwise.
type ContextProvider struct {
	Service         *Service
	AllowAutocommit bool
}

var _ baserepo.SessionProvider = ContextProvider{}

func (p ContextProvider) Session(ctx context.Context) (baserepo.Session, error) {
	if s, ok := SessionFromContext(ctx); ok {
		return s, nil
	}
	if p.AllowAutocommit && p.Service != nil && p.Service.DB() != nil {
		return p.Service.Session(), nil
	}
	return nil, &baserepo.ConfigurationError{Message: "no transaction in context", Err: baserepo.ErrNoSession}
}
