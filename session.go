package baserepo

import (
	"context"
)

// Rows is a result set. *sql.Rows satisfies it.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Session is a unit of work against the relational engine. Repositories run
// every operation through a session but never begin, commit or roll back the
// transaction behind it.
//
// Reads and bulk statements execute immediately. Add stages entities for
// insertion and Track records the loaded state of entities; Flush emits the
// pending inserts and an UPDATE for every tracked entity whose fields changed.
// Tracking is keyed by table and primary key, so a row read again replaces
// the instance tracked before it.
//
// A session is scoped to one unit of work, typically a request. Bind a
// long-lived session only when that scope is the whole program.
//
// A session is not safe for concurrent in-flight statements; callers sharing
// one must serialize their use of it.
type Session interface {
	Query(ctx context.Context, q *QueryDescriptor) (Rows, error)
	QueryRaw(ctx context.Context, q RawQuery) (Rows, error)
	Count(ctx context.Context, t *Table, preds []Predicate) (int64, error)
	UpdateWhere(ctx context.Context, t *Table, preds []Predicate, values map[string]any) (int64, error)
	DeleteWhere(ctx context.Context, t *Table, preds []Predicate) (int64, error)

	Add(entities ...Entity)
	Track(entities ...Entity)
	Flush(ctx context.Context) error
}

// SessionProvider returns the session for the current call. It is consulted
// on every repository operation that has no explicit session.
type SessionProvider interface {
	Session(ctx context.Context) (Session, error)
}

// SessionProviderFunc adapts a function to SessionProvider.
type SessionProviderFunc func(ctx context.Context) (Session, error)

func (f SessionProviderFunc) Session(ctx context.Context) (Session, error) { return f(ctx) }

// sessionIDer is implemented by sessions that carry an identifier for logs.
type sessionIDer interface {
	ID() string
}

// CallOption adjusts a single repository call.
type CallOption func(*callConfig)

type callConfig struct {
	session Session
}

// UseSession runs the call on s. An explicit session always wins over the
// provider and the bound session.
func UseSession(s Session) CallOption {
	return func(c *callConfig) {
		c.session = s
	}
}

func applyCallOptions(opts []CallOption) callConfig {
	var c callConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}
