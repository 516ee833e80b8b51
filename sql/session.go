package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"baserepo"
	"baserepo/sql/adapter"
)

// DBTX is the part of *sql.DB and *sql.Tx a session executes on.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tracked struct {
	key      string
	entity   baserepo.Entity
	snapshot map[string]any
}

// Session is a unit of work over a connection or transaction. Reads and bulk
// statements run immediately; added entities are inserted and tracked
// entities are dirty checked on Flush.
//
// Tracked entities are kept in an identity map keyed by table and primary
// key, so a row is tracked once however often it is read. A session is meant
// to live for one unit of work, such as a request; long-lived sessions should
// call Reset between units.
//
// Session never commits. When it runs on a *sql.Tx the owner of the
// transaction decides its outcome.
type Session struct {
	id       string
	db       DBTX
	adapter  adapter.Adapter
	compiler *SQLCompiler
	logger   *slog.Logger

	mu      sync.Mutex
	pending []baserepo.Entity
	tracked map[string]*tracked
	order   []string
	keys    map[baserepo.Entity]string
}

var _ baserepo.Session = (*Session)(nil)

// NewSession creates a session executing on db with the dialect of a.
func NewSession(db DBTX, a adapter.Adapter, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		db:       db,
		adapter:  a,
		compiler: NewSQLCompiler(a),
		logger:   logger.With("session_id", id),
		tracked:  make(map[string]*tracked),
		keys:     make(map[baserepo.Entity]string),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Compiler returns the compiler for the session's dialect.
func (s *Session) Compiler() *SQLCompiler { return s.compiler }

func (s *Session) wrap(err error, op, table string) error {
	return baserepo.WrapEngineError(err, op, table, adapter.Classify(s.adapter, err))
}

// Query runs a finalized list query.
func (s *Session) Query(ctx context.Context, q *baserepo.QueryDescriptor) (baserepo.Rows, error) {
	compiled, err := s.compiler.Select(q)
	if err != nil {
		return nil, baserepo.NewQueryBuildError("Select", "%v", err)
	}
	s.logger.DebugContext(ctx, "query", "sql", compiled.SQL, "args", len(compiled.Args))
	rows, err := s.db.QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, s.wrap(err, "select", q.Table().Name)
	}
	return rows, nil
}

// QueryRaw runs an engine-native statement as given.
func (s *Session) QueryRaw(ctx context.Context, q baserepo.RawQuery) (baserepo.Rows, error) {
	s.logger.DebugContext(ctx, "raw query", "sql", q.SQL, "args", len(q.Args))
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, s.wrap(err, "raw_select", "")
	}
	return rows, nil
}

// Count returns the number of rows of t matching preds.
func (s *Session) Count(ctx context.Context, t *baserepo.Table, preds []baserepo.Predicate) (int64, error) {
	compiled, err := s.compiler.Count(t, preds)
	if err != nil {
		return 0, baserepo.NewQueryBuildError("Count", "%v", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, compiled.SQL, compiled.Args...).Scan(&n); err != nil {
		return 0, s.wrap(err, "count", t.Name)
	}
	return n, nil
}

// UpdateWhere sets values on every row of t matching preds and returns the
// number of affected rows.
func (s *Session) UpdateWhere(ctx context.Context, t *baserepo.Table, preds []baserepo.Predicate, values map[string]any) (int64, error) {
	compiled, err := s.compiler.Update(t, preds, values)
	if err != nil {
		return 0, baserepo.NewQueryBuildError("Update", "%v", err)
	}
	return s.exec(ctx, "update", t.Name, compiled)
}

// DeleteWhere deletes every row of t matching preds and returns the number of
// affected rows.
func (s *Session) DeleteWhere(ctx context.Context, t *baserepo.Table, preds []baserepo.Predicate) (int64, error) {
	compiled, err := s.compiler.Delete(t, preds)
	if err != nil {
		return 0, baserepo.NewQueryBuildError("Delete", "%v", err)
	}
	return s.exec(ctx, "delete", t.Name, compiled)
}

func (s *Session) exec(ctx context.Context, op, table string, compiled *CompiledSQL) (int64, error) {
	s.logger.DebugContext(ctx, op, "sql", compiled.SQL, "args", len(compiled.Args))
	res, err := s.db.ExecContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return 0, s.wrap(err, op, table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrap(err, op, table)
	}
	return n, nil
}

// Add stages entities for insertion on the next Flush.
func (s *Session) Add(entities ...baserepo.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if e != nil {
			s.pending = append(s.pending, e)
		}
	}
}

// Track records the current state of entities so that Flush can write their
// later changes. An entity already tracked keeps its first snapshot. An
// entity with the same table and primary key as a tracked one replaces it:
// the freshly loaded instance is the one flushed, and changes made to the
// replaced instance are no longer written.
func (s *Session) Track(entities ...baserepo.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.track(e)
	}
}

func (s *Session) track(e baserepo.Entity) {
	if e == nil {
		return
	}
	if _, ok := s.keys[e]; ok {
		return
	}
	snapshot := baserepo.Values(e)
	key := identity(e, snapshot)
	if prev, ok := s.tracked[key]; ok {
		delete(s.keys, prev.entity)
		prev.entity, prev.snapshot = e, snapshot
		s.keys[e] = key
		return
	}
	s.tracked[key] = &tracked{key: key, entity: e, snapshot: snapshot}
	s.order = append(s.order, key)
	s.keys[e] = key
}

func (s *Session) untrack(key string) {
	t, ok := s.tracked[key]
	if !ok {
		return
	}
	delete(s.tracked, key)
	delete(s.keys, t.entity)
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == key })
}

// identity keys an entity by table and primary key values. Entities without a
// primary key are keyed by address.
func identity(e baserepo.Entity, values map[string]any) string {
	table := e.Table()
	pks := table.PrimaryKey()
	if len(pks) == 0 {
		return fmt.Sprintf("%s@%p", table.Name, e)
	}
	var b strings.Builder
	b.WriteString(table.Name)
	for _, pk := range pks {
		fmt.Fprintf(&b, "|%T:%v", values[pk.Name], values[pk.Name])
	}
	return b.String()
}

// Expunge stops tracking entities and removes them from the pending inserts.
// Their changes are not flushed.
func (s *Session) Expunge(entities ...baserepo.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if key, ok := s.keys[e]; ok {
			s.untrack(key)
		}
		s.pending = slices.DeleteFunc(s.pending, func(p baserepo.Entity) bool { return p == e })
	}
}

// Reset discards pending inserts and forgets every tracked entity.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.tracked = make(map[string]*tracked)
	s.order = nil
	s.keys = make(map[baserepo.Entity]string)
}

// Pending returns the number of entities waiting for insertion.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Tracked returns the number of entities in the identity map.
func (s *Session) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

// Flush inserts pending entities, assigning generated keys, then updates every
// tracked entity whose column values changed since it was tracked. When an
// insert fails the entities still pending are discarded.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pending
	s.pending = nil
	for _, e := range pending {
		if err := s.insert(ctx, e); err != nil {
			return err
		}
		s.track(e)
	}

	for _, key := range slices.Clone(s.order) {
		t, ok := s.tracked[key]
		if !ok {
			continue
		}
		if err := s.flushTracked(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) insert(ctx context.Context, e baserepo.Entity) error {
	table := e.Table()
	values := baserepo.Values(e)

	var generated string
	for _, key := range table.AutoIncrementKeys() {
		if isZero(values[key]) {
			delete(values, key)
			generated = key
		}
	}

	compiled, err := s.compiler.Insert(table, values, generated)
	if err != nil {
		return baserepo.NewQueryBuildError("Insert", "%v", err)
	}
	s.logger.DebugContext(ctx, "insert", "sql", compiled.SQL, "args", len(compiled.Args))

	if generated != "" && s.adapter.SupportsReturning() {
		var id any
		if err := s.db.QueryRowContext(ctx, compiled.SQL, compiled.Args...).Scan(&id); err != nil {
			return s.wrap(err, "insert", table.Name)
		}
		return baserepo.Assign(e, generated, id)
	}

	res, err := s.db.ExecContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return s.wrap(err, "insert", table.Name)
	}
	if generated == "" {
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return s.wrap(err, "insert", table.Name)
	}
	return baserepo.Assign(e, generated, id)
}

func (s *Session) flushTracked(ctx context.Context, t *tracked) error {
	table := t.entity.Table()
	current := baserepo.Values(t.entity)

	changed := make(map[string]any)
	for name, v := range current {
		if !reflect.DeepEqual(v, t.snapshot[name]) {
			changed[name] = v
		}
	}
	if len(changed) == 0 {
		return nil
	}

	// The row is located by the key it was loaded with.
	key := make(map[string]any)
	for _, pk := range table.PrimaryKey() {
		key[pk.Name] = t.snapshot[pk.Name]
	}
	if len(key) == 0 {
		return baserepo.NewConfigurationError(table.Name, "cannot update an entity without a primary key")
	}

	compiled, err := s.compiler.UpdateByKey(table, key, changed)
	if err != nil {
		return baserepo.NewQueryBuildError("Update", "%v", err)
	}
	if _, err := s.exec(ctx, "update", table.Name, compiled); err != nil {
		return err
	}
	t.snapshot = current

	// A changed primary key moves the entry in the identity map.
	if key := identity(t.entity, current); key != t.key {
		s.untrack(key)
		delete(s.tracked, t.key)
		s.tracked[key] = t
		s.keys[t.entity] = key
		if i := slices.Index(s.order, t.key); i >= 0 {
			s.order[i] = key
		}
		t.key = key
	}
	return nil
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return rv.IsNil() || rv.Elem().IsZero()
	}
	return rv.IsZero()
}
