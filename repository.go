package baserepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
)

// Repository provides uniform data access for one entity type.
//
// E is the entity struct, P its pointer type implementing Entity, and R the
// read model returned by the non-Entity methods. Repositories built with
// NewEntityRepository use P as the read model.
//
// A Repository holds no per-call state and may be shared between goroutines;
// the sessions it runs on may not.
type Repository[E any, P EntityPtr[E], R any] struct {
	table  *Table
	name   string
	conv   *converter[E, P, R]
	env    Env
	bound  Session
	logger *slog.Logger
}

// New creates a repository returning read models of type R. Without a mapper,
// every field of R must name a column of the entity table.
func New[E any, P EntityPtr[E], R any](opts ...RepositoryOption) (*Repository[E, P, R], error) {
	var cfg repositoryConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	table := P(new(E)).Table()
	if table == nil {
		return nil, NewConfigurationError(reflect.TypeOf((*E)(nil)).Elem().Name(), "entity has no table")
	}
	name := cfg.name
	if name == "" {
		name = table.Name
	}

	var mapper Mapper[P, R]
	if cfg.mapper != nil {
		m, ok := cfg.mapper.(Mapper[P, R])
		if !ok {
			return nil, NewConfigurationError(name, fmt.Sprintf("mapper %T does not implement Mapper[%s, %s]",
				cfg.mapper, reflect.TypeOf((*P)(nil)).Elem(), reflect.TypeOf((*R)(nil)).Elem()))
		}
		mapper = m
	}
	conv, err := newConverter[E, P, R](table, mapper)
	if err != nil {
		return nil, err
	}

	logger := cfg.env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("entity", name)

	if cfg.bound != nil && cfg.env.Provider != nil {
		if cfg.env.StrictSessionBinding {
			return nil, NewConfigurationError(name, "a session is bound to the repository while a session provider is configured")
		}
		logger.Warn("session bound to repository is ignored because a session provider is configured")
	}

	return &Repository[E, P, R]{
		table:  table,
		name:   name,
		conv:   conv,
		env:    cfg.env,
		bound:  cfg.bound,
		logger: logger,
	}, nil
}

// NewEntityRepository creates a repository that returns entities only.
func NewEntityRepository[E any, P EntityPtr[E]](opts ...RepositoryOption) (*Repository[E, P, P], error) {
	identity := MapperFuncs[P, P]{
		ToReadModelFunc: func(e P) (P, error) { return e, nil },
		ToEntityFunc:    func(e P) (P, error) { return e, nil },
	}
	return New[E, P, P](append(opts, WithMapper(identity))...)
}

// Table returns the entity table.
func (r *Repository[E, P, R]) Table() *Table { return r.table }

// EntityName returns the entity name used in logs and errors.
func (r *Repository[E, P, R]) EntityName() string { return r.name }

// session resolves the session for one call: explicit, then provider, then
// bound.
func (r *Repository[E, P, R]) session(ctx context.Context, cc callConfig) (Session, error) {
	if cc.session != nil {
		return cc.session, nil
	}
	if r.env.Provider != nil {
		s, err := r.env.Provider.Session(ctx)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, &ConfigurationError{Entity: r.name, Message: "session provider returned no session", Err: ErrNoSession}
		}
		return s, nil
	}
	if r.bound != nil {
		return r.bound, nil
	}
	return nil, &ConfigurationError{Entity: r.name, Message: "no session available", Err: ErrNoSession}
}

// begin starts an operation: it resolves the session and opens the span.
func (r *Repository[E, P, R]) begin(ctx context.Context, op string, opts []CallOption) (context.Context, Session, *slog.Logger, func(error), error) {
	ctx, done := instrument(ctx, r.env.Tracer, r.env.Metrics, r.name, op)
	s, err := r.session(ctx, applyCallOptions(opts))
	if err != nil {
		err = r.fail(op, err)
		done(err)
		return ctx, nil, nil, nil, err
	}
	logger := r.logger.With("op", op)
	if ider, ok := s.(sessionIDer); ok {
		logger = logger.With("session_id", ider.ID())
	}
	return ctx, s, logger, done, nil
}

func (r *Repository[E, P, R]) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return WrapRepositoryError(err, r.name, op)
}

// Get returns the first row matching f in primary key order, converted to the
// read model. found is false when nothing matches.
func (r *Repository[E, P, R]) Get(ctx context.Context, f Filter, opts ...CallOption) (R, bool, error) {
	return r.get(ctx, "get", f, opts, false)
}

// GetEntity is Get without read model conversion.
func (r *Repository[E, P, R]) GetEntity(ctx context.Context, f Filter, opts ...CallOption) (P, bool, error) {
	return r.getEntity(ctx, "get_entity", f, opts, false)
}

// GetOrFail is Get returning a *NotFoundError when nothing matches.
func (r *Repository[E, P, R]) GetOrFail(ctx context.Context, f Filter, opts ...CallOption) (R, error) {
	m, _, err := r.get(ctx, "get_or_fail", f, opts, true)
	return m, err
}

// GetEntityOrFail is GetEntity returning a *NotFoundError when nothing matches.
func (r *Repository[E, P, R]) GetEntityOrFail(ctx context.Context, f Filter, opts ...CallOption) (P, error) {
	e, _, err := r.getEntity(ctx, "get_entity_or_fail", f, opts, true)
	return e, err
}

func (r *Repository[E, P, R]) get(ctx context.Context, op string, f Filter, opts []CallOption, orFail bool) (R, bool, error) {
	var zero R
	e, found, err := r.getEntity(ctx, op, f, opts, orFail)
	if err != nil || !found {
		return zero, found, err
	}
	m, err := r.conv.ToReadModel(e)
	if err != nil {
		return zero, false, r.fail(op, err)
	}
	return m, true, nil
}

// getEntity loads the first match. With orFail a miss is reported as a
// *NotFoundError, and recorded as such by the operation metrics.
func (r *Repository[E, P, R]) getEntity(ctx context.Context, op string, f Filter, opts []CallOption, orFail bool) (_ P, _ bool, err error) {
	desc, err := NewListQuery(r.table, f).Paging(1, 1).Build()
	if err != nil {
		return nil, false, r.fail(op, err)
	}
	ctx, s, logger, done, err := r.begin(ctx, op, opts)
	if err != nil {
		return nil, false, err
	}
	defer func() { done(err) }()

	rows, err := s.Query(ctx, desc)
	if err != nil {
		return nil, false, r.fail(op, err)
	}
	entities, err := r.scan(rows)
	if err != nil {
		return nil, false, r.fail(op, err)
	}
	logger.DebugContext(ctx, "get", "found", len(entities) > 0)
	if len(entities) == 0 {
		if orFail {
			return nil, false, NewNotFoundError(r.name, f)
		}
		return nil, false, nil
	}
	s.Track(entities[0])
	return entities[0], true, nil
}

// List starts a list query over the entity table. Pass the result to Execute
// or ExecuteEntities.
func (r *Repository[E, P, R]) List(f Filter) *ListQuery {
	return NewListQuery(r.table, f)
}

// Execute runs a read statement and converts the rows to read models. The
// result is never nil.
func (r *Repository[E, P, R]) Execute(ctx context.Context, stmt Statement, opts ...CallOption) ([]R, error) {
	entities, err := r.execute(ctx, "execute", stmt, opts)
	if err != nil {
		return nil, err
	}
	return r.toReadModels("execute", entities)
}

// ExecuteEntities is Execute without read model conversion.
func (r *Repository[E, P, R]) ExecuteEntities(ctx context.Context, stmt Statement, opts ...CallOption) ([]P, error) {
	return r.execute(ctx, "execute_entities", stmt, opts)
}

func (r *Repository[E, P, R]) execute(ctx context.Context, op string, stmt Statement, opts []CallOption) (_ []P, err error) {
	var (
		desc *QueryDescriptor
		raw  *RawQuery
	)
	switch st := stmt.(type) {
	case *ListQuery:
		if st == nil {
			return nil, r.fail(op, NewQueryBuildError("Execute", "nil query"))
		}
		if st.Table() != r.table {
			return nil, r.fail(op, NewQueryBuildError("Execute", "query targets table %s, not %s", st.Table().Name, r.table.Name))
		}
		if desc, err = st.Build(); err != nil {
			return nil, r.fail(op, err)
		}
		if skipped := st.Skipped(); len(skipped) > 0 {
			r.logger.DebugContext(ctx, "filter fields without a column were ignored", "op", op, "field", skipped)
		}
	case *QueryDescriptor:
		if st == nil {
			return nil, r.fail(op, NewQueryBuildError("Execute", "nil query descriptor"))
		}
		if st.Table() != r.table {
			return nil, r.fail(op, NewQueryBuildError("Execute", "query targets table %s, not %s", st.Table().Name, r.table.Name))
		}
		desc = st
	case RawQuery:
		if kind := st.Kind(); kind != StatementSelect {
			return nil, r.fail(op, NewQueryBuildError("Execute", "raw statement must be a select, got %s", kind))
		}
		raw = &st
	default:
		return nil, r.fail(op, NewQueryBuildError("Execute", "unsupported statement %T", stmt))
	}

	ctx, s, logger, done, err := r.begin(ctx, op, opts)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	var rows Rows
	if raw != nil {
		rows, err = s.QueryRaw(ctx, *raw)
	} else {
		rows, err = s.Query(ctx, desc)
	}
	if err != nil {
		return nil, r.fail(op, err)
	}
	entities, err := r.scan(rows)
	if err != nil {
		return nil, r.fail(op, err)
	}
	s.Track(toEntities(entities)...)
	logger.DebugContext(ctx, "executed", "rows", len(entities))
	return entities, nil
}

// ListParams describes a list request for GetList.
type ListParams struct {
	Filter  Filter
	OrderBy []any
	// Cursor selects keyset paging when non-nil; an empty non-nil Cursor is
	// the first page. Size is required with a cursor.
	Cursor Cursor
	// Page and Size select offset paging when both are set and Cursor is nil.
	Page int
	Size int
}

// GetList builds and executes a list query from params.
func (r *Repository[E, P, R]) GetList(ctx context.Context, p ListParams, opts ...CallOption) ([]R, error) {
	q := r.List(p.Filter)
	if len(p.OrderBy) > 0 {
		q.OrderBy(p.OrderBy...)
	}
	size := r.env.Pagination.clamp(p.Size)
	switch {
	case p.Cursor != nil:
		q.WithCursor(p.Cursor)
		if p.Size == 0 {
			return nil, r.fail("get_list", NewQueryBuildError("GetList", "cursor paging requires a size"))
		}
		q.Limit(size)
	case p.Page != 0 && p.Size != 0:
		q.Paging(p.Page, size)
	}
	if err := q.Err(); err != nil {
		return nil, r.fail("get_list", err)
	}
	return r.Execute(ctx, q, opts...)
}

// Count returns the number of rows matching f.
func (r *Repository[E, P, R]) Count(ctx context.Context, f Filter, opts ...CallOption) (_ int64, err error) {
	const op = "count"
	preds, err := r.predicates(ctx, op, f)
	if err != nil {
		return 0, err
	}
	ctx, s, _, done, err := r.begin(ctx, op, opts)
	if err != nil {
		return 0, err
	}
	defer func() { done(err) }()

	n, err := s.Count(ctx, r.table, preds)
	if err != nil {
		return 0, r.fail(op, err)
	}
	return n, nil
}

// Create inserts a read model. Auto-increment primary keys in m are ignored.
// The entity is flushed, not committed; the result carries generated keys.
func (r *Repository[E, P, R]) Create(ctx context.Context, m R, opts ...CallOption) (R, error) {
	var zero R
	e, err := r.conv.ToEntity(m)
	if err != nil {
		return zero, r.fail("create", err)
	}
	if err := r.insert(ctx, "create", opts, e); err != nil {
		return zero, err
	}
	return r.toReadModel("create", e)
}

// CreateFromMap inserts an entity built from column values. Keys that are not
// columns and auto-increment primary keys are ignored.
func (r *Repository[E, P, R]) CreateFromMap(ctx context.Context, values map[string]any, opts ...CallOption) (R, error) {
	var zero R
	e, err := r.conv.EntityFromMap(values)
	if err != nil {
		return zero, r.fail("create_from_map", err)
	}
	if err := r.insert(ctx, "create_from_map", opts, e); err != nil {
		return zero, err
	}
	return r.toReadModel("create_from_map", e)
}

// CreateMany inserts read models with one flush.
func (r *Repository[E, P, R]) CreateMany(ctx context.Context, models []R, opts ...CallOption) ([]R, error) {
	entities := make([]P, 0, len(models))
	for _, m := range models {
		e, err := r.conv.ToEntity(m)
		if err != nil {
			return nil, r.fail("create_many", err)
		}
		entities = append(entities, e)
	}
	if err := r.insert(ctx, "create_many", opts, entities...); err != nil {
		return nil, err
	}
	return r.toReadModels("create_many", entities)
}

// CreateFromEntity inserts e as constructed, including any primary key value
// the caller set.
func (r *Repository[E, P, R]) CreateFromEntity(ctx context.Context, e P, opts ...CallOption) (R, error) {
	if err := r.insert(ctx, "create_from_entity", opts, e); err != nil {
		var zero R
		return zero, err
	}
	return r.toReadModel("create_from_entity", e)
}

func (r *Repository[E, P, R]) insert(ctx context.Context, op string, opts []CallOption, entities ...P) (err error) {
	ctx, s, logger, done, err := r.begin(ctx, op, opts)
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	s.Add(toEntities(entities)...)
	if err := s.Flush(ctx); err != nil {
		return r.fail(op, err)
	}
	logger.DebugContext(ctx, "flushed", "count", len(entities))
	return nil
}

// Update sets the changeset columns on every row matching f with a single
// UPDATE statement and returns the number of affected rows. Keys that are not
// columns and auto-increment primary keys are ignored.
func (r *Repository[E, P, R]) Update(ctx context.Context, f Filter, changes Changeset, opts ...CallOption) (_ int64, err error) {
	const op = "update"
	values := sanitize(r.table, changes)
	if len(values) == 0 {
		return 0, r.fail(op, NewQueryBuildError("Update", "changeset has no column values"))
	}
	preds, err := r.predicates(ctx, op, f)
	if err != nil {
		return 0, err
	}
	ctx, s, logger, done, err := r.begin(ctx, op, opts)
	if err != nil {
		return 0, err
	}
	defer func() { done(err) }()

	n, err := s.UpdateWhere(ctx, r.table, preds, values)
	if err != nil {
		return 0, r.fail(op, err)
	}
	logger.DebugContext(ctx, "updated", "rows", n)
	return n, nil
}

// UpdateFromEntity applies the changeset to a loaded entity and flushes, so
// the change is written through dirty checking rather than a bulk UPDATE.
func (r *Repository[E, P, R]) UpdateFromEntity(ctx context.Context, e P, changes Changeset, opts ...CallOption) (_ R, err error) {
	const op = "update_from_entity"
	var zero R
	ctx, s, _, done, err := r.begin(ctx, op, opts)
	if err != nil {
		return zero, err
	}
	defer func() { done(err) }()

	s.Track(e)
	for column, v := range sanitize(r.table, changes) {
		if err := Assign(e, column, v); err != nil {
			return zero, r.fail(op, err)
		}
	}
	if err := s.Flush(ctx); err != nil {
		return zero, r.fail(op, err)
	}
	return r.toReadModel(op, e)
}

// Delete removes every row matching f with a single DELETE statement and
// returns the number of affected rows.
func (r *Repository[E, P, R]) Delete(ctx context.Context, f Filter, opts ...CallOption) (_ int64, err error) {
	const op = "delete"
	preds, err := r.predicates(ctx, op, f)
	if err != nil {
		return 0, err
	}
	ctx, s, logger, done, err := r.begin(ctx, op, opts)
	if err != nil {
		return 0, err
	}
	defer func() { done(err) }()

	n, err := s.DeleteWhere(ctx, r.table, preds)
	if err != nil {
		return 0, r.fail(op, err)
	}
	logger.DebugContext(ctx, "deleted", "rows", n)
	return n, nil
}

// Add stages an entity in the session without flushing.
func (r *Repository[E, P, R]) Add(ctx context.Context, e P, opts ...CallOption) error {
	return r.AddAll(ctx, []P{e}, opts...)
}

// AddAll stages entities in the session without flushing.
func (r *Repository[E, P, R]) AddAll(ctx context.Context, entities []P, opts ...CallOption) error {
	s, err := r.session(ctx, applyCallOptions(opts))
	if err != nil {
		return r.fail("add", err)
	}
	s.Add(toEntities(entities)...)
	return nil
}

// ChangesetOf returns the column values of a read model, for use with Update
// and UpdateFromEntity.
func (r *Repository[E, P, R]) ChangesetOf(m R) (Changeset, error) {
	cs, err := r.conv.Changeset(m)
	if err != nil {
		return nil, r.fail("changeset", err)
	}
	return cs, nil
}

// CursorAfter returns the cursor of the page following last, for a query
// built with this repository.
func (r *Repository[E, P, R]) CursorAfter(q *ListQuery, last P) (Cursor, error) {
	desc, err := q.Build()
	if err != nil {
		return nil, err
	}
	return CursorAfter(desc, last)
}

func (r *Repository[E, P, R]) predicates(ctx context.Context, op string, f Filter) ([]Predicate, error) {
	preds, skipped, err := translate(r.table, f)
	if err != nil {
		return nil, r.fail(op, err)
	}
	if len(skipped) > 0 {
		r.logger.DebugContext(ctx, "filter fields without a column were ignored", "op", op, "field", skipped)
	}
	return preds, nil
}

// scan reads all rows into new entities and closes rows. Result columns
// without an entity field are discarded.
func (r *Repository[E, P, R]) scan(rows Rows) ([]P, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]P, 0)
	for rows.Next() {
		e := P(new(E))
		fields := e.Fields()
		dest := make([]any, len(columns))
		for i, col := range columns {
			if ptr, ok := fields[col]; ok {
				dest[i] = ptr
			} else {
				dest[i] = new(any)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository[E, P, R]) toReadModel(op string, e P) (R, error) {
	m, err := r.conv.ToReadModel(e)
	if err != nil {
		var zero R
		return zero, r.fail(op, err)
	}
	return m, nil
}

func (r *Repository[E, P, R]) toReadModels(op string, entities []P) ([]R, error) {
	out := make([]R, 0, len(entities))
	for _, e := range entities {
		m, err := r.toReadModel(op, e)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func toEntities[P Entity](in []P) []Entity {
	out := make([]Entity, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}
