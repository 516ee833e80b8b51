package baserepo

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Statement is anything a repository can execute as a read: a *ListQuery, a
// finalized *QueryDescriptor or a RawQuery.
type Statement interface {
	isStatement()
}

// RawQuery is an engine-native SQL statement with its arguments.
type RawQuery struct {
	SQL  string
	Args []any
}

func (RawQuery) isStatement() {}

// StatementKind classifies raw SQL by its leading verb.
type StatementKind int

const (
	StatementUnknown StatementKind = iota
	StatementSelect
	StatementInsert
	StatementUpdate
	StatementDelete
)

func (k StatementKind) String() string {
	switch k {
	case StatementSelect:
		return "select"
	case StatementInsert:
		return "insert"
	case StatementUpdate:
		return "update"
	case StatementDelete:
		return "delete"
	default:
		return "unknown"
	}
}

var (
	// Literals come first so comment markers and verbs inside them are skipped.
	sqlNoise = regexp.MustCompile(`(?s)'(?:[^']|'')*'|"(?:[^"]|"")*"|--[^\n]*|/\*.*?\*/`)
	dmlVerb  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE)\b`)
)

// Kind returns the kind of the statement. A WITH prefix is treated as a
// select unless the body contains a data-modifying verb outside quoted
// literals and comments.
func (r RawQuery) Kind() StatementKind {
	s := strings.TrimSpace(sqlNoise.ReplaceAllString(r.SQL, " "))
	s = strings.TrimLeft(s, "( \t\r\n")
	verb, _, _ := strings.Cut(s, " ")
	switch strings.ToUpper(strings.TrimSpace(verb)) {
	case "SELECT", "VALUES":
		return StatementSelect
	case "WITH":
		if m := dmlVerb.FindString(s); m != "" {
			return RawQuery{SQL: m}.Kind()
		}
		return StatementSelect
	case "INSERT":
		return StatementInsert
	case "UPDATE":
		return StatementUpdate
	case "DELETE":
		return StatementDelete
	}
	return StatementUnknown
}

// QueryDescriptor is a finalized, immutable list query: predicates, order and
// paging over one table. Accessors return copies.
type QueryDescriptor struct {
	table      *Table
	predicates []Predicate
	order      []OrderTerm
	paging     PagingMode
}

func (*QueryDescriptor) isStatement() {}

// Table returns the queried table.
func (d *QueryDescriptor) Table() *Table { return d.table }

// Predicates returns the WHERE predicates, combined with AND.
func (d *QueryDescriptor) Predicates() []Predicate {
	out := make([]Predicate, len(d.predicates))
	copy(out, d.predicates)
	return out
}

// Order returns the effective order. It is never empty.
func (d *QueryDescriptor) Order() []OrderTerm {
	out := make([]OrderTerm, len(d.order))
	copy(out, d.order)
	return out
}

// Paging returns the paging mode.
func (d *QueryDescriptor) Paging() PagingMode {
	if cp, ok := d.paging.(CursorPaging); ok {
		after := make(Cursor, len(cp.After))
		copy(after, cp.After)
		return CursorPaging{After: after, Size: cp.Size}
	}
	return d.paging
}

func (d *QueryDescriptor) String() string {
	return fmt.Sprintf("%s where=%v order=%v paging=%+v", d.table.Name, d.predicates, d.order, d.paging)
}

type queryState int

const (
	stateEmpty queryState = iota
	stateFiltered
	stateOrdered
	stateOffsetPaged
	stateCursorEntered
	stateCursorLimited
	stateFinalized
)

func (s queryState) String() string {
	return [...]string{"empty", "filtered", "ordered", "offset-paged", "cursor", "cursor-limited", "finalized"}[s]
}

// ListQuery is a single-use, chainable list query:
//
//	q := repo.List(UserFilter{Active: &yes}).
//		OrderBy(users.Col("created_at").Desc(), "id").
//		WithCursor(after).
//		Limit(20)
//
// Every call is validated immediately. The first invalid call records an
// error; later calls are ignored and the error is reported by Err and Build.
// Build finalizes the query; after that every further call fails.
//
// A ListQuery is not safe for concurrent use.
type ListQuery struct {
	table *Table
	state queryState
	err   error

	filter     Filter
	fromCtor   bool
	predicates []Predicate
	skipped    []string
	order      []OrderTerm

	cursor Cursor
	limit  int
	page   int
	size   int

	built *QueryDescriptor
}

func (*ListQuery) isStatement() {}

// NewListQuery starts a list query over table. A non-empty filter behaves as
// if Where had been called with it.
func NewListQuery(t *Table, f Filter) *ListQuery {
	q := &ListQuery{table: t}
	if isEmptyFilter(f) {
		return q
	}
	q.fromCtor = true
	q.setFilter(f)
	return q
}

// Err returns the first error recorded by the chain.
func (q *ListQuery) Err() error { return q.err }

// Table returns the queried table.
func (q *ListQuery) Table() *Table { return q.table }

// Filter returns the filter set by NewListQuery or Where.
func (q *ListQuery) Filter() Filter { return q.filter }

// Skipped returns the filter fields that did not resolve to a column and were
// ignored.
func (q *ListQuery) Skipped() []string { return q.skipped }

func (q *ListQuery) fail(call, format string, args ...any) *ListQuery {
	q.err = NewQueryBuildError(call, format, args...)
	return q
}

// guard reports whether the call may proceed.
func (q *ListQuery) guard(call string) bool {
	if q.err != nil {
		return false
	}
	if q.state == stateFinalized {
		q.err = &QueryBuildError{Call: call, Reason: "query is finalized", Err: ErrQuerySealed}
		return false
	}
	return true
}

// Where sets the filter. It may be called at most once, before ordering and
// paging. A nil or empty filter is a no-op.
func (q *ListQuery) Where(f Filter) *ListQuery {
	if !q.guard("Where") || isEmptyFilter(f) {
		return q
	}
	if q.fromCtor {
		return q.fail("Where", "a filter was already supplied when the query was created")
	}
	if q.state == stateFiltered {
		return q.fail("Where", "where can be called only once; combine conditions in one filter")
	}
	if q.state != stateEmpty {
		return q.fail("Where", "where must precede ordering and paging (query is %s)", q.state)
	}
	q.setFilter(f)
	return q
}

func (q *ListQuery) setFilter(f Filter) {
	preds, skipped, err := translate(q.table, f)
	if err != nil {
		q.err = err
		return
	}
	q.filter = f
	q.predicates = preds
	q.skipped = skipped
	q.state = stateFiltered
}

// OrderBy sets the order. Items may be column names, named string constants,
// columns of the query table, labels of those columns, or Asc/Desc terms of
// any of these. Duplicate columns keep their first position and direction.
// Without OrderBy the query is ordered by primary key.
func (q *ListQuery) OrderBy(items ...any) *ListQuery {
	if !q.guard("OrderBy") {
		return q
	}
	switch q.state {
	case stateEmpty, stateFiltered:
	case stateOrdered:
		return q.fail("OrderBy", "order can be set only once")
	case stateCursorEntered, stateCursorLimited:
		return q.fail("OrderBy", "order must be set before entering cursor mode")
	default:
		return q.fail("OrderBy", "order must be set before paging (query is %s)", q.state)
	}
	order, err := resolveOrder(q.table, items)
	if err != nil {
		return q.fail("OrderBy", "%v", err)
	}
	q.order = order
	q.state = stateOrdered
	return q
}

// WithCursor enters cursor (keyset) paging. It requires a prior non-empty
// OrderBy, and the cursor keys must equal the order columns in the same order.
// A nil or empty cursor selects the first page. Values are coerced to the
// column types.
func (q *ListQuery) WithCursor(c Cursor) *ListQuery {
	if !q.guard("WithCursor") {
		return q
	}
	switch q.state {
	case stateOrdered:
	case stateOffsetPaged:
		return q.fail("WithCursor", "offset paging and cursor paging cannot be used together")
	case stateCursorEntered, stateCursorLimited:
		return q.fail("WithCursor", "cursor can be set only once")
	default:
		return q.fail("WithCursor", "cursor paging requires OrderBy first")
	}
	if len(q.order) == 0 {
		return q.fail("WithCursor", "cursor paging requires a non-empty OrderBy")
	}

	after := make(Cursor, 0, len(c))
	if len(c) > 0 {
		want := make([]string, len(q.order))
		for i, term := range q.order {
			want[i] = term.Column.Name
		}
		if !slices.Equal(c.Keys(), want) {
			return q.fail("WithCursor", "cursor keys %v must equal order columns %v in order", c.Keys(), want)
		}
		for i, e := range c {
			if e.Value == nil {
				return q.fail("WithCursor", "cursor value for %s must not be null", e.Key)
			}
			v, err := coerce(q.order[i].Column.Type, e.Value)
			if err != nil {
				return q.fail("WithCursor", "cursor value for %s: %v", e.Key, err)
			}
			after = append(after, CursorEntry{Key: e.Key, Value: v})
		}
	}
	q.cursor = after
	q.state = stateCursorEntered
	return q
}

// Limit sets the cursor page size. It is valid only after WithCursor.
func (q *ListQuery) Limit(n int) *ListQuery {
	if !q.guard("Limit") {
		return q
	}
	switch q.state {
	case stateCursorEntered:
	case stateCursorLimited:
		return q.fail("Limit", "limit can be set only once")
	case stateOffsetPaged:
		return q.fail("Limit", "offset paging and cursor paging cannot be used together")
	default:
		return q.fail("Limit", "limit is only valid in cursor mode; call WithCursor first")
	}
	if n < 1 {
		return q.fail("Limit", "size must be >= 1, got %d", n)
	}
	q.limit = n
	q.state = stateCursorLimited
	return q
}

// Paging enters offset paging with a 1-based page number.
func (q *ListQuery) Paging(page, size int) *ListQuery {
	if !q.guard("Paging") {
		return q
	}
	switch q.state {
	case stateEmpty, stateFiltered, stateOrdered:
	case stateOffsetPaged:
		return q.fail("Paging", "paging can be set only once")
	default:
		return q.fail("Paging", "offset paging and cursor paging cannot be used together")
	}
	if page < 1 {
		return q.fail("Paging", "page must be >= 1, got %d", page)
	}
	if size < 1 {
		return q.fail("Paging", "size must be >= 1, got %d", size)
	}
	q.page, q.size = page, size
	q.state = stateOffsetPaged
	return q
}

// Build finalizes the query. Calling Build again returns the same descriptor.
func (q *ListQuery) Build() (*QueryDescriptor, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.state == stateFinalized {
		return q.built, nil
	}
	if q.state == stateCursorEntered {
		q.err = NewQueryBuildError("Build", "cursor paging requires Limit")
		return nil, q.err
	}

	order := q.order
	if len(order) == 0 {
		var err error
		if order, err = defaultOrder(q.table); err != nil {
			q.err = NewQueryBuildError("Build", "%v", err)
			return nil, q.err
		}
	}

	var paging PagingMode = NoPaging{}
	switch q.state {
	case stateOffsetPaged:
		paging = OffsetPaging{Page: q.page, Size: q.size}
	case stateCursorLimited:
		paging = CursorPaging{After: q.cursor, Size: q.limit}
	}

	q.built = &QueryDescriptor{
		table:      q.table,
		predicates: q.predicates,
		order:      order,
		paging:     paging,
	}
	q.state = stateFinalized
	return q.built, nil
}
