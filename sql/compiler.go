package sqlstore

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"baserepo"
)

// CompiledSQL represents a compiled SQL statement with arguments.
type CompiledSQL struct {
	SQL  string
	Args []any
}

func (c *CompiledSQL) String() string {
	return fmt.Sprintf("%s %v", c.SQL, c.Args)
}

// Dialect is the part of an adapter the compiler needs.
type Dialect interface {
	PlaceholderFormat() sq.PlaceholderFormat
	QuoteIdentifier(identifier string) string
	SupportsReturning() bool
	SupportsRowValues() bool
}

// SQLCompiler compiles query descriptors and bulk statements into SQL for one
// dialect.
type SQLCompiler struct {
	dialect Dialect
	builder sq.StatementBuilderType
}

// NewSQLCompiler creates a compiler for d.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{
		dialect: d,
		builder: sq.StatementBuilder.PlaceholderFormat(d.PlaceholderFormat()),
	}
}

func (c *SQLCompiler) quote(name string) string { return c.dialect.QuoteIdentifier(name) }

func (c *SQLCompiler) columns(t *baserepo.Table) []string {
	names := t.ColumnNames()
	for i, n := range names {
		names[i] = c.quote(n)
	}
	return names
}

// Select compiles a finalized list query.
func (c *SQLCompiler) Select(q *baserepo.QueryDescriptor) (*CompiledSQL, error) {
	t := q.Table()
	sb := c.builder.Select(c.columns(t)...).From(c.quote(t.Name))

	if where := c.where(q.Predicates()); where != nil {
		sb = sb.Where(where)
	}

	order := q.Order()
	switch p := q.Paging().(type) {
	case baserepo.OffsetPaging:
		sb = sb.Limit(uint64(p.Size)).Offset(uint64(p.Offset()))
	case baserepo.CursorPaging:
		if len(p.After) > 0 {
			sb = sb.Where(c.seek(order, p.After))
		}
		sb = sb.Limit(uint64(p.Size))
	}

	for _, term := range order {
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		sb = sb.OrderBy(c.quote(term.Column.Name) + " " + dir)
	}

	return c.compile(sb)
}

// Count compiles a count-only query.
func (c *SQLCompiler) Count(t *baserepo.Table, preds []baserepo.Predicate) (*CompiledSQL, error) {
	sb := c.builder.Select("COUNT(*)").From(c.quote(t.Name))
	if where := c.where(preds); where != nil {
		sb = sb.Where(where)
	}
	return c.compile(sb)
}

// Update compiles a bulk UPDATE. Values are set in table column order.
func (c *SQLCompiler) Update(t *baserepo.Table, preds []baserepo.Predicate, values map[string]any) (*CompiledSQL, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("update of %s has no values", t.Name)
	}
	ub := c.builder.Update(c.quote(t.Name))
	for _, name := range t.ColumnNames() {
		if v, ok := values[name]; ok {
			ub = ub.Set(c.quote(name), v)
		}
	}
	if where := c.where(preds); where != nil {
		ub = ub.Where(where)
	}
	return c.compile(ub)
}

// Delete compiles a bulk DELETE.
func (c *SQLCompiler) Delete(t *baserepo.Table, preds []baserepo.Predicate) (*CompiledSQL, error) {
	db := c.builder.Delete(c.quote(t.Name))
	if where := c.where(preds); where != nil {
		db = db.Where(where)
	}
	return c.compile(db)
}

// Insert compiles a single-row INSERT of values in table column order. When
// returning is set and the dialect supports it, the statement returns that
// column.
func (c *SQLCompiler) Insert(t *baserepo.Table, values map[string]any, returning string) (*CompiledSQL, error) {
	var (
		cols []string
		args []any
	)
	for _, name := range t.ColumnNames() {
		if v, ok := values[name]; ok {
			cols = append(cols, c.quote(name))
			args = append(args, v)
		}
	}

	if len(cols) == 0 {
		// Every column is generated.
		stmt := "INSERT INTO " + c.quote(t.Name) + " DEFAULT VALUES"
		if returning != "" && c.dialect.SupportsReturning() {
			stmt += " RETURNING " + c.quote(returning)
		}
		return &CompiledSQL{SQL: stmt}, nil
	}

	ib := c.builder.Insert(c.quote(t.Name)).Columns(cols...).Values(args...)
	if returning != "" && c.dialect.SupportsReturning() {
		ib = ib.Suffix("RETURNING " + c.quote(returning))
	}
	return c.compile(ib)
}

// UpdateByKey compiles an UPDATE of one row identified by its primary key.
func (c *SQLCompiler) UpdateByKey(t *baserepo.Table, key map[string]any, values map[string]any) (*CompiledSQL, error) {
	preds := make([]baserepo.Predicate, 0, len(key))
	for _, pk := range t.PrimaryKey() {
		preds = append(preds, baserepo.Predicate{Column: pk.Name, Op: baserepo.OpEq, Value: key[pk.Name]})
	}
	return c.Update(t, preds, values)
}

func (c *SQLCompiler) compile(b sq.Sqlizer) (*CompiledSQL, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return &CompiledSQL{SQL: query, Args: args}, nil
}

// where combines predicates with AND. It returns nil when there are none.
func (c *SQLCompiler) where(preds []baserepo.Predicate) sq.Sqlizer {
	if len(preds) == 0 {
		return nil
	}
	and := make(sq.And, 0, len(preds))
	for _, p := range preds {
		col := c.quote(p.Column)
		switch p.Op {
		case baserepo.OpIs:
			if b, _ := p.Value.(bool); b {
				and = append(and, sq.Expr(col+" IS TRUE"))
			} else {
				and = append(and, sq.Expr(col+" IS FALSE"))
			}
		default:
			// sq.Eq renders IN for slices and IS NULL for nil.
			and = append(and, sq.Eq{col: p.Value})
		}
	}
	return and
}

// seek builds the keyset predicate selecting rows strictly after the cursor
// in the given order.
//
// All ascending: a single comparison, or a row-value comparison for several
// columns. Otherwise an OR of prefixes: (a > ?) OR (a = ? AND b < ?) ...
func (c *SQLCompiler) seek(order []baserepo.OrderTerm, after baserepo.Cursor) sq.Sqlizer {
	values := make([]any, len(after))
	for i, e := range after {
		values[i] = e.Value
	}

	anyDesc := false
	for _, term := range order {
		anyDesc = anyDesc || term.Desc
	}

	if !anyDesc {
		if len(order) == 1 {
			return sq.Gt{c.quote(order[0].Column.Name): values[0]}
		}
		if c.dialect.SupportsRowValues() {
			cols := make([]string, len(order))
			marks := make([]string, len(order))
			for i, term := range order {
				cols[i] = c.quote(term.Column.Name)
				marks[i] = "?"
			}
			return sq.Expr("("+strings.Join(cols, ", ")+") > ("+strings.Join(marks, ", ")+")", values...)
		}
	}

	ladder := make(sq.Or, 0, len(order))
	for i, term := range order {
		step := make(sq.And, 0, i+1)
		for j := 0; j < i; j++ {
			step = append(step, sq.Eq{c.quote(order[j].Column.Name): values[j]})
		}
		col := c.quote(term.Column.Name)
		if term.Desc {
			step = append(step, sq.Lt{col: values[i]})
		} else {
			step = append(step, sq.Gt{col: values[i]})
		}
		ladder = append(ladder, step)
	}
	return ladder
}
