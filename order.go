package baserepo

import (
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"
)

// OrderTerm orders a query by one column.
type OrderTerm struct {
	Column *Column
	Desc   bool

	// ref holds an identifier that still needs to be resolved against the
	// query table, as produced by Asc("name").
	ref any
}

func (o OrderTerm) String() string {
	name := "<unresolved>"
	if o.Column != nil {
		name = o.Column.Name
	} else if o.ref != nil {
		name = fmt.Sprint(o.ref)
	}
	if o.Desc {
		return name + " DESC"
	}
	return name + " ASC"
}

// Label is a column referenced under another name. Ordering by a label is
// ordering by the column.
type Label struct {
	Column *Column
	Name   string
}

// Asc orders ascending by item, which may be anything OrderBy accepts.
func Asc(item any) OrderTerm { return direct(item, false) }

// Desc orders descending by item, which may be anything OrderBy accepts.
func Desc(item any) OrderTerm { return direct(item, true) }

func direct(item any, desc bool) OrderTerm {
	switch v := item.(type) {
	case *Column:
		return OrderTerm{Column: v, Desc: desc}
	case OrderTerm:
		v.Desc = desc
		return v
	}
	return OrderTerm{ref: item, Desc: desc}
}

// resolveOrder normalizes order items against a table. The result has no
// duplicate columns; the first occurrence of a column wins.
func resolveOrder(t *Table, items []any) ([]OrderTerm, error) {
	var (
		out  []OrderTerm
		seen = make(map[string]bool)
	)
	add := func(term OrderTerm) {
		if seen[term.Column.Name] {
			return
		}
		seen[term.Column.Name] = true
		out = append(out, term)
	}

	for _, item := range items {
		if names, ok := item.([]string); ok {
			for _, n := range names {
				term, err := resolveOrderItem(t, n)
				if err != nil {
					return nil, err
				}
				add(term)
			}
			continue
		}
		term, err := resolveOrderItem(t, item)
		if err != nil {
			return nil, err
		}
		add(term)
	}
	return out, nil
}

func resolveOrderItem(t *Table, item any) (OrderTerm, error) {
	switch v := item.(type) {
	case nil:
		return OrderTerm{}, fmt.Errorf("nil order item")
	case OrderTerm:
		var (
			col *Column
			err error
		)
		if v.Column != nil {
			col, err = ownColumn(t, v.Column)
		} else {
			var inner OrderTerm
			inner, err = resolveOrderItem(t, v.ref)
			col = inner.Column
		}
		if err != nil {
			return OrderTerm{}, err
		}
		return OrderTerm{Column: col, Desc: v.Desc}, nil
	case *Column:
		col, err := ownColumn(t, v)
		return OrderTerm{Column: col}, err
	case Label:
		if v.Column == nil {
			return OrderTerm{}, fmt.Errorf("label %q has no column", v.Name)
		}
		col, err := ownColumn(t, v.Column)
		return OrderTerm{Column: col}, err
	case sq.Sqlizer:
		return OrderTerm{}, fmt.Errorf("computed expression %T cannot be used for ordering", item)
	case string:
		return columnByName(t, v)
	case fmt.Stringer:
		return columnByName(t, v.String())
	}

	// Named string constants without a String method.
	rv := reflect.ValueOf(item)
	if rv.Kind() == reflect.String {
		return columnByName(t, rv.String())
	}
	return OrderTerm{}, fmt.Errorf("unsupported order item %v (%T)", item, item)
}

func columnByName(t *Table, name string) (OrderTerm, error) {
	col := t.Col(name)
	if col == nil {
		return OrderTerm{}, fmt.Errorf("table %s has no column %q", t.Name, name)
	}
	return OrderTerm{Column: col}, nil
}

// ownColumn maps a column reference to the canonical column of t. Detached
// columns resolve by name; columns bound to another table are rejected.
func ownColumn(t *Table, c *Column) (*Column, error) {
	if c.table != nil && c.table != t {
		return nil, fmt.Errorf("column %s belongs to table %s, not %s", c.Name, c.table.Name, t.Name)
	}
	col := t.Col(c.Name)
	if col == nil {
		return nil, fmt.Errorf("table %s has no column %q", t.Name, c.Name)
	}
	return col, nil
}

// defaultOrder orders by the primary key ascending.
func defaultOrder(t *Table) ([]OrderTerm, error) {
	pks := t.PrimaryKey()
	if len(pks) == 0 {
		return nil, fmt.Errorf("table %s has no primary key to order by", t.Name)
	}
	out := make([]OrderTerm, len(pks))
	for i, c := range pks {
		out[i] = OrderTerm{Column: c}
	}
	return out, nil
}
