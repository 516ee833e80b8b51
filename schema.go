package baserepo

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// ColumnType is the Go-side value kind of a column. It is used to coerce
// loosely typed input, such as decoded cursor tokens, before it reaches the
// engine.
type ColumnType int

const (
	TypeAny ColumnType = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
	TypeTime
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	default:
		return "any"
	}
}

// Column describes one persisted column of an entity table.
type Column struct {
	Name          string
	PrimaryKey    bool
	AutoIncrement bool
	Type          ColumnType

	table *Table
}

// Table returns the table the column belongs to, or nil for a detached column.
func (c *Column) Table() *Table { return c.table }

// Asc orders by the column ascending.
func (c *Column) Asc() OrderTerm { return OrderTerm{Column: c} }

// Desc orders by the column descending.
func (c *Column) Desc() OrderTerm { return OrderTerm{Column: c, Desc: true} }

// As labels the column. A label still refers to the same underlying column.
func (c *Column) As(label string) Label { return Label{Column: c, Name: label} }

func (c *Column) String() string {
	if c.table == nil {
		return c.Name
	}
	return c.table.Name + "." + c.Name
}

// Table is the static schema of an entity: its name and its columns in
// declaration order.
type Table struct {
	Name    string
	columns []*Column
	byName  map[string]*Column
}

// NewTable creates a table schema. Columns are copied and bound to the table.
func NewTable(name string, cols ...Column) *Table {
	t := &Table{
		Name:    name,
		columns: make([]*Column, 0, len(cols)),
		byName:  make(map[string]*Column, len(cols)),
	}
	for _, c := range cols {
		col := c
		col.table = t
		t.columns = append(t.columns, &col)
		t.byName[col.Name] = &col
	}
	return t
}

// Col returns the column with the given name, or nil if the table has none.
func (t *Table) Col(name string) *Column {
	return t.byName[name]
}

// MustCol is like Col but panics when the column does not exist. It is meant
// for package-level column references.
func (t *Table) MustCol(name string) *Column {
	c := t.byName[name]
	if c == nil {
		panic(fmt.Sprintf("baserepo: table %s has no column %q", t.Name, name))
	}
	return c
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary key columns in declaration order.
func (t *Table) PrimaryKey() []*Column {
	var pks []*Column
	for _, c := range t.columns {
		if c.PrimaryKey {
			pks = append(pks, c)
		}
	}
	return pks
}

// AutoIncrementKeys returns the names of primary key columns whose values are
// generated by the database.
func (t *Table) AutoIncrementKeys() []string {
	var keys []string
	for _, c := range t.columns {
		if c.PrimaryKey && c.AutoIncrement {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// Entity is a persisted record. Implementations are pointer types.
//
// Fields returns, for every column, a pointer to the Go value backing it. The
// pointers are used as scan destinations and as the source of column values.
type Entity interface {
	Table() *Table
	Fields() map[string]any
}

// EntityPtr constrains P to be a pointer to E implementing Entity, so that
// repositories can allocate new records.
type EntityPtr[E any] interface {
	*E
	Entity
}

// Values returns the current column values of an entity keyed by column name.
// Columns without a backing field are omitted.
func Values(e Entity) map[string]any {
	fields := e.Fields()
	out := make(map[string]any, len(fields))
	for _, c := range e.Table().columns {
		ptr, ok := fields[c.Name]
		if !ok {
			continue
		}
		out[c.Name] = deref(ptr)
	}
	return out
}

// ColumnValue returns the value of a single column.
func ColumnValue(e Entity, column string) (any, bool) {
	ptr, ok := e.Fields()[column]
	if !ok {
		return nil, false
	}
	return deref(ptr), true
}

// Assign sets the named column of an entity.
func Assign(e Entity, column string, value any) error {
	ptr, ok := e.Fields()[column]
	if !ok {
		return NewConfigurationErrorForField(e.Table().Name, column, "entity has no field for column")
	}
	if err := assignPtr(ptr, value); err != nil {
		return NewConfigurationErrorForField(e.Table().Name, column, err.Error())
	}
	return nil
}

// clearColumns resets the given columns to their zero value.
func clearColumns(e Entity, columns []string) {
	fields := e.Fields()
	for _, name := range columns {
		if ptr, ok := fields[name]; ok {
			v := reflect.ValueOf(ptr)
			if v.Kind() == reflect.Pointer && !v.IsNil() {
				v.Elem().Set(reflect.Zero(v.Elem().Type()))
			}
		}
	}
}

func deref(ptr any) any {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return ptr
	}
	return v.Elem().Interface()
}

// assignPtr stores value into the variable ptr points to, converting between
// compatible kinds. sql.Scanner destinations are delegated to Scan.
func assignPtr(ptr any, value any) error {
	if s, ok := ptr.(sql.Scanner); ok {
		return s.Scan(value)
	}
	dst := reflect.ValueOf(ptr)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return fmt.Errorf("field is not a settable pointer (%T)", ptr)
	}
	dst = dst.Elem()
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	if dst.Kind() == reflect.Pointer && src.Type() != dst.Type() {
		// *T field receiving a T value
		elem := reflect.New(dst.Type().Elem())
		if err := assignPtr(elem.Interface(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if b, ok := value.([]byte); ok && dst.Kind() == reflect.String {
		dst.SetString(string(b))
		return nil
	}
	if src.Type().ConvertibleTo(dst.Type()) && src.Kind() != reflect.String || (src.Kind() == reflect.String && dst.Kind() == reflect.String) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
}

// coerce converts a loosely typed value to the column's Go kind. Values that
// already have the right kind are returned unchanged.
func coerce(t ColumnType, v any) (any, error) {
	switch t {
	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return reflect.ValueOf(n).Convert(reflect.TypeOf(int64(0))).Interface(), nil
		case float64:
			if n != float64(int64(n)) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int64(n), nil
		case float32:
			if n != float32(int64(n)) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int64(n), nil
		case string:
			return strconv.ParseInt(n, 10, 64)
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			return strconv.ParseFloat(n, 64)
		}
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
	case TypeTime:
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case string:
			return time.Parse(time.RFC3339Nano, ts)
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("%T is not %s", v, t)
}
