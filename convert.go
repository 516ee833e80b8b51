package baserepo

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Mapper converts between an entity and its read model. Supplying one
// disables the structural field check, so it may rename fields or combine
// several columns into one.
type Mapper[P Entity, R any] interface {
	ToReadModel(e P) (R, error)
	ToEntity(r R) (P, error)
}

// MapperFuncs adapts two functions to Mapper.
type MapperFuncs[P Entity, R any] struct {
	ToReadModelFunc func(P) (R, error)
	ToEntityFunc    func(R) (P, error)
}

func (m MapperFuncs[P, R]) ToReadModel(e P) (R, error) { return m.ToReadModelFunc(e) }

func (m MapperFuncs[P, R]) ToEntity(r R) (P, error) { return m.ToEntityFunc(r) }

// Changeset maps column names to new values.
type Changeset map[string]any

const readModelTag = "db"

// readField is one mapped field of a read model struct.
type readField struct {
	name  string
	index []int
}

// readModelFields lists the mapped fields of a read model struct type. The
// column name is the db tag, or the lower-cased field name when untagged.
func readModelFields(t reflect.Type) ([]readField, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("read model %s is not a struct", t)
	}
	var fields []readField
	collectFields(t, nil, &fields)
	return fields, nil
}

func collectFields(t reflect.Type, prefix []int, out *[]readField) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get(readModelTag)
		name, opts, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		index := append(append([]int(nil), prefix...), i)
		if f.Anonymous && strings.Contains(opts, "squash") && f.Type.Kind() == reflect.Struct {
			collectFields(f.Type, index, out)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		*out = append(*out, readField{name: name, index: index})
	}
}

// converter implements the conversion layer for one repository.
type converter[E any, P EntityPtr[E], R any] struct {
	table  *Table
	mapper Mapper[P, R]
	fields []readField // structural mode only
}

func newConverter[E any, P EntityPtr[E], R any](t *Table, mapper Mapper[P, R]) (*converter[E, P, R], error) {
	c := &converter[E, P, R]{table: t, mapper: mapper}
	if mapper != nil {
		return c, nil
	}

	fields, err := readModelFields(reflect.TypeOf((*R)(nil)).Elem())
	if err != nil {
		return nil, NewConfigurationError(t.Name, err.Error())
	}
	var unknown []string
	for _, f := range fields {
		if !t.Has(f.name) {
			unknown = append(unknown, f.name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ConfigurationError{
			Entity:  t.Name,
			Message: fmt.Sprintf("read model %s fields %v are not columns of %s; tag them or supply a mapper", reflect.TypeOf((*R)(nil)).Elem(), unknown, t.Name),
		}
	}
	c.fields = fields
	return c, nil
}

// ToReadModel converts an entity into the read model.
func (c *converter[E, P, R]) ToReadModel(e P) (R, error) {
	if c.mapper != nil {
		return c.mapper.ToReadModel(e)
	}
	var r R
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          readModelTag,
		Result:           &r,
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return r, err
	}
	if err := dec.Decode(Values(e)); err != nil {
		return r, fmt.Errorf("failed to convert %s to read model: %w", c.table.Name, err)
	}
	return r, nil
}

// ToEntity builds an entity from a read model. Auto-increment primary keys are
// left at their zero value.
func (c *converter[E, P, R]) ToEntity(r R) (P, error) {
	if c.mapper != nil {
		e, err := c.mapper.ToEntity(r)
		if err != nil {
			return nil, err
		}
		clearColumns(e, c.table.AutoIncrementKeys())
		return e, nil
	}
	return c.EntityFromMap(c.readModelMap(r))
}

// EntityFromMap builds an entity from column values. Keys that are not
// columns and auto-increment primary keys are dropped.
func (c *converter[E, P, R]) EntityFromMap(m map[string]any) (P, error) {
	values := sanitize(c.table, m)
	e := P(new(E))
	for _, col := range c.table.ColumnNames() {
		v, ok := values[col]
		if !ok {
			continue
		}
		if err := Assign(e, col, v); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Changeset returns the column values of a read model.
func (c *converter[E, P, R]) Changeset(r R) (Changeset, error) {
	if c.mapper != nil {
		e, err := c.mapper.ToEntity(r)
		if err != nil {
			return nil, err
		}
		return sanitize(c.table, Values(e)), nil
	}
	return sanitize(c.table, c.readModelMap(r)), nil
}

func (c *converter[E, P, R]) readModelMap(r R) map[string]any {
	v := reflect.ValueOf(r)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return map[string]any{}
		}
		v = v.Elem()
	}
	m := make(map[string]any, len(c.fields))
	for _, f := range c.fields {
		fv, err := v.FieldByIndexErr(f.index)
		if err != nil {
			continue
		}
		m[f.name] = fv.Interface()
	}
	return m
}

// sanitize keeps only keys naming columns of t and drops auto-increment
// primary keys.
func sanitize(t *Table, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		col := t.Col(k)
		if col == nil || (col.PrimaryKey && col.AutoIncrement) {
			continue
		}
		out[k] = v
	}
	return out
}
