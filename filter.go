package baserepo

import "reflect"

// Operator represents the comparison a predicate applies to its column.
type Operator string

const (
	OpEq Operator = "eq"
	OpIn Operator = "in"
	OpIs Operator = "is" // identity comparison, used for booleans
)

// Predicate is a single column constraint produced by Translate.
type Predicate struct {
	Column string
	Op     Operator
	// Value is a scalar for OpEq and OpIs, and a non-empty []any for OpIn.
	Value any
}

// FilterField is one declared field of a filter. A nil Value means the field
// is absent and contributes no predicate.
type FilterField struct {
	Name  string
	Value any
	// Alias names the underlying column when it differs from Name.
	Alias string
}

// As maps the field to a differently named column.
func (f FilterField) As(column string) FilterField {
	f.Alias = column
	return f
}

// Filter is a declarative set of field constraints. Concrete filters are plain
// structs that list their own fields:
//
//	type UserFilter struct {
//		Name  []string
//		Email *string
//	}
//
//	func (f UserFilter) FilterFields() []baserepo.FilterField {
//		return []baserepo.FilterField{
//			baserepo.OneOf("name", f.Name),
//			baserepo.Opt("email", f.Email).As("email_address"),
//		}
//	}
type Filter interface {
	FilterFields() []FilterField
}

// StrictFilter is implemented by filters that want unresolvable fields to be a
// configuration error instead of being skipped.
type StrictFilter interface {
	Filter
	StrictMapping() bool
}

// Fields is an ad hoc Filter built from a list of fields.
type Fields []FilterField

func (f Fields) FilterFields() []FilterField { return f }

// Strict wraps a filter so that it is translated in strict mode.
func Strict(f Filter) StrictFilter { return strictFilter{f} }

type strictFilter struct{ Filter }

func (strictFilter) StrictMapping() bool { return true }

// Value declares a field with a concrete value.
func Value(name string, v any) FilterField {
	return FilterField{Name: name, Value: v}
}

// Opt declares an optional field; a nil pointer is absent.
func Opt[T any](name string, v *T) FilterField {
	if v == nil {
		return FilterField{Name: name}
	}
	return FilterField{Name: name, Value: *v}
}

// OneOf declares a membership field. A nil slice is absent and an empty slice
// places no constraint on the column.
func OneOf[T any](name string, values []T) FilterField {
	if values == nil {
		return FilterField{Name: name}
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return FilterField{Name: name, Value: out}
}

// Translate converts a filter into predicates over the given table.
//
// Per field with a non-nil value: a bool becomes OpIs, a slice becomes OpIn
// (or nothing if empty) and anything else becomes OpEq. The column is the
// field alias if set, else the field name. Unresolvable fields are skipped,
// unless the filter is strict, in which case a *ConfigurationError is returned.
func Translate(t *Table, f Filter) ([]Predicate, error) {
	preds, _, err := translate(t, f)
	return preds, err
}

// translate also reports the names of skipped fields so callers can log them.
func translate(t *Table, f Filter) ([]Predicate, []string, error) {
	if isNilFilter(f) {
		return nil, nil, nil
	}
	strict := false
	if sf, ok := f.(StrictFilter); ok {
		strict = sf.StrictMapping()
	}

	var (
		preds   []Predicate
		skipped []string
	)
	for _, field := range f.FilterFields() {
		if field.Value == nil {
			continue
		}
		column := field.Name
		if field.Alias != "" {
			column = field.Alias
		}
		if !t.Has(column) {
			if strict {
				return nil, nil, NewConfigurationErrorForField(t.Name, field.Name,
					"filter field does not resolve to a column")
			}
			skipped = append(skipped, field.Name)
			continue
		}

		if b, ok := field.Value.(bool); ok {
			preds = append(preds, Predicate{Column: column, Op: OpIs, Value: b})
			continue
		}
		if values, ok := sequence(field.Value); ok {
			if len(values) == 0 {
				continue
			}
			preds = append(preds, Predicate{Column: column, Op: OpIn, Value: values})
			continue
		}
		preds = append(preds, Predicate{Column: column, Op: OpEq, Value: field.Value})
	}
	return preds, skipped, nil
}

// sequence reports whether v is a slice or array of values. Byte slices are
// scalar.
func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []byte:
		return nil, false
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isNilFilter(f Filter) bool {
	if f == nil {
		return true
	}
	if sf, ok := f.(strictFilter); ok {
		return isNilFilter(sf.Filter)
	}
	rv := reflect.ValueOf(f)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// isEmptyFilter reports whether a filter declares no present field.
func isEmptyFilter(f Filter) bool {
	if isNilFilter(f) {
		return true
	}
	for _, field := range f.FilterFields() {
		if field.Value != nil {
			return false
		}
	}
	return true
}
