package baserepo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baserepo"
)

type userFilter struct {
	Name   []string
	Email  *string
	Active *bool
	Nick   *string
}

func (f userFilter) FilterFields() []baserepo.FilterField {
	return []baserepo.FilterField{
		baserepo.OneOf("name", f.Name),
		baserepo.Opt("email", f.Email),
		baserepo.Opt("active", f.Active),
		baserepo.Opt("nick", f.Nick),
	}
}

type aliasedFilter struct {
	Mail *string
}

func (f aliasedFilter) FilterFields() []baserepo.FilterField {
	return []baserepo.FilterField{baserepo.Opt("mail", f.Mail).As("email")}
}

func ptr[T any](v T) *T { return &v }

func TestTranslate(t *testing.T) {
	tests := []struct {
		name   string
		filter baserepo.Filter
		want   []baserepo.Predicate
	}{
		{
			name:   "nil filter",
			filter: nil,
			want:   nil,
		},
		{
			name:   "all fields absent",
			filter: userFilter{},
			want:   nil,
		},
		{
			name:   "sequence becomes IN",
			filter: userFilter{Name: []string{"Alice", "Bob"}},
			want: []baserepo.Predicate{
				{Column: "name", Op: baserepo.OpIn, Value: []any{"Alice", "Bob"}},
			},
		},
		{
			name:   "empty sequence places no constraint",
			filter: userFilter{Name: []string{}},
			want:   nil,
		},
		{
			name:   "scalar becomes equality",
			filter: userFilter{Email: ptr("a@example.com")},
			want: []baserepo.Predicate{
				{Column: "email", Op: baserepo.OpEq, Value: "a@example.com"},
			},
		},
		{
			name:   "bool becomes IS",
			filter: userFilter{Active: ptr(false)},
			want: []baserepo.Predicate{
				{Column: "active", Op: baserepo.OpIs, Value: false},
			},
		},
		{
			name:   "unknown field is skipped",
			filter: userFilter{Nick: ptr("al"), Email: ptr("a@example.com")},
			want: []baserepo.Predicate{
				{Column: "email", Op: baserepo.OpEq, Value: "a@example.com"},
			},
		},
		{
			name:   "alias names the column",
			filter: aliasedFilter{Mail: ptr("a@example.com")},
			want: []baserepo.Predicate{
				{Column: "email", Op: baserepo.OpEq, Value: "a@example.com"},
			},
		},
		{
			name: "declaration order is kept",
			filter: baserepo.Fields{
				baserepo.Value("email", "x@example.com"),
				baserepo.Value("id", []int{1, 2}),
			},
			want: []baserepo.Predicate{
				{Column: "email", Op: baserepo.OpEq, Value: "x@example.com"},
				{Column: "id", Op: baserepo.OpIn, Value: []any{1, 2}},
			},
		},
		{
			name:   "byte slices are scalar",
			filter: baserepo.Fields{baserepo.Value("name", []byte("raw"))},
			want: []baserepo.Predicate{
				{Column: "name", Op: baserepo.OpEq, Value: []byte("raw")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := baserepo.Translate(usersTable, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateStrict(t *testing.T) {
	_, err := baserepo.Translate(usersTable, baserepo.Strict(userFilter{Nick: ptr("al")}))
	require.Error(t, err)

	var cfgErr *baserepo.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "users", cfgErr.Entity)
	assert.Equal(t, "nick", cfgErr.Field)
	assert.ErrorIs(t, err, baserepo.ErrConfiguration)

	// Absent unknown fields are not an error even in strict mode.
	preds, err := baserepo.Translate(usersTable, baserepo.Strict(userFilter{Email: ptr("a@example.com")}))
	require.NoError(t, err)
	assert.Len(t, preds, 1)
}

func TestTranslateStrictAlias(t *testing.T) {
	f := baserepo.Strict(baserepo.Fields{baserepo.Value("mail", "x").As("mailbox")})
	_, err := baserepo.Translate(usersTable, f)
	assert.True(t, baserepo.IsConfigurationError(err))
}

func TestStrictNilFilter(t *testing.T) {
	for name, f := range map[string]baserepo.Filter{
		"nil":        baserepo.Strict(nil),
		"nil fields": baserepo.Strict(baserepo.Fields(nil)),
	} {
		t.Run(name, func(t *testing.T) {
			preds, err := baserepo.Translate(usersTable, f)
			require.NoError(t, err)
			assert.Empty(t, preds)

			d, err := baserepo.NewListQuery(usersTable, f).Build()
			require.NoError(t, err)
			assert.Empty(t, d.Predicates())
		})
	}
}
