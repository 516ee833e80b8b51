package baserepo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baserepo"
)

func orderNames(d *baserepo.QueryDescriptor) []string {
	var out []string
	for _, term := range d.Order() {
		out = append(out, term.String())
	}
	return out
}

func requireBuildError(t *testing.T, q *baserepo.ListQuery, call string) *baserepo.QueryBuildError {
	t.Helper()
	_, err := q.Build()
	require.Error(t, err)
	var qbErr *baserepo.QueryBuildError
	require.True(t, errors.As(err, &qbErr), "want *QueryBuildError, got %T", err)
	assert.Equal(t, call, qbErr.Call)
	assert.ErrorIs(t, err, baserepo.ErrQueryBuild)
	return qbErr
}

func TestListQueryDefaults(t *testing.T) {
	d, err := baserepo.NewListQuery(usersTable, nil).Build()
	require.NoError(t, err)

	assert.Empty(t, d.Predicates())
	assert.Equal(t, []string{"id ASC"}, orderNames(d))
	assert.Equal(t, baserepo.NoPaging{}, d.Paging())
}

func TestListQueryWhere(t *testing.T) {
	d, err := baserepo.NewListQuery(usersTable, nil).
		Where(baserepo.Fields{baserepo.Value("name", "Alice")}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []baserepo.Predicate{{Column: "name", Op: baserepo.OpEq, Value: "Alice"}}, d.Predicates())
}

func TestListQueryWhereRejected(t *testing.T) {
	f := baserepo.Fields{baserepo.Value("name", "Alice")}

	t.Run("after constructor filter", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, f).Where(f)
		requireBuildError(t, q, "Where")
	})
	t.Run("twice", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, nil).Where(f).Where(f)
		requireBuildError(t, q, "Where")
	})
	t.Run("after order", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, nil).OrderBy("id").Where(f)
		requireBuildError(t, q, "Where")
	})
	t.Run("empty filter is a no-op", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, f).Where(nil).Where(userFilter{})
		_, err := q.Build()
		require.NoError(t, err)
	})
}

func TestListQueryOrder(t *testing.T) {
	name := usersTable.MustCol("name")

	tests := []struct {
		name  string
		items []any
		want  []string
	}{
		{"strings", []any{"name", "id"}, []string{"name ASC", "id ASC"}},
		{"string slice", []any{[]string{"email", "id"}}, []string{"email ASC", "id ASC"}},
		{"column", []any{name.Desc()}, []string{"name DESC"}},
		{"label", []any{name.As("display_name")}, []string{"name ASC"}},
		{"direction helpers", []any{baserepo.Desc("created_at"), baserepo.Asc(name)}, []string{"created_at DESC", "name ASC"}},
		{"first occurrence wins", []any{"name", baserepo.Desc("name"), "id"}, []string{"name ASC", "id ASC"}},
		{"detached column", []any{&baserepo.Column{Name: "email"}}, []string{"email ASC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := baserepo.NewListQuery(usersTable, nil).OrderBy(tt.items...).Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, orderNames(d))
		})
	}
}

func TestListQueryOrderRejected(t *testing.T) {
	tests := []struct {
		name  string
		items []any
	}{
		{"unknown column", []any{"nickname"}},
		{"foreign column", []any{ordersTable.MustCol("user_id")}},
		{"nil item", []any{nil}},
		{"unsupported item", []any{42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireBuildError(t, baserepo.NewListQuery(usersTable, nil).OrderBy(tt.items...), "OrderBy")
		})
	}

	t.Run("twice", func(t *testing.T) {
		requireBuildError(t, baserepo.NewListQuery(usersTable, nil).OrderBy("id").OrderBy("name"), "OrderBy")
	})
}

func TestListQueryOffsetPaging(t *testing.T) {
	d, err := baserepo.NewListQuery(usersTable, nil).OrderBy("name").Paging(3, 25).Build()
	require.NoError(t, err)

	p, ok := d.Paging().(baserepo.OffsetPaging)
	require.True(t, ok)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 25, p.Size)
	assert.Equal(t, 50, p.Offset())

	requireBuildError(t, baserepo.NewListQuery(usersTable, nil).Paging(0, 10), "Paging")
	requireBuildError(t, baserepo.NewListQuery(usersTable, nil).Paging(1, 0), "Paging")
}

func TestListQueryCursor(t *testing.T) {
	d, err := baserepo.NewListQuery(usersTable, nil).
		OrderBy(baserepo.Desc("created_at"), "id").
		WithCursor(baserepo.NewCursor("created_at", "2024-01-01T00:10:00Z", "id", 120)).
		Limit(20).
		Build()
	require.NoError(t, err)

	p, ok := d.Paging().(baserepo.CursorPaging)
	require.True(t, ok)
	assert.Equal(t, 20, p.Size)
	assert.Equal(t, []string{"created_at", "id"}, p.After.Keys())

	// Values are coerced to the column types.
	id, _ := p.After.Get("id")
	assert.Equal(t, int64(120), id)
	ts, _ := p.After.Get("created_at")
	assert.Equal(t, epoch.Add(10*60e9), ts)
}

func TestListQueryEmptyCursor(t *testing.T) {
	d, err := baserepo.NewListQuery(usersTable, nil).OrderBy("id").WithCursor(nil).Limit(5).Build()
	require.NoError(t, err)

	p := d.Paging().(baserepo.CursorPaging)
	assert.Empty(t, p.After)
	assert.Equal(t, 5, p.Size)
}

func TestListQueryCursorRejected(t *testing.T) {
	ordered := func() *baserepo.ListQuery {
		return baserepo.NewListQuery(usersTable, nil).OrderBy("name", "id")
	}

	tests := []struct {
		name   string
		cursor baserepo.Cursor
	}{
		{"permutation", baserepo.NewCursor("id", 1, "name", "a")},
		{"subset", baserepo.NewCursor("name", "a")},
		{"superset", baserepo.NewCursor("name", "a", "id", 1, "email", "x")},
		{"other column", baserepo.NewCursor("email", "x", "id", 1)},
		{"null value", baserepo.NewCursor("name", nil, "id", 1)},
		{"uncoercible value", baserepo.NewCursor("name", "a", "id", "one")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireBuildError(t, ordered().WithCursor(tt.cursor).Limit(10), "WithCursor")
		})
	}

	t.Run("without order", func(t *testing.T) {
		requireBuildError(t, baserepo.NewListQuery(usersTable, nil).WithCursor(nil), "WithCursor")
	})
	t.Run("empty order", func(t *testing.T) {
		requireBuildError(t, baserepo.NewListQuery(usersTable, nil).OrderBy().WithCursor(nil), "WithCursor")
	})
	t.Run("limit without cursor", func(t *testing.T) {
		requireBuildError(t, ordered().Limit(10), "Limit")
	})
	t.Run("missing limit", func(t *testing.T) {
		requireBuildError(t, ordered().WithCursor(nil), "Build")
	})
	t.Run("non-positive limit", func(t *testing.T) {
		requireBuildError(t, ordered().WithCursor(nil).Limit(0), "Limit")
	})
	t.Run("mismatch against a single order column", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, nil).OrderBy("id").
			WithCursor(baserepo.NewCursor("name", "Z")).Limit(20)
		qbErr := requireBuildError(t, q, "WithCursor")
		assert.Contains(t, qbErr.Reason, "[name]")
		assert.Contains(t, qbErr.Reason, "[id]")
	})
}

func TestListQueryPagingModesExclusive(t *testing.T) {
	t.Run("cursor after offset", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, nil).OrderBy("id").Paging(1, 10).WithCursor(nil)
		requireBuildError(t, q, "WithCursor")
	})
	t.Run("offset after cursor", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, nil).OrderBy("id").WithCursor(nil).Limit(10).Paging(1, 10)
		requireBuildError(t, q, "Paging")
	})
	t.Run("offset after cursor without limit", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, nil).OrderBy("id").WithCursor(nil).Paging(1, 10)
		requireBuildError(t, q, "Paging")
	})
	t.Run("limit after offset", func(t *testing.T) {
		q := baserepo.NewListQuery(usersTable, nil).OrderBy("id").Paging(1, 10).Limit(10)
		requireBuildError(t, q, "Limit")
	})
}

func TestListQueryFirstErrorWins(t *testing.T) {
	q := baserepo.NewListQuery(usersTable, nil).
		OrderBy("nickname").
		Paging(0, 0).
		WithCursor(nil)

	require.Error(t, q.Err())
	var qbErr *baserepo.QueryBuildError
	require.True(t, errors.As(q.Err(), &qbErr))
	assert.Equal(t, "OrderBy", qbErr.Call)
}

func TestListQuerySealed(t *testing.T) {
	q := baserepo.NewListQuery(usersTable, nil).OrderBy("id")
	first, err := q.Build()
	require.NoError(t, err)

	again, err := q.Build()
	require.NoError(t, err)
	assert.Same(t, first, again)

	q.Paging(1, 10)
	_, err = q.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, baserepo.ErrQuerySealed)
	assert.ErrorIs(t, err, baserepo.ErrQueryBuild)
}

func TestListQueryNoPrimaryKey(t *testing.T) {
	logs := baserepo.NewTable("logs", baserepo.Column{Name: "line"})

	requireBuildError(t, baserepo.NewListQuery(logs, nil), "Build")

	_, err := baserepo.NewListQuery(logs, nil).OrderBy("line").Build()
	require.NoError(t, err)
}

func TestListQueryStrictFilter(t *testing.T) {
	q := baserepo.NewListQuery(usersTable, baserepo.Strict(baserepo.Fields{baserepo.Value("nick", "x")}))
	_, err := q.Build()
	assert.True(t, baserepo.IsConfigurationError(err))
}

func TestListQuerySkipped(t *testing.T) {
	q := baserepo.NewListQuery(usersTable, baserepo.Fields{
		baserepo.Value("nick", "x"),
		baserepo.Value("name", "Alice"),
	})
	assert.Equal(t, []string{"nick"}, q.Skipped())
}

func TestRawQueryKind(t *testing.T) {
	tests := []struct {
		sql  string
		want baserepo.StatementKind
	}{
		{"SELECT * FROM users", baserepo.StatementSelect},
		{"  select id from users", baserepo.StatementSelect},
		{"-- leading comment\nSELECT 1", baserepo.StatementSelect},
		{"/* hint */ SELECT 1", baserepo.StatementSelect},
		{"(SELECT 1) UNION (SELECT 2)", baserepo.StatementSelect},
		{"WITH x AS (SELECT 1) SELECT * FROM x", baserepo.StatementSelect},
		{"WITH x AS (DELETE FROM users RETURNING id) SELECT * FROM x", baserepo.StatementDelete},
		{"WITH x AS (SELECT id FROM users WHERE name = 'update') SELECT * FROM x", baserepo.StatementSelect},
		{`WITH x AS (SELECT "delete" FROM audit WHERE note = 'it''s -- an insert') SELECT * FROM x`, baserepo.StatementSelect},
		{"WITH x AS (SELECT 1 /* then delete */) SELECT * FROM x", baserepo.StatementSelect},
		{"WITH x AS (UPDATE users SET name = 'select' RETURNING id) SELECT * FROM x", baserepo.StatementUpdate},
		{"INSERT INTO users (name) VALUES ('a')", baserepo.StatementInsert},
		{"update users set name = 'a'", baserepo.StatementUpdate},
		{"DELETE FROM users", baserepo.StatementDelete},
		{"VACUUM", baserepo.StatementUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, baserepo.RawQuery{SQL: tt.sql}.Kind())
		})
	}
}
