package baserepo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"baserepo"
	sqlstore "baserepo/sql"
)

var usersTable = baserepo.NewTable("users",
	baserepo.Column{Name: "id", PrimaryKey: true, AutoIncrement: true, Type: baserepo.TypeInt},
	baserepo.Column{Name: "name", Type: baserepo.TypeString},
	baserepo.Column{Name: "email", Type: baserepo.TypeString},
	baserepo.Column{Name: "active", Type: baserepo.TypeBool},
	baserepo.Column{Name: "created_at", Type: baserepo.TypeTime},
)

type User struct {
	ID        int64
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
}

func (*User) Table() *baserepo.Table { return usersTable }

func (u *User) Fields() map[string]any {
	return map[string]any{
		"id":         &u.ID,
		"name":       &u.Name,
		"email":      &u.Email,
		"active":     &u.Active,
		"created_at": &u.CreatedAt,
	}
}

type UserView struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

var ordersTable = baserepo.NewTable("orders",
	baserepo.Column{Name: "id", PrimaryKey: true, AutoIncrement: true, Type: baserepo.TypeInt},
	baserepo.Column{Name: "user_id", Type: baserepo.TypeInt},
)

const usersDDL = `CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
)`

// seedUsers is the number of rows openUsers inserts. Rows 1 to 3 are Alice,
// Bob and Carol; Carol is the only inactive user.
const seedUsers = 200

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func openUsers(t *testing.T) *sqlstore.Service {
	t.Helper()
	ctx := context.Background()

	cfg := baserepo.NewConfig(baserepo.SQLiteOptions(":memory:")...)
	svc, err := sqlstore.OpenWithName(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	require.NoError(t, svc.ExecuteSQL(ctx, usersDDL))
	for i := 1; i <= seedUsers; i++ {
		name := fmt.Sprintf("user-%03d", i)
		switch i {
		case 1:
			name = "Alice"
		case 2:
			name = "Bob"
		case 3:
			name = "Carol"
		}
		require.NoError(t, svc.ExecuteSQL(ctx,
			`INSERT INTO users (id, name, email, active, created_at) VALUES (?, ?, ?, ?, ?)`,
			i, name, fmt.Sprintf("u%d@example.com", i), i != 3, epoch.Add(time.Duration(i)*time.Minute)))
	}
	return svc
}

func newUserRepo(t *testing.T, svc *sqlstore.Service, opts ...baserepo.RepositoryOption) *baserepo.Repository[User, *User, UserView] {
	t.Helper()
	opts = append([]baserepo.RepositoryOption{baserepo.WithBoundSession(svc.Session())}, opts...)
	repo, err := baserepo.New[User, *User, UserView](opts...)
	require.NoError(t, err)
	return repo
}

func ids(users []UserView) []int64 {
	out := make([]int64, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func idRange(from, to int64) []int64 {
	var out []int64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// countingSession answers Count with a fixed number so tests can tell which
// session a repository resolved.
type countingSession struct {
	n int64
}

func (s *countingSession) Query(context.Context, *baserepo.QueryDescriptor) (baserepo.Rows, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *countingSession) QueryRaw(context.Context, baserepo.RawQuery) (baserepo.Rows, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *countingSession) Count(context.Context, *baserepo.Table, []baserepo.Predicate) (int64, error) {
	return s.n, nil
}

func (s *countingSession) UpdateWhere(context.Context, *baserepo.Table, []baserepo.Predicate, map[string]any) (int64, error) {
	return 0, nil
}

func (s *countingSession) DeleteWhere(context.Context, *baserepo.Table, []baserepo.Predicate) (int64, error) {
	return 0, nil
}

func (s *countingSession) Add(...baserepo.Entity)      {}
func (s *countingSession) Track(...baserepo.Entity)    {}
func (s *countingSession) Flush(context.Context) error { return nil }
