package baserepo_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baserepo"
)

type profileView struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Nickname string `db:"nickname"`
}

type AuditFields struct {
	Active bool `db:"active"`
}

type squashedView struct {
	AuditFields `db:",squash"`
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Internal    string `db:"-"`
}

// userLabel combines two columns, so it needs a mapper.
type userLabel struct {
	ID    int64
	Label string
}

var labelMapper = baserepo.MapperFuncs[*User, userLabel]{
	ToReadModelFunc: func(u *User) (userLabel, error) {
		return userLabel{ID: u.ID, Label: fmt.Sprintf("%s <%s>", u.Name, u.Email)}, nil
	},
	ToEntityFunc: func(l userLabel) (*User, error) {
		name, rest, ok := strings.Cut(l.Label, " <")
		if !ok {
			return nil, fmt.Errorf("malformed label %q", l.Label)
		}
		return &User{ID: l.ID, Name: name, Email: strings.TrimSuffix(rest, ">"), Active: true, CreatedAt: epoch}, nil
	},
}

func TestStructuralCheck(t *testing.T) {
	_, err := baserepo.New[User, *User, profileView]()
	require.Error(t, err)

	var cfgErr *baserepo.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "nickname")

	_, err = baserepo.New[User, *User, squashedView]()
	assert.NoError(t, err)
}

func TestStructuralCheckSkippedWithMapper(t *testing.T) {
	_, err := baserepo.New[User, *User, userLabel](baserepo.WithMapper(labelMapper))
	assert.NoError(t, err)

	// Without the mapper, Label is not a column.
	_, err = baserepo.New[User, *User, userLabel]()
	assert.True(t, baserepo.IsConfigurationError(err))
}

func TestMapperTypeMismatch(t *testing.T) {
	_, err := baserepo.New[User, *User, UserView](baserepo.WithMapper(labelMapper))
	assert.True(t, baserepo.IsConfigurationError(err))
}

func TestChangesetOf(t *testing.T) {
	repo, err := baserepo.New[User, *User, UserView]()
	require.NoError(t, err)

	cs, err := repo.ChangesetOf(UserView{ID: 9, Name: "Dana", Email: "d@example.com", Active: true, CreatedAt: epoch})
	require.NoError(t, err)
	assert.Equal(t, baserepo.Changeset{
		"name":       "Dana",
		"email":      "d@example.com",
		"active":     true,
		"created_at": epoch,
	}, cs)
}

func TestChangesetOfSquashed(t *testing.T) {
	repo, err := baserepo.New[User, *User, squashedView]()
	require.NoError(t, err)

	cs, err := repo.ChangesetOf(squashedView{AuditFields: AuditFields{Active: true}, ID: 1, Name: "x", Internal: "hidden"})
	require.NoError(t, err)
	assert.Equal(t, baserepo.Changeset{"name": "x", "active": true}, cs)
}

func TestChangesetOfWithMapper(t *testing.T) {
	repo, err := baserepo.New[User, *User, userLabel](baserepo.WithMapper(labelMapper))
	require.NoError(t, err)

	cs, err := repo.ChangesetOf(userLabel{ID: 4, Label: "Eve <eve@example.com>"})
	require.NoError(t, err)
	assert.Equal(t, "Eve", cs["name"])
	assert.Equal(t, "eve@example.com", cs["email"])
	assert.NotContains(t, cs, "id")
}
