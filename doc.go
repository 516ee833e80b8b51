// Package baserepo provides generic repositories over a relational engine,
// with a declarative filter model and a small query DSL.
//
// A repository is parameterized by an entity type, which describes a table,
// and a read model returned to callers. Filters are translated to predicates
// (equality, IN for sequences, IS TRUE/FALSE for booleans; absent values are
// skipped). List queries are built with a forward-only builder:
//
//	q := repo.List(baserepo.Fields{baserepo.Value("name", []string{"Alice", "Bob"})}).
//		OrderBy(users.MustCol("created_at").Desc(), "id").
//		WithCursor(baserepo.NewCursor("created_at", ts, "id", 120)).
//		Limit(20)
//	rows, err := repo.Execute(ctx, q)
//
// Builder misuse is recorded on the query and reported by Err and Build;
// chaining never panics.
//
// The engine sits behind the Session interface. The sql sub-package
// implements it over database/sql with adapters for PostgreSQL, MySQL and
// SQLite; repositories run on a session but never commit.
package baserepo
