package baserepo

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Env is the process-wide environment shared by repositories. It is built
// once at the composition root and passed to every repository with WithEnv;
// repositories never modify it.
type Env struct {
	// Provider supplies the session for calls without an explicit one.
	Provider SessionProvider

	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer

	// StrictSessionBinding rejects repositories that bind a session while a
	// provider is configured. By default that only logs a warning and the
	// provider wins.
	StrictSessionBinding bool

	Pagination PaginationConfig
}

// RepositoryOption configures a repository at construction.
type RepositoryOption func(*repositoryConfig)

type repositoryConfig struct {
	env       Env
	bound     Session
	mapper    any
	name      string
	loggerSet bool
}

// WithEnv sets the shared environment.
func WithEnv(env Env) RepositoryOption {
	return func(c *repositoryConfig) {
		logger := c.env.Logger
		c.env = env
		if c.loggerSet {
			c.env.Logger = logger
		}
	}
}

// WithBoundSession binds a session to the repository. It is used only when a
// call has no explicit session and no provider is configured.
//
// Every entity the repository loads is tracked by the bound session until it
// is flushed or reset, so prefer a Provider that hands out one session per
// unit of work.
func WithBoundSession(s Session) RepositoryOption {
	return func(c *repositoryConfig) {
		c.bound = s
	}
}

// WithMapper replaces structural conversion with a custom mapper. m must
// implement Mapper[P, R] for the repository's entity pointer and read model
// types, for example a MapperFuncs value.
func WithMapper(m any) RepositoryOption {
	return func(c *repositoryConfig) {
		c.mapper = m
	}
}

// WithLogger overrides the logger of the environment for one repository.
func WithLogger(l *slog.Logger) RepositoryOption {
	return func(c *repositoryConfig) {
		c.env.Logger = l
		c.loggerSet = true
	}
}

// WithName sets the entity name used in logs, metrics and errors. It defaults
// to the table name.
func WithName(name string) RepositoryOption {
	return func(c *repositoryConfig) {
		c.name = name
	}
}
