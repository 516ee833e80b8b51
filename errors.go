package baserepo

import (
	"errors"
	"fmt"
)

// Sentinel errors for the repository error taxonomy. Every typed error below
// matches its sentinel with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrQueryBuild    = errors.New("query build error")
	ErrNotFound      = errors.New("record not found")
	ErrEngine        = errors.New("engine error")

	// Session resolution
	ErrNoSession = errors.New("neither an explicit session, a session provider nor a bound session is configured")

	// Builder lifecycle
	ErrQuerySealed = errors.New("query has already been built; create a new query")
)

// ConfigurationError reports a static misconfiguration: a bad filter alias,
// a strict-mode mapping failure, a read model that does not match the entity
// columns, or a missing session source.
type ConfigurationError struct {
	Entity  string
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("configuration error for %s.%s: %s", e.Entity, e.Field, msg)
	}
	if e.Entity != "" {
		return fmt.Sprintf("configuration error for %s: %s", e.Entity, msg)
	}
	return fmt.Sprintf("configuration error: %s", msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// QueryBuildError reports an invalid query chain. Call names the builder
// method that was rejected.
type QueryBuildError struct {
	Call   string
	Reason string
	Err    error
}

func (e *QueryBuildError) Error() string {
	if e.Call == "" {
		return fmt.Sprintf("query build error: %s", e.Reason)
	}
	return fmt.Sprintf("query build error in %s: %s", e.Call, e.Reason)
}

func (e *QueryBuildError) Unwrap() error { return e.Err }

func (e *QueryBuildError) Is(target error) bool { return target == ErrQueryBuild }

// NotFoundError is returned by the OrFail read paths when no row matches.
type NotFoundError struct {
	Entity string
	Filter Filter
}

func (e *NotFoundError) Error() string {
	if e.Filter == nil {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found with filter=%+v", e.Entity, e.Filter)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// EngineErrorKind classifies an engine failure using the active adapter. The
// repository does not act on the kind; it is exposed for callers.
type EngineErrorKind string

const (
	EngineErrorUnknown    EngineErrorKind = "unknown"
	EngineErrorUnique     EngineErrorKind = "unique_violation"
	EngineErrorForeignKey EngineErrorKind = "foreign_key_violation"
	EngineErrorConnection EngineErrorKind = "connection"
)

// EngineError is an opaque passthrough of a failure raised by the underlying
// relational engine, such as a constraint violation.
type EngineError struct {
	Op    string
	Table string
	Kind  EngineErrorKind
	Err   error
}

func (e *EngineError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("engine error during %s on table %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("engine error during %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngine }

// RepositoryError wraps an error with repository context.
type RepositoryError struct {
	EntityName string
	Operation  string
	Err        error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error in %s.%s: %v", e.EntityName, e.Operation, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Constructor functions

// NewConfigurationError creates a configuration error for an entity.
func NewConfigurationError(entity, message string) *ConfigurationError {
	return &ConfigurationError{Entity: entity, Message: message}
}

// NewConfigurationErrorForField creates a configuration error for a specific field.
func NewConfigurationErrorForField(entity, field, message string) *ConfigurationError {
	return &ConfigurationError{Entity: entity, Field: field, Message: message}
}

// NewQueryBuildError creates a query build error for the named builder call.
func NewQueryBuildError(call, format string, args ...any) *QueryBuildError {
	return &QueryBuildError{Call: call, Reason: fmt.Sprintf(format, args...)}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(entity string, f Filter) *NotFoundError {
	return &NotFoundError{Entity: entity, Filter: f}
}

// Wrapper functions for adding context to errors

// WrapEngineError wraps an error as an engine error. Errors that already belong
// to the taxonomy are returned unchanged.
func WrapEngineError(err error, op, table string, kind EngineErrorKind) error {
	if err == nil {
		return nil
	}
	if isTaxonomy(err) {
		return err
	}
	if kind == "" {
		kind = EngineErrorUnknown
	}
	return &EngineError{Op: op, Table: table, Kind: kind, Err: err}
}

// WrapRepositoryError wraps an error with repository context.
func WrapRepositoryError(err error, entityName, operation string) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{
		EntityName: entityName,
		Operation:  operation,
		Err:        err,
	}
}

func isTaxonomy(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrQueryBuild) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEngine)
}

// Error checking functions

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsQueryBuildError checks if an error is a query build error.
func IsQueryBuildError(err error) bool {
	var qbErr *QueryBuildError
	return errors.As(err, &qbErr)
}

// IsNotFoundError checks if an error is a not found error.
func IsNotFoundError(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// IsEngineError checks if an error is an engine error.
func IsEngineError(err error) bool {
	var engErr *EngineError
	return errors.As(err, &engErr)
}
