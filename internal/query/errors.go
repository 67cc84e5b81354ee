package query

import (
	"errors"
	"fmt"
)

// ConfigError is a query configuration error, returned synchronously when a
// query or count is constructed. Construction fails entirely: nothing is
// registered or cached.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Table is the table the query was requested on.
	Table string

	// Column is the offending column or subquery key, if any.
	Column string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnknownColumn indicates a select, filter, groupBy, sort or
	// generator referenced a column the schema does not declare.
	ErrCodeUnknownColumn ConfigErrorCode = "UNKNOWN_COLUMN"

	// ErrCodeOpaqueColumn indicates an opaque column was used where only
	// primitive columns are allowed.
	ErrCodeOpaqueColumn ConfigErrorCode = "OPAQUE_COLUMN"

	// ErrCodeKeyCollision indicates a subquery key equals a schema column.
	ErrCodeKeyCollision ConfigErrorCode = "KEY_COLLISION"

	// ErrCodeInvalidOptions indicates an unsupported option combination.
	ErrCodeInvalidOptions ConfigErrorCode = "INVALID_OPTIONS"

	// ErrCodeCyclicDependency indicates a generator returned, directly or
	// transitively, the query that was being constructed.
	ErrCodeCyclicDependency ConfigErrorCode = "CYCLIC_DEPENDENCY"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Table != "" && e.Column != "":
		return fmt.Sprintf("%s: %s (table=%s, column=%s)", e.Code, msg, e.Table, e.Column)
	case e.Table != "":
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, msg, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsCyclicDependency returns true if err is a cyclic dependency error.
func IsCyclicDependency(err error) bool {
	return HasCode(err, ErrCodeCyclicDependency)
}

// HasCode returns true if err is a ConfigError with the given code.
func HasCode(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// NewCyclicDependencyError reports re-entry into a query under construction.
func NewCyclicDependencyError(table, key string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeCyclicDependency,
		Table:   table,
		Message: fmt.Sprintf("query %s is already under construction", shortKey(key)),
	}
}

// ErrPlanning is returned to a generator that re-enters a query whose
// columns are still being resolved. Generators that create nested queries
// should return errors unchanged so that planning can ignore it.
var ErrPlanning = errors.New("query is being planned")

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}
