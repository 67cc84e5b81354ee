package table

import "errors"

// Mutation errors. Column and type errors are the schema package's
// ErrUnknownColumn and ErrTypeMismatch.
var (
	// ErrRowNotFound indicates an update or delete of an unknown id.
	ErrRowNotFound = errors.New("row not found")

	// ErrDuplicateID indicates an insert with an id that is already present.
	ErrDuplicateID = errors.New("duplicate row id")

	// ErrImmutableID indicates an attempt to update the id column.
	ErrImmutableID = errors.New("row id is immutable")
)
