package query

import "github.com/roach88/livetable/internal/schema"

// Kind tags the variant of a Change.
type Kind string

const (
	KindAdd         Kind = "add"
	KindRemove      Kind = "remove"
	KindUpdate      Kind = "update"
	KindSubquery    Kind = "subquery"
	KindAddGroup    Kind = "addGroup"
	KindRemoveGroup Kind = "removeGroup"
	KindDelta       Kind = "delta"
	KindRegroup     Kind = "regroup"
)

// ChangeType says what caused a membership change: a fresh insert, an
// update that moved the row into or out of the query's scope, or a delete.
type ChangeType string

const (
	TypeAdd    ChangeType = "add"
	TypeUpdate ChangeType = "update"
	TypeDelete ChangeType = "delete"
)

// Change is a structured diff delivered to observers.
//
// Which fields are set depends on Kind:
//
//	add          Row, NewIndex (Group for grouped lists)
//	remove       Row, OldIndex (Group for grouped lists)
//	update       Row, OldIndex, NewIndex, OldValues (Group for grouped lists)
//	subquery     Key, Row, OldIndex, NewIndex, Nested for row subqueries;
//	             Group, Nested for per-group queries
//	addGroup     Group, Result (Row, NewIndex for grouped lists)
//	removeGroup  Group (Row, OldIndex for grouped lists)
//	delta        Delta, Result (Group for grouped counts)
//	regroup      Group, OldGroup, Changes
type Change struct {
	Kind Kind
	Type ChangeType

	Row      *Row
	OldIndex int
	NewIndex int

	// OldValues holds the previous values of the changed columns, plus the
	// previous result of every subquery that was replaced.
	OldValues map[string]any

	Group    schema.Value
	OldGroup schema.Value
	Result   any
	Delta    int

	Key     string
	Nested  *Change
	Changes []Change
}

// Flush delivers the notifications of one settled mutation. The table
// collects flushes and runs them once the enclosing transaction ends.
type Flush func()

// ObserverID identifies an observer registration.
type ObserverID uint64

// InternalObserver is notified before a query mutates. It must call ready
// when it wants the mutation to run, and returns its own flush.
type InternalObserver func(ready func() Change) Flush

func (c Change) empty() bool {
	return c.Kind == ""
}
