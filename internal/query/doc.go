// Package query implements live query results maintained incrementally as
// rows are added, removed and changed.
//
// Four result shapes are supported: counts, grouped counts, sorted lists and
// grouped sorted lists, plus per-group lists in which every distinct group
// value owns a dedicated nested query. List queries may embed subqueries: a
// generator invoked per row that returns another live query, exposed on the
// row under a key and always reading that query's current result.
//
// Mutations follow a two-pass protocol. makeChange first walks the query's
// dependents (queries embedding it), each receiving a ready continuation;
// the mutation runs once all of them are ready. Dependents therefore lift
// their rows out of sorted positions while the nested result is still old,
// and reinsert them after it settled. The returned Flush then notifies this
// query's observers followed by each dependent's flush. A table buffers the
// flushes of a transaction and runs them once it ends.
package query
