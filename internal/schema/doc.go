// Package schema describes the shape of a table: its named, typed columns and
// the literal filters that may be expressed over them.
//
// A schema always contains the identifier column "id" (a string). Columns of
// type string, number, bigint, boolean or null are primitive: their values are
// directly comparable and hashable and may appear in filters, group keys and
// sort comparators. Columns of any other declared type are opaque and may only
// be carried along in rows.
//
// Column access is string keyed, so every name is validated once, when a
// schema, filter or row is built, and unknown columns are rejected then.
//
// Schemas can be written in Go with New, or compiled from a CUE manifest:
//
//	table: {
//		todos: {
//			id:       "string"
//			title:    "string"
//			done:     "boolean"
//			priority: "number"
//		}
//	}
package schema
