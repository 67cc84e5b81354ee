// Package harness runs live-query scenarios and checks them against
// expectations and a SQL oracle.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: todo-sorted
//	description: "Open todos stay sorted by priority"
//	schemas:
//	  - schema.cue        # CUE manifest, relative to the scenario file
//	tables:               # inline tables, merged with the manifests
//	  todos: { title: string, priority: number, done: boolean }
//	queries:
//	  - name: open
//	    table: todos
//	    filter: { done: false }
//	    sort: [priority, -title]
//	  - name: by_done
//	    table: todos
//	    count: true
//	    group_by: done
//	steps:
//	  - insert: { table: todos, id: a, values: { title: write, priority: 2, done: false } }
//	  - update: { table: todos, id: a, values: { done: true } }
//	  - transaction:
//	      - delete: { table: todos, id: a }
//	assertions:
//	  - type: result
//	    query: open
//	    expect: []
//	  - type: change_count
//	    query: open
//	    count: 2
//	  - type: oracle
//	    query: by_done
//
// Nested queries appear under subqueries (keyed by the row key they produce)
// and per_group. Their filters may reference the embedding row with "$col"
// or the group value with "$group"; "$$" escapes a literal dollar sign.
//
// A query with an error field must fail construction with that config
// error code; it is not observed.
//
// # Assertion Types
//
//   - result: the exported query result equals expect
//   - change_count: the query was notified count times, optionally of one kind
//   - oracle: the query result agrees with the same question asked of SQLite
//
// # Deterministic Testing
//
// Every trace event is stamped by a testutil.DeterministicClock and rows
// inserted without an id get sequential ids, so traces are reproducible and
// can be compared against golden files with RunWithGolden.
package harness
