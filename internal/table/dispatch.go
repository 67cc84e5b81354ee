package table

import (
	"maps"
	"slices"

	"github.com/roach88/livetable/internal/changefeed"
	"github.com/roach88/livetable/internal/query"
	"github.com/roach88/livetable/internal/registry"
	"github.com/roach88/livetable/internal/schema"
)

var membership = []string{registry.Membership}

// apply consumes one committed batch of changefeed events.
func (t *Table) apply(events []changefeed.Event) {
	t.reclaim()
	for _, ev := range events {
		switch ev.Kind {
		case changefeed.EventAdd:
			t.addRecord(ev.ID, ev.Record.Fields())
		case changefeed.EventDelete:
			t.removeRecord(ev.ID)
		case changefeed.EventUpdate:
			t.replaceRecord(ev.ID, ev.Record.Fields())
		case changefeed.EventNested:
			t.changeFields(ev.ID, ev.Fields)
		}
	}
	t.schedule()
}

func (t *Table) addRecord(id string, fields map[string]any) {
	if _, exists := t.rows[id]; exists {
		t.replaceRecord(id, fields)
		return
	}
	values, err := t.normalize(id, fields)
	if err != nil {
		t.logger.Error("dropping invalid record", "id", id, "error", err)
		return
	}

	row := query.NewRow(t.schema, values)
	t.rows[id] = row
	affected := t.tree.Queries(row, membership)
	for _, q := range affected {
		t.collect(q.AddRow(row, query.TypeAdd))
	}
	t.metrics.Dispatched(t.name, "add", len(affected))
}

func (t *Table) removeRecord(id string) {
	row, ok := t.rows[id]
	if !ok {
		return
	}
	delete(t.rows, id)
	affected := t.tree.Queries(row, membership)
	for _, q := range affected {
		t.collect(q.RemoveRow(row, query.TypeDelete))
	}
	t.metrics.Dispatched(t.name, "delete", len(affected))
}

// replaceRecord treats a replaced record as an update of every column whose
// value differs, so the row keeps its identity.
func (t *Table) replaceRecord(id string, fields map[string]any) {
	row, ok := t.rows[id]
	if !ok {
		t.addRecord(id, fields)
		return
	}
	values, err := t.normalize(id, fields)
	if err != nil {
		t.logger.Error("dropping invalid record update", "id", id, "error", err)
		return
	}
	t.updateRow(row, values)
}

func (t *Table) changeFields(id string, fields []changefeed.FieldChange) {
	row, ok := t.rows[id]
	if !ok {
		return
	}
	raw := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Field == schema.IDColumn {
			t.logger.Error("ignoring write to immutable id column", "id", id)
			continue
		}
		if f.Deleted {
			raw[f.Field] = nil
			continue
		}
		raw[f.Field] = f.New
	}
	values, err := t.schema.NormalizeRow(raw)
	if err != nil {
		t.logger.Error("dropping invalid field update", "id", id, "error", err)
		return
	}
	t.updateRow(row, values)
}

// updateRow routes a column update. Queries that matched the old row but
// not the new one lose it; queries that match only the new row gain it;
// queries that match both are handed the row in its old state together with
// a patch that writes the new values.
func (t *Table) updateRow(row *query.Row, values map[string]schema.Value) {
	next := make(map[string]schema.Value, len(values))
	for c, v := range values {
		if c == schema.IDColumn {
			continue
		}
		if !schema.Equal(row.Get(c), v) {
			next[c] = v
		}
	}
	if len(next) == 0 {
		return
	}
	columns := slices.Sorted(maps.Keys(next))

	before := t.tree.Queries(row, columns)
	prev := row.Apply(next)
	after := t.tree.Queries(row, columns)
	row.Apply(prev)

	var removed, added, changed []*query.Query
	for _, q := range before {
		if slices.Contains(after, q) {
			changed = append(changed, q)
		} else {
			removed = append(removed, q)
		}
	}
	for _, q := range after {
		if !slices.Contains(before, q) {
			added = append(added, q)
		}
	}

	for _, q := range removed {
		t.collect(q.RemoveRow(row, query.TypeUpdate))
	}
	row.Apply(next)
	for _, q := range added {
		t.collect(q.AddRow(row, query.TypeUpdate))
	}
	for _, q := range changed {
		row.Apply(prev)
		patched := false
		patch := func() {
			if !patched {
				patched = true
				row.Apply(next)
			}
		}
		t.collect(q.ChangeRow(row, prev, next, patch))
		patch()
	}

	t.metrics.Dispatched(t.name, "remove", len(removed))
	t.metrics.Dispatched(t.name, "add", len(added))
	t.metrics.Dispatched(t.name, "update", len(changed))
	t.logger.Debug("row updated",
		"id", row.ID(),
		"columns", columns,
		"removed", len(removed),
		"added", len(added),
		"changed", len(changed))
}

func (t *Table) collect(f query.Flush) {
	if f != nil {
		t.pending = append(t.pending, f)
	}
}

// schedule arranges for buffered flushes to run once the transaction ends.
func (t *Table) schedule() {
	if t.scheduled || len(t.pending) == 0 {
		return
	}
	t.scheduled = true
	t.doc.OnceAfterTransaction(t.flush)
}

func (t *Table) flush() {
	t.scheduled = false
	pending := t.pending
	t.pending = nil
	for _, f := range pending {
		f()
	}
	t.metrics.Flushed(t.name, len(pending))
}
