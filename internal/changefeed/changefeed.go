// Package changefeed is an in-memory transactional document of record maps.
//
// A Doc holds named Maps; a Map holds Records keyed by id; a Record holds
// named fields. Every mutation happens inside a transaction, implicitly if
// the caller did not open one. When the outermost transaction commits, each
// Map delivers one batch of events to its deep observers, coalesced per
// record from its state when the transaction first touched it:
//
//	record created               EventAdd
//	record deleted               EventDelete
//	record replaced by Set       EventUpdate
//	fields of a record changed   EventNested, with old and new field values
//
// After every batch is delivered, callbacks registered with
// OnceAfterTransaction run once, in registration order.
package changefeed

import (
	"errors"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// EventKind tags a change of one record.
type EventKind string

const (
	EventAdd    EventKind = "add"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
	EventNested EventKind = "nested"
)

// FieldChange is one changed field of a nested event.
type FieldChange struct {
	Field   string
	Old     any
	New     any
	Deleted bool
}

// Event describes the net change of one record in one transaction.
type Event struct {
	Kind EventKind
	ID   string

	// Record is the current record; nil for EventDelete.
	Record *Record

	// Old holds the fields before the transaction, for EventUpdate and
	// EventDelete.
	Old map[string]any

	// Fields lists changed fields in name order, for EventNested.
	Fields []FieldChange
}

// ErrNoRecord is returned when a record id is not in the map.
var ErrNoRecord = errors.New("no such record")

// Doc is a transactional document. It is not safe for concurrent use.
type Doc struct {
	maps  map[string]*Map
	order []*Map

	depth      int
	committing bool
	touched    []*Map
	after      []func()
}

// NewDoc creates an empty document.
func NewDoc() *Doc {
	return &Doc{maps: make(map[string]*Map)}
}

// Map returns the map called name, creating it if needed.
func (d *Doc) Map(name string) *Map {
	if m := d.maps[name]; m != nil {
		return m
	}
	m := &Map{
		doc:     d,
		name:    name,
		records: make(map[string]*Record),
	}
	d.maps[name] = m
	d.order = append(d.order, m)
	return m
}

// Transact runs fn in a transaction. Nested calls join the outermost
// transaction. If the outermost fn returns an error, every record it touched
// is restored and no events are delivered.
func (d *Doc) Transact(fn func() error) error {
	d.depth++
	err := fn()
	d.depth--
	if d.depth > 0 {
		return err
	}

	touched := d.touched
	d.touched = nil
	if err != nil {
		for _, m := range touched {
			m.rollback()
		}
		d.runAfter()
		return err
	}

	committing := d.committing
	d.committing = true
	for _, m := range touched {
		events := m.commit()
		if len(events) == 0 {
			continue
		}
		for _, o := range slices.Clone(m.observers) {
			o.fn(events)
		}
	}
	d.committing = committing
	d.runAfter()
	return nil
}

// InTransaction reports whether a transaction is open or committing.
func (d *Doc) InTransaction() bool {
	return d.depth > 0 || d.committing
}

// OnceAfterTransaction runs fn once the current transaction has delivered
// its events, or immediately if no transaction is open.
func (d *Doc) OnceAfterTransaction(fn func()) {
	if !d.InTransaction() {
		fn()
		return
	}
	d.after = append(d.after, fn)
}

func (d *Doc) runAfter() {
	if d.committing {
		// an enclosing commit runs them once its own delivery is done
		return
	}
	pending := d.after
	d.after = nil
	for _, fn := range pending {
		fn()
	}
}

func (d *Doc) auto(fn func()) {
	if d.depth > 0 {
		fn()
		return
	}
	_ = d.Transact(func() error {
		fn()
		return nil
	})
}

type deepObserver struct {
	id int
	fn func([]Event)
}

// snapshot is a record's state when a transaction first touched it.
type snapshot struct {
	record *Record
	fields map[string]any
}

// Map is a collection of records keyed by id.
type Map struct {
	doc     *Doc
	name    string
	records map[string]*Record

	observers []deepObserver
	nextID    int

	snapshots map[string]snapshot
	touches   []string
}

// Name returns the map's name in its document.
func (m *Map) Name() string { return m.name }

// Doc returns the owning document.
func (m *Map) Doc() *Doc { return m.doc }

// Get returns the record with id.
func (m *Map) Get(id string) (*Record, bool) {
	r, ok := m.records[id]
	return r, ok
}

// Has reports whether id is present.
func (m *Map) Has(id string) bool {
	_, ok := m.records[id]
	return ok
}

// Len returns the number of records.
func (m *Map) Len() int { return len(m.records) }

// Keys returns the record ids in lexical order.
func (m *Map) Keys() []string {
	return slices.Sorted(maps.Keys(m.records))
}

// ForEach calls fn for every record in id order.
func (m *Map) ForEach(fn func(id string, r *Record)) {
	for _, id := range m.Keys() {
		fn(id, m.records[id])
	}
}

// Set stores a new record with fields under id, replacing any record there.
func (m *Map) Set(id string, fields map[string]any) *Record {
	r := &Record{m: m, id: id, fields: maps.Clone(fields)}
	if r.fields == nil {
		r.fields = make(map[string]any)
	}
	m.doc.auto(func() {
		m.touch(id)
		m.records[id] = r
	})
	return r
}

// Delete removes the record with id.
func (m *Map) Delete(id string) error {
	if !m.Has(id) {
		return ErrNoRecord
	}
	m.doc.auto(func() {
		m.touch(id)
		delete(m.records, id)
	})
	return nil
}

// ObserveDeep registers fn for every committed batch of events and returns
// a function that unregisters it.
func (m *Map) ObserveDeep(fn func([]Event)) func() {
	m.nextID++
	id := m.nextID
	m.observers = append(m.observers, deepObserver{id: id, fn: fn})
	return func() {
		m.observers = slices.DeleteFunc(m.observers, func(o deepObserver) bool { return o.id == id })
	}
}

func (m *Map) touch(id string) {
	if m.snapshots == nil {
		m.snapshots = make(map[string]snapshot)
		m.doc.touched = append(m.doc.touched, m)
	}
	if _, ok := m.snapshots[id]; ok {
		return
	}
	s := snapshot{}
	if r, ok := m.records[id]; ok {
		s.record = r
		s.fields = maps.Clone(r.fields)
	}
	m.snapshots[id] = s
	m.touches = append(m.touches, id)
}

func (m *Map) commit() []Event {
	var events []Event
	for _, id := range m.touches {
		s := m.snapshots[id]
		cur, exists := m.records[id]
		switch {
		case s.record == nil && exists:
			events = append(events, Event{Kind: EventAdd, ID: id, Record: cur})
		case s.record != nil && !exists:
			events = append(events, Event{Kind: EventDelete, ID: id, Old: s.fields})
		case s.record != nil && cur != s.record:
			events = append(events, Event{Kind: EventUpdate, ID: id, Record: cur, Old: s.fields})
		case s.record != nil:
			if fields := diff(s.fields, cur.fields); len(fields) > 0 {
				events = append(events, Event{Kind: EventNested, ID: id, Record: cur, Fields: fields})
			}
		}
	}
	m.snapshots = nil
	m.touches = nil
	return events
}

func (m *Map) rollback() {
	for _, id := range m.touches {
		s := m.snapshots[id]
		if s.record == nil {
			delete(m.records, id)
			continue
		}
		s.record.fields = s.fields
		m.records[id] = s.record
	}
	m.snapshots = nil
	m.touches = nil
}

func diff(old, cur map[string]any) []FieldChange {
	var out []FieldChange
	for _, f := range slices.Sorted(maps.Keys(cur)) {
		prev, had := old[f]
		if had && reflect.DeepEqual(prev, cur[f]) {
			continue
		}
		out = append(out, FieldChange{Field: f, Old: prev, New: cur[f]})
	}
	for _, f := range slices.Sorted(maps.Keys(old)) {
		if _, kept := cur[f]; !kept {
			out = append(out, FieldChange{Field: f, Old: old[f], Deleted: true})
		}
	}
	slices.SortFunc(out, func(a, b FieldChange) int {
		return strings.Compare(a.Field, b.Field)
	})
	return out
}

// Record is a set of named fields inside a Map.
type Record struct {
	m      *Map
	id     string
	fields map[string]any
}

// ID returns the record's key in its map.
func (r *Record) ID() string { return r.id }

// Get returns a field value.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Fields returns a copy of every field.
func (r *Record) Fields() map[string]any {
	return maps.Clone(r.fields)
}

// Set writes a field. Writing to a record no longer in its map is an error.
func (r *Record) Set(field string, v any) error {
	if cur, ok := r.m.records[r.id]; !ok || cur != r {
		return ErrNoRecord
	}
	r.m.doc.auto(func() {
		r.m.touch(r.id)
		r.fields[field] = v
	})
	return nil
}

// Delete removes a field.
func (r *Record) Delete(field string) error {
	if cur, ok := r.m.records[r.id]; !ok || cur != r {
		return ErrNoRecord
	}
	r.m.doc.auto(func() {
		r.m.touch(r.id)
		delete(r.fields, field)
	})
	return nil
}
