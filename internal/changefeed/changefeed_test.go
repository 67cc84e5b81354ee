package changefeed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(m *Map) *[][]Event {
	var batches [][]Event
	m.ObserveDeep(func(events []Event) {
		batches = append(batches, events)
	})
	return &batches
}

func TestMap_SetOutsideTransactionDeliversAdd(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	batches := collect(m)

	r := m.Set("a", map[string]any{"title": "x"})

	require.Len(t, *batches, 1)
	ev := (*batches)[0][0]
	assert.Equal(t, EventAdd, ev.Kind)
	assert.Equal(t, "a", ev.ID)
	assert.Same(t, r, ev.Record)
}

func TestDoc_TransactCoalescesPerRecord(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	m.Set("a", map[string]any{"n": 1, "s": "x"})
	m.Set("gone", map[string]any{"n": 9})
	batches := collect(m)

	err := doc.Transact(func() error {
		r, _ := m.Get("a")
		require.NoError(t, r.Set("n", 2))
		require.NoError(t, r.Set("n", 3))
		require.NoError(t, r.Set("s", "x"))
		m.Set("b", map[string]any{"n": 1})
		require.NoError(t, m.Delete("gone"))
		m.Set("tmp", nil)
		return m.Delete("tmp")
	})
	require.NoError(t, err)

	require.Len(t, *batches, 1)
	events := (*batches)[0]
	require.Len(t, events, 3)

	assert.Equal(t, EventNested, events[0].Kind)
	assert.Equal(t, []FieldChange{{Field: "n", Old: 1, New: 3}}, events[0].Fields)

	assert.Equal(t, EventAdd, events[1].Kind)
	assert.Equal(t, "b", events[1].ID)

	assert.Equal(t, EventDelete, events[2].Kind)
	assert.Equal(t, map[string]any{"n": 9}, events[2].Old)
	assert.Nil(t, events[2].Record)
}

func TestDoc_ReplaceIsUpdate(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	m.Set("a", map[string]any{"n": 1})
	batches := collect(m)

	m.Set("a", map[string]any{"n": 2})

	require.Len(t, *batches, 1)
	ev := (*batches)[0][0]
	assert.Equal(t, EventUpdate, ev.Kind)
	assert.Equal(t, map[string]any{"n": 1}, ev.Old)
	v, _ := ev.Record.Get("n")
	assert.Equal(t, 2, v)
}

func TestDoc_NoEventForNetNoop(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	r := m.Set("a", map[string]any{"n": 1})
	batches := collect(m)

	require.NoError(t, doc.Transact(func() error {
		require.NoError(t, r.Set("n", 2))
		return r.Set("n", 1)
	}))
	assert.Empty(t, *batches)
}

func TestDoc_FieldDeletion(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	r := m.Set("a", map[string]any{"n": 1, "s": "x"})
	batches := collect(m)

	require.NoError(t, r.Delete("s"))

	require.Len(t, *batches, 1)
	assert.Equal(t, []FieldChange{{Field: "s", Old: "x", Deleted: true}}, (*batches)[0][0].Fields)
}

func TestDoc_NestedTransactJoinsOuter(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	batches := collect(m)

	require.NoError(t, doc.Transact(func() error {
		m.Set("a", nil)
		return doc.Transact(func() error {
			m.Set("b", nil)
			assert.Empty(t, *batches, "inner transact does not commit")
			return nil
		})
	}))
	require.Len(t, *batches, 1)
	assert.Len(t, (*batches)[0], 2)
}

func TestDoc_ErrorRollsBack(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	r := m.Set("a", map[string]any{"n": 1})
	batches := collect(m)
	boom := errors.New("boom")

	err := doc.Transact(func() error {
		require.NoError(t, r.Set("n", 5))
		m.Set("b", nil)
		require.NoError(t, m.Delete("a"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Empty(t, *batches)
	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, r, got)
	v, _ := got.Get("n")
	assert.Equal(t, 1, v)
	assert.False(t, m.Has("b"))
}

func TestDoc_OnceAfterTransactionRunsAfterAllMaps(t *testing.T) {
	doc := NewDoc()
	a := doc.Map("a")
	b := doc.Map("b")
	var log []string

	a.ObserveDeep(func([]Event) {
		log = append(log, "a")
		doc.OnceAfterTransaction(func() { log = append(log, "after-a") })
	})
	b.ObserveDeep(func([]Event) {
		log = append(log, "b")
		doc.OnceAfterTransaction(func() { log = append(log, "after-b") })
	})

	require.NoError(t, doc.Transact(func() error {
		a.Set("1", nil)
		b.Set("1", nil)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "after-a", "after-b"}, log)
}

func TestDoc_OnceAfterTransactionOutsideRunsNow(t *testing.T) {
	doc := NewDoc()
	ran := false
	doc.OnceAfterTransaction(func() { ran = true })
	assert.True(t, ran)
}

func TestMap_Unobserve(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	calls := 0
	stop := m.ObserveDeep(func([]Event) { calls++ })

	m.Set("a", nil)
	stop()
	m.Set("b", nil)
	assert.Equal(t, 1, calls)
}

func TestRecord_SetAfterDelete(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	r := m.Set("a", nil)
	require.NoError(t, m.Delete("a"))

	assert.ErrorIs(t, r.Set("n", 1), ErrNoRecord)
	assert.ErrorIs(t, m.Delete("a"), ErrNoRecord)
}

func TestMap_KeysAndForEach(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("todos")
	m.Set("b", nil)
	m.Set("a", nil)

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	var seen []string
	m.ForEach(func(id string, _ *Record) { seen = append(seen, id) })
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Same(t, m, doc.Map("todos"))
}
