package registry

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livetable/internal/reclaim"
	"github.com/roach88/livetable/internal/schema"
)

type entry struct {
	name string
}

type row map[string]schema.Value

func (r row) Get(c string) schema.Value { return r[c] }

func testSchema() *schema.Schema {
	return schema.MustNew("items",
		schema.Column{Name: "kind", Type: schema.TypeString},
		schema.Column{Name: "n", Type: schema.TypeNumber},
		schema.Column{Name: "blob", Type: schema.TypeOpaque},
	)
}

func names(es []*entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.name
	}
	return out
}

// =============================================================================
// Routing
// =============================================================================

func TestTree_RoutesByFilter(t *testing.T) {
	tree := New[entry](testSchema(), reclaim.NewQueue())

	all := &entry{name: "all"}
	books := &entry{name: "books"}
	oneBook := &entry{name: "one-book"}
	tree.Insert(all, nil, []string{"id", "n"})
	tree.Insert(books, schema.Filter{"kind": "book"}, []string{"id"})
	tree.Insert(oneBook, schema.Filter{"kind": "book", "n": float64(1)}, []string{"id"})

	got := tree.Queries(row{"kind": "book", "n": float64(1)}, []string{Membership})
	assert.ElementsMatch(t, []string{"all", "books", "one-book"}, names(got))

	got = tree.Queries(row{"kind": "book", "n": float64(2)}, []string{Membership})
	assert.ElementsMatch(t, []string{"all", "books"}, names(got))

	got = tree.Queries(row{"kind": "pen", "n": float64(1)}, []string{Membership})
	assert.Equal(t, []string{"all"}, names(got))

	runtime.KeepAlive(all)
	runtime.KeepAlive(books)
	runtime.KeepAlive(oneBook)
}

func TestTree_RoutesByInterest(t *testing.T) {
	tree := New[entry](testSchema(), reclaim.NewQueue())

	byN := &entry{name: "by-n"}
	byKind := &entry{name: "by-kind"}
	tree.Insert(byN, nil, []string{"n"})
	tree.Insert(byKind, schema.Filter{"kind": "book"}, nil)

	r := row{"kind": "book", "n": float64(1)}
	assert.Equal(t, []string{"by-n"}, names(tree.Queries(r, []string{"n"})))
	assert.Equal(t, []string{"by-kind"}, names(tree.Queries(r, []string{"kind"})),
		"filter columns are interests")
	assert.Empty(t, tree.Queries(r, []string{"blob"}))

	runtime.KeepAlive(byN)
	runtime.KeepAlive(byKind)
}

func TestTree_NoDuplicates(t *testing.T) {
	tree := New[entry](testSchema(), reclaim.NewQueue())

	e := &entry{name: "e"}
	tree.Insert(e, nil, []string{"n", "kind", "n"})

	got := tree.Queries(row{}, []string{"n", "kind", Membership})
	assert.Len(t, got, 1)
	assert.Equal(t, 3, tree.Entries(row{}, []string{"n", "kind", Membership}))
	runtime.KeepAlive(e)
}

func TestTree_NilFilterValue(t *testing.T) {
	tree := New[entry](testSchema(), reclaim.NewQueue())

	unkinded := &entry{name: "unkinded"}
	tree.Insert(unkinded, schema.Filter{"kind": nil}, nil)

	assert.Len(t, tree.Queries(row{"n": float64(1)}, []string{Membership}), 1)
	assert.Empty(t, tree.Queries(row{"kind": "book"}, []string{Membership}))
	runtime.KeepAlive(unkinded)
}

// =============================================================================
// Reclamation
// =============================================================================

func TestTree_PrunesCollectedEntries(t *testing.T) {
	q := reclaim.NewQueue()
	tree := New[entry](testSchema(), q)
	r := row{"kind": "book", "n": float64(1)}

	keep := &entry{name: "keep"}
	tree.Insert(keep, nil, []string{"n"})
	baseline := tree.Entries(r, []string{Membership})
	require.Equal(t, 1, baseline)

	func() {
		tree.Insert(&entry{name: "drop"}, schema.Filter{"kind": "book"}, []string{"n"})
	}()
	require.Equal(t, 2, tree.Entries(r, []string{Membership}))
	require.Equal(t, 2, tree.Len())

	require.Eventually(t, func() bool {
		runtime.GC()
		q.Drain()
		return tree.Entries(r, []string{Membership}) == baseline
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, tree.Len())
	assert.Empty(t, tree.root.wildcard.literals, "emptied literal bucket is pruned")
	assert.Equal(t, []string{"keep"}, names(tree.Queries(r, []string{"n"})))
	runtime.KeepAlive(keep)
}

func TestTree_PrunesWholePath(t *testing.T) {
	q := reclaim.NewQueue()
	tree := New[entry](testSchema(), q)

	func() {
		tree.Insert(&entry{name: "drop"}, schema.Filter{"n": float64(3)}, nil)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		q.Drain()
		return tree.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, tree.root.empty())
}
