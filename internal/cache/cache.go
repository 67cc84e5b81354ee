// Package cache preserves query identity: structurally identical requests
// receive the same live query instance.
//
// Entries are layered. The first layer is a content key (a canonical hash of
// the serializable options). The next two layers are identities of values
// that cannot be content hashed: the sort comparator and the subquery or
// per-group generator. The final value is a weak pointer, so the cache never
// keeps a query alive; entries are pruned, together with any intermediate
// layer left empty, once their query is collected.
package cache

import (
	"weak"

	"github.com/roach88/livetable/internal/reclaim"
)

// Key addresses one cache entry.
//
// Sort and Generator hold pointer identities, or nil for none. Callers must
// pass an untyped nil rather than a typed nil pointer.
type Key struct {
	Content   string
	Sort      any
	Generator any
}

type (
	generatorLayer[E any] map[any]weak.Pointer[E]
	sortLayer[E any]      map[any]generatorLayer[E]
)

// Cache maps keys to live queries of type E.
type Cache[E any] struct {
	layers map[string]sortLayer[E]
	queue  *reclaim.Queue
	live   int
}

// New creates an empty cache. Prune requests are pushed to q.
func New[E any](q *reclaim.Queue) *Cache[E] {
	return &Cache[E]{
		layers: make(map[string]sortLayer[E]),
		queue:  q,
	}
}

// Get returns the live entry for k, or nil.
func (c *Cache[E]) Get(k Key) *E {
	wp, ok := c.lookup(k)
	if !ok {
		return nil
	}
	return wp.Value()
}

// Put stores e under k, replacing any collected entry.
func (c *Cache[E]) Put(k Key, e *E) {
	sorts := c.layers[k.Content]
	if sorts == nil {
		sorts = make(sortLayer[E])
		c.layers[k.Content] = sorts
	}
	gens := sorts[k.Sort]
	if gens == nil {
		gens = make(generatorLayer[E])
		sorts[k.Sort] = gens
	}
	if _, replaced := gens[k.Generator]; !replaced {
		c.live++
	}
	wp := weak.Make(e)
	gens[k.Generator] = wp

	reclaim.Watch(c.queue, e, func() { c.evict(k, wp) })
}

// Len returns the number of entries not yet pruned.
func (c *Cache[E]) Len() int {
	return c.live
}

func (c *Cache[E]) lookup(k Key) (weak.Pointer[E], bool) {
	sorts, ok := c.layers[k.Content]
	if !ok {
		return weak.Pointer[E]{}, false
	}
	gens, ok := sorts[k.Sort]
	if !ok {
		return weak.Pointer[E]{}, false
	}
	wp, ok := gens[k.Generator]
	return wp, ok
}

func (c *Cache[E]) evict(k Key, wp weak.Pointer[E]) {
	current, ok := c.lookup(k)
	if !ok || current != wp {
		return
	}

	sorts := c.layers[k.Content]
	gens := sorts[k.Sort]
	delete(gens, k.Generator)
	c.live--
	if len(gens) == 0 {
		delete(sorts, k.Sort)
	}
	if len(sorts) == 0 {
		delete(c.layers, k.Content)
	}
}
