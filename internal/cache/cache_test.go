package cache

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livetable/internal/reclaim"
)

type item struct {
	name string
}

type comparator struct {
	name string
}

func TestCache_IdentityLayers(t *testing.T) {
	c := New[item](reclaim.NewQueue())
	byName := &comparator{name: "by-name"}
	byAge := &comparator{name: "by-age"}

	a := &item{name: "a"}
	b := &item{name: "b"}
	plain := &item{name: "plain"}
	c.Put(Key{Content: "k", Sort: byName}, a)
	c.Put(Key{Content: "k", Sort: byAge}, b)
	c.Put(Key{Content: "k"}, plain)

	assert.Same(t, a, c.Get(Key{Content: "k", Sort: byName}))
	assert.Same(t, b, c.Get(Key{Content: "k", Sort: byAge}))
	assert.Same(t, plain, c.Get(Key{Content: "k"}))
	assert.Nil(t, c.Get(Key{Content: "other"}))
	assert.Nil(t, c.Get(Key{Content: "k", Sort: &comparator{name: "by-name"}}),
		"sort layer is identity keyed")
	assert.Nil(t, c.Get(Key{Content: "k", Sort: byName, Generator: byAge}))
	assert.Equal(t, 3, c.Len())

	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
	runtime.KeepAlive(plain)
}

func TestCache_EvictsCollectedEntries(t *testing.T) {
	q := reclaim.NewQueue()
	c := New[item](q)
	gen := &comparator{name: "gen"}

	func() {
		c.Put(Key{Content: "k", Generator: gen}, &item{name: "gone"})
	}()
	require.Equal(t, 1, c.Len())

	require.Eventually(t, func() bool {
		runtime.GC()
		q.Drain()
		return c.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Nil(t, c.Get(Key{Content: "k", Generator: gen}))
	assert.Empty(t, c.layers, "empty layers are pruned")
}

func TestCache_StaleEvictionKeepsReplacement(t *testing.T) {
	q := reclaim.NewQueue()
	c := New[item](q)
	k := Key{Content: "k"}

	func() {
		c.Put(k, &item{name: "old"})
	}()
	require.Eventually(t, func() bool {
		runtime.GC()
		return c.Get(k) == nil
	}, 5*time.Second, 10*time.Millisecond)

	fresh := &item{name: "fresh"}
	c.Put(k, fresh)

	require.Eventually(t, func() bool {
		runtime.GC()
		q.Drain()
		return q.Drained() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Same(t, fresh, c.Get(k))
	assert.Equal(t, 1, c.Len())
	runtime.KeepAlive(fresh)
}
