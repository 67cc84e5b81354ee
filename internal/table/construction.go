package table

import "github.com/roach88/livetable/internal/cache"

// phase is how far a query under construction has progressed.
type phase int

const (
	// phasePlanning: the sort comparator and generators are being probed.
	phasePlanning phase = iota + 1
	// phaseSeeding: the query exists and existing rows are being loaded.
	phaseSeeding
)

// constructionSet tracks queries under construction so that a generator
// returning, directly or transitively, the query being built is detected.
//
// Re-entry while planning is expected: generators run against planning rows
// and may request the very query being planned (a recursive tree, say).
// Re-entry while seeding means a real row embeds its own query.
type constructionSet struct {
	active map[cache.Key]phase
}

func newConstructionSet() *constructionSet {
	return &constructionSet{active: make(map[cache.Key]phase)}
}

// phase returns the construction phase of k, or 0.
func (c *constructionSet) phase(k cache.Key) phase {
	return c.active[k]
}

func (c *constructionSet) enter(k cache.Key, p phase) {
	c.active[k] = p
}

func (c *constructionSet) leave(k cache.Key) {
	delete(c.active, k)
}
