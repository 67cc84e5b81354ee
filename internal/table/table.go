// Package table maintains the authoritative rows of one changefeed map and
// routes each row mutation to the live queries it affects.
//
// A Table consumes the committed event batches of its map. Query state is
// mutated synchronously as events arrive, so later events of the same
// transaction see consistent results; observer notifications are buffered
// and delivered once the whole transaction has been applied, across every
// table of the document.
package table

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/livetable/internal/cache"
	"github.com/roach88/livetable/internal/changefeed"
	"github.com/roach88/livetable/internal/ident"
	"github.com/roach88/livetable/internal/metrics"
	"github.com/roach88/livetable/internal/query"
	"github.com/roach88/livetable/internal/reclaim"
	"github.com/roach88/livetable/internal/registry"
	"github.com/roach88/livetable/internal/schema"
)

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger for construction and dispatch traces.
// Default: a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		t.logger = l
	}
}

// WithIDGenerator sets the generator for ids of rows inserted without one.
// Default: ident.UUIDv7Generator.
func WithIDGenerator(g ident.Generator) Option {
	return func(t *Table) {
		t.ids = g
	}
}

// WithMetrics records table activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Table) {
		t.metrics = m
	}
}

// Table is a live view over one map of a changefeed document. It is not
// safe for concurrent use.
type Table struct {
	name    string
	schema  *schema.Schema
	doc     *changefeed.Doc
	records *changefeed.Map

	rows map[string]*query.Row

	tree         *registry.Tree[query.Query]
	cache        *cache.Cache[query.Query]
	queue        *reclaim.Queue
	constructing *constructionSet

	pending   []query.Flush
	scheduled bool

	logger  *slog.Logger
	ids     ident.Generator
	metrics *metrics.Metrics

	stop func()
}

// New creates a table over doc.Map(name) with schema s, loading any records
// already present.
func New(doc *changefeed.Doc, name string, s *schema.Schema, opts ...Option) (*Table, error) {
	if doc == nil {
		return nil, errors.New("table: doc is required")
	}
	if s == nil {
		return nil, errors.New("table: schema is required")
	}
	if name == "" {
		name = s.Name()
	}

	queue := reclaim.NewQueue()
	t := &Table{
		name:         name,
		schema:       s,
		doc:          doc,
		records:      doc.Map(name),
		rows:         make(map[string]*query.Row),
		tree:         registry.New[query.Query](s, queue),
		cache:        cache.New[query.Query](queue),
		queue:        queue,
		constructing: newConstructionSet(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:          ident.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("table", name)

	var loadErr error
	t.records.ForEach(func(id string, r *changefeed.Record) {
		if loadErr != nil {
			return
		}
		values, err := t.normalize(id, r.Fields())
		if err != nil {
			loadErr = fmt.Errorf("table %s: record %s: %w", name, id, err)
			return
		}
		t.rows[id] = query.NewRow(s, values)
	})
	if loadErr != nil {
		return nil, loadErr
	}

	t.stop = t.records.ObserveDeep(t.apply)
	return t, nil
}

// Close stops consuming the changefeed. Queries keep their last results.
func (t *Table) Close() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns the table schema.
func (t *Table) Schema() *schema.Schema { return t.schema }

// Doc returns the changefeed document the table reads.
func (t *Table) Doc() *changefeed.Doc { return t.doc }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Get returns the shared row with id.
func (t *Table) Get(id string) (*query.Row, bool) {
	r, ok := t.rows[id]
	return r, ok
}

// Rows returns every row in id order.
func (t *Table) Rows() []*query.Row {
	rows := make([]*query.Row, 0, len(t.rows))
	for _, id := range slices.Sorted(maps.Keys(t.rows)) {
		rows = append(rows, t.rows[id])
	}
	return rows
}

// LiveQueries returns the number of indexed queries not yet reclaimed.
func (t *Table) LiveQueries() int {
	t.reclaim()
	return t.tree.Len()
}

// CachedQueries returns the number of cache entries not yet reclaimed.
func (t *Table) CachedQueries() int {
	t.reclaim()
	return t.cache.Len()
}

// Affected returns the live queries a change to columns of row would reach.
// Pass registry.Membership for inserts and deletes.
func (t *Table) Affected(row schema.Getter, columns ...string) []*query.Query {
	t.reclaim()
	return t.tree.Queries(row, columns)
}

// IndexEntries counts the index entries a change to columns of row would
// visit, including entries of collected queries that are not yet pruned.
func (t *Table) IndexEntries(row schema.Getter, columns ...string) int {
	t.reclaim()
	return t.tree.Entries(row, columns)
}

// Query returns the live list query for opts, constructing it on first use.
// Structurally identical options with the same Sort, Subqueries and
// PerGroup pointers return the same *query.Query.
func (t *Table) Query(opts query.Options) (*query.Query, error) {
	t.reclaim()
	raw, err := query.RawKey(opts)
	if err != nil {
		return nil, t.invalid(err)
	}
	return t.construct(raw, "list", func() (*query.Plan, error) {
		return query.NewPlan(t.schema, opts)
	})
}

// Count returns the live count query for opts.
func (t *Table) Count(opts query.CountOptions) (*query.Query, error) {
	t.reclaim()
	raw, err := query.RawCountKey(opts)
	if err != nil {
		return nil, t.invalid(err)
	}
	return t.construct(raw, "count", func() (*query.Plan, error) {
		return query.NewCountPlan(t.schema, opts)
	})
}

func (t *Table) construct(raw cache.Key, kind string, plan func() (*query.Plan, error)) (*query.Query, error) {
	switch t.constructing.phase(raw) {
	case phasePlanning:
		return nil, query.ErrPlanning
	case phaseSeeding:
		return nil, query.NewCyclicDependencyError(t.name, raw.Content)
	}

	t.constructing.enter(raw, phasePlanning)
	defer t.constructing.leave(raw)

	p, err := plan()
	if err != nil {
		return nil, err
	}
	key, err := p.CacheKey()
	if err != nil {
		return nil, t.invalid(err)
	}

	if q := t.cache.Get(key); q != nil {
		t.metrics.CacheLookup(t.name, true)
		t.logger.Debug("query cache hit", "kind", kind, "select", p.Select())
		return q, nil
	}
	t.metrics.CacheLookup(t.name, false)

	if key != raw {
		if t.constructing.phase(key) != 0 {
			return nil, query.NewCyclicDependencyError(t.name, key.Content)
		}
		t.constructing.enter(key, phaseSeeding)
		defer t.constructing.leave(key)
	}
	t.constructing.enter(raw, phaseSeeding)

	q := query.New(p, t.logger)
	if err := q.Seed(t.Rows()); err != nil {
		q.Close()
		return nil, err
	}

	t.tree.Insert(q, p.Filter(), p.Interests())
	t.cache.Put(key, q)
	t.metrics.QueryCreated(t.name, kind)
	t.metrics.SetLive(t.name, t.tree.Len())
	t.logger.Debug("query constructed",
		"kind", kind,
		"select", p.Select(),
		"group_by", p.GroupBy(),
		"rows", len(t.rows))
	return q, nil
}

func (t *Table) invalid(err error) error {
	return &query.ConfigError{
		Code:    query.ErrCodeInvalidOptions,
		Table:   t.name,
		Message: "options cannot be keyed",
		Err:     err,
	}
}

// reclaim prunes index and cache entries of collected queries.
func (t *Table) reclaim() {
	if n := t.queue.Drain(); n > 0 {
		t.metrics.ReclaimedEntries(t.name, n)
		t.metrics.SetLive(t.name, t.tree.Len())
		t.logger.Debug("queries reclaimed", "entries", n, "live", t.tree.Len())
	}
}

// normalize validates record fields against the schema. The record id
// always wins over an id field.
func (t *Table) normalize(id string, fields map[string]any) (map[string]schema.Value, error) {
	values, err := t.schema.NormalizeRow(fields)
	if err != nil {
		return nil, err
	}
	for _, c := range t.schema.Names() {
		if _, ok := values[c]; !ok {
			values[c] = nil
		}
	}
	values[schema.IDColumn] = id
	return values, nil
}
