package query

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/livetable/internal/cache"
	"github.com/roach88/livetable/internal/canon"
	"github.com/roach88/livetable/internal/schema"
)

// Content key domains for the two query kinds.
const (
	DomainList  = "livetable/list/v1"
	DomainCount = "livetable/count/v1"
)

type planKind int

const (
	planList planKind = iota
	planCount
)

// Plan is a validated query configuration with its columns resolved.
type Plan struct {
	schema *schema.Schema
	kind   planKind

	filter     schema.Filter
	selected   []string
	groupBy    string
	sort       *Sort
	subqueries *Subqueries
	perGroup   *GroupQuery

	// column -> subquery keys whose generator reads it
	deps map[string][]string
}

// NewPlan validates opts against s and resolves the query's true select:
// the requested columns plus every column the sort comparator and the
// subquery generators read, found by running them against planning rows.
func NewPlan(s *schema.Schema, opts Options) (*Plan, error) {
	p := &Plan{
		schema:     s,
		kind:       planList,
		groupBy:    opts.GroupBy,
		sort:       opts.Sort,
		subqueries: opts.Subqueries,
		perGroup:   opts.PerGroup,
	}

	var err error
	if p.filter, err = normalizeFilter(s, opts.Filter); err != nil {
		return nil, err
	}
	if err := p.checkGroupBy(); err != nil {
		return nil, err
	}

	if opts.PerGroup != nil {
		switch {
		case opts.GroupBy == "":
			return nil, p.invalid("per-group queries require groupBy")
		case opts.Sort != nil:
			return nil, p.invalid("per-group queries cannot be sorted")
		case opts.Subqueries != nil:
			return nil, p.invalid("per-group queries cannot have subqueries")
		}
	}

	selected := opts.Select
	if len(selected) == 0 {
		selected = s.Names()
	}
	for _, c := range selected {
		if !s.Has(c) {
			return nil, unknownColumn(s, c, "select names an undeclared column")
		}
	}
	read := append([]string{schema.IDColumn}, selected...)

	subKeys := opts.Subqueries.Keys()
	for _, k := range subKeys {
		if k == "" {
			return nil, p.invalid("subquery key is empty")
		}
		if s.Has(k) {
			return nil, &ConfigError{
				Code:    ErrCodeKeyCollision,
				Table:   s.Name(),
				Column:  k,
				Message: "subquery key collides with a schema column",
			}
		}
		if opts.Subqueries.gens[k] == nil {
			return nil, p.invalid(fmt.Sprintf("subquery %q has no generator", k))
		}
	}

	if opts.Sort != nil {
		if opts.Sort.compare == nil {
			return nil, p.invalid("sort has no comparator")
		}
		cols, err := probeSort(s, subKeys, opts.Sort)
		if err != nil {
			return nil, err
		}
		read = append(read, cols...)
	}

	if len(subKeys) > 0 {
		p.deps = make(map[string][]string)
		for _, k := range subKeys {
			cols, err := probeGenerator(s, subKeys, k, opts.Subqueries.gens[k])
			if err != nil {
				return nil, err
			}
			for _, c := range cols {
				p.deps[c] = append(p.deps[c], k)
			}
			read = append(read, cols...)
		}
	}

	if opts.PerGroup != nil && opts.PerGroup.gen == nil {
		return nil, p.invalid("per-group query has no generator")
	}

	p.selected = inSchemaOrder(s, read)
	return p, nil
}

// NewCountPlan validates opts against s.
func NewCountPlan(s *schema.Schema, opts CountOptions) (*Plan, error) {
	p := &Plan{
		schema:  s,
		kind:    planCount,
		groupBy: opts.GroupBy,
	}

	var err error
	if p.filter, err = normalizeFilter(s, opts.Filter); err != nil {
		return nil, err
	}
	if err := p.checkGroupBy(); err != nil {
		return nil, err
	}
	if p.groupBy != "" {
		p.selected = []string{p.groupBy}
	}
	return p, nil
}

// Schema returns the table schema.
func (p *Plan) Schema() *schema.Schema { return p.schema }

// Filter returns the normalized filter.
func (p *Plan) Filter() schema.Filter { return p.filter }

// Select returns the resolved select in schema declaration order.
func (p *Plan) Select() []string { return slices.Clone(p.selected) }

// GroupBy returns the grouping column, or "".
func (p *Plan) GroupBy() string { return p.groupBy }

// IsCount reports whether the plan is for a count query.
func (p *Plan) IsCount() bool { return p.kind == planCount }

// Interests returns the columns whose changes the query must see: the
// resolved select, the filter columns and the groupBy column.
func (p *Plan) Interests() []string {
	cols := slices.Clone(p.selected)
	cols = append(cols, p.filter.Columns()...)
	if p.groupBy != "" {
		cols = append(cols, p.groupBy)
	}
	return inSchemaOrder(p.schema, cols)
}

// Dependents returns the subquery keys whose generators read any of columns.
func (p *Plan) Dependents(columns []string) []string {
	var keys []string
	for _, c := range columns {
		for _, k := range p.deps[c] {
			keys = appendUnique(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Descriptor is the content-hashable part of the plan.
func (p *Plan) Descriptor() map[string]any {
	filter := make(map[string]any, len(p.filter))
	for c, v := range p.filter {
		filter[c] = v
	}
	d := map[string]any{
		"filter":  filter,
		"groupBy": p.groupBy,
	}
	if p.kind == planList {
		d["select"] = p.selected
	}
	return d
}

// CacheKey returns the layered cache key of the plan.
func (p *Plan) CacheKey() (cache.Key, error) {
	domain := DomainList
	if p.kind == planCount {
		domain = DomainCount
	}
	content, err := canon.Key(domain, p.Descriptor())
	if err != nil {
		return cache.Key{}, err
	}
	return p.identity(content), nil
}

// RawKey returns the cache key of options before planning. It is used to
// detect a query re-entering its own construction.
func RawKey(opts Options) (cache.Key, error) {
	content, err := canon.Key(DomainList, rawDescriptor(opts.Filter, opts.Select, opts.GroupBy))
	if err != nil {
		return cache.Key{}, err
	}
	p := &Plan{sort: opts.Sort, subqueries: opts.Subqueries, perGroup: opts.PerGroup}
	return p.identity(content), nil
}

// RawCountKey is RawKey for count options.
func RawCountKey(opts CountOptions) (cache.Key, error) {
	content, err := canon.Key(DomainCount, rawDescriptor(opts.Filter, nil, opts.GroupBy))
	if err != nil {
		return cache.Key{}, err
	}
	return cache.Key{Content: content}, nil
}

func rawDescriptor(f schema.Filter, sel []string, groupBy string) map[string]any {
	filter := make(map[string]any, len(f))
	for c, v := range f {
		filter[c] = v
	}
	sorted := slices.Clone(sel)
	slices.Sort(sorted)
	return map[string]any{"filter": filter, "select": sorted, "groupBy": groupBy}
}

func (p *Plan) identity(content string) cache.Key {
	k := cache.Key{Content: content}
	if p.sort != nil {
		k.Sort = p.sort
	}
	switch {
	case p.subqueries != nil:
		k.Generator = p.subqueries
	case p.perGroup != nil:
		k.Generator = p.perGroup
	}
	return k
}

func (p *Plan) checkGroupBy() error {
	if p.groupBy == "" {
		return nil
	}
	return columnError(p.schema, p.schema.CheckPrimitive(p.groupBy), p.groupBy, "groupBy")
}

func (p *Plan) invalid(msg string) *ConfigError {
	return &ConfigError{Code: ErrCodeInvalidOptions, Table: p.schema.Name(), Message: msg}
}

func normalizeFilter(s *schema.Schema, f schema.Filter) (schema.Filter, error) {
	for _, c := range f.Columns() {
		if err := s.CheckPrimitive(c); err != nil {
			return nil, columnError(s, err, c, "filter")
		}
	}
	out, err := s.NormalizeFilter(f)
	if err != nil {
		return nil, &ConfigError{
			Code:    ErrCodeInvalidOptions,
			Table:   s.Name(),
			Message: "filter literal does not match its column type",
			Err:     err,
		}
	}
	return out, nil
}

func columnError(s *schema.Schema, err error, column, where string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, schema.ErrUnknownColumn):
		return unknownColumn(s, column, where+" names an undeclared column")
	case errors.Is(err, schema.ErrOpaqueColumn):
		return &ConfigError{
			Code:    ErrCodeOpaqueColumn,
			Table:   s.Name(),
			Column:  column,
			Message: where + " names an opaque column",
		}
	}
	return err
}

func inSchemaOrder(s *schema.Schema, cols []string) []string {
	var out []string
	for _, c := range s.Names() {
		if slices.Contains(cols, c) {
			out = append(out, c)
		}
	}
	return out
}
