package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/livetable/internal/changefeed"
	"github.com/roach88/livetable/internal/ident"
	"github.com/roach88/livetable/internal/oracle"
	"github.com/roach88/livetable/internal/query"
	"github.com/roach88/livetable/internal/schema"
	"github.com/roach88/livetable/internal/table"
	"github.com/roach88/livetable/internal/testutil"
)

// Option configures a scenario run.
type Option func(*runner)

// WithLogger sets the logger for the run and every table it creates.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		r.logger = l
	}
}

type watched struct {
	def *QueryDef
	q   *query.Query
}

type runner struct {
	ctx      context.Context
	logger   *slog.Logger
	doc      *changefeed.Doc
	tables   map[string]*table.Table
	oracle   *oracle.Oracle
	clock    *testutil.DeterministicClock
	recorder *testutil.Recorder
	queries  map[string]watched
	result   *Result
}

// Run executes a scenario and returns its result.
//
// Setup problems (bad schemas, queries that fail unexpectedly) are returned
// as errors. Step failures and failed assertions are recorded in the result.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), s, opts...)
}

// RunContext is Run with a context for the oracle's SQL queries.
func RunContext(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		ctx:     ctx,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		doc:     changefeed.NewDoc(),
		tables:  make(map[string]*table.Table),
		clock:   testutil.NewDeterministicClock(),
		queries: make(map[string]watched),
		result:  NewResult(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.recorder = testutil.NewRecorder(r.clock)

	o, err := oracle.Open(oracle.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("open oracle: %w", err)
	}
	r.oracle = o
	defer r.close()

	schemas, err := loadSchemas(s)
	if err != nil {
		return nil, err
	}
	for _, sc := range schemas {
		if err := r.addTable(sc); err != nil {
			return nil, err
		}
	}

	if err := r.openQueries(s.Queries); err != nil {
		return nil, err
	}

	for i, step := range s.Steps {
		r.runStep(i, step)
	}

	for name, w := range r.queries {
		r.result.State[name] = w.q.Export()
	}

	for _, a := range s.Assertions {
		if err := r.check(a); err != nil {
			r.result.AddError(err.Error())
		}
	}

	r.logger.Info("scenario finished",
		"name", s.Name,
		"pass", r.result.Pass,
		"events", len(r.result.Trace))
	return r.result, nil
}

func (r *runner) close() {
	r.recorder.Stop()
	for _, t := range r.tables {
		t.Close()
	}
	if err := r.oracle.Close(); err != nil {
		r.logger.Warn("failed to close oracle", "error", err)
	}
}

// loadSchemas returns the manifest tables followed by the inline ones, the
// latter with columns in sorted order.
func loadSchemas(s *Scenario) ([]*schema.Schema, error) {
	var out []*schema.Schema
	seen := make(map[string]bool)
	add := func(sc *schema.Schema) error {
		if seen[sc.Name()] {
			return fmt.Errorf("table %q declared twice", sc.Name())
		}
		seen[sc.Name()] = true
		out = append(out, sc)
		return nil
	}

	for _, path := range s.Schemas {
		loaded, err := schema.LoadCUE(path)
		if err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		for _, sc := range loaded {
			if err := add(sc); err != nil {
				return nil, err
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(s.Tables)) {
		decl := s.Tables[name]
		cols := make([]schema.Column, 0, len(decl))
		for _, col := range slices.Sorted(maps.Keys(decl)) {
			cols = append(cols, schema.Column{Name: col, Type: schema.ParseColumnType(decl[col])})
		}
		sc, err := schema.New(name, cols...)
		if err != nil {
			return nil, err
		}
		if err := add(sc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *runner) addTable(sc *schema.Schema) error {
	t, err := table.New(r.doc, sc.Name(), sc,
		table.WithLogger(r.logger),
		table.WithIDGenerator(ident.NewSequenceGenerator(sc.Name())))
	if err != nil {
		return fmt.Errorf("table %s: %w", sc.Name(), err)
	}
	if err := r.oracle.Attach(r.ctx, r.doc.Map(sc.Name()), sc); err != nil {
		t.Close()
		return fmt.Errorf("table %s: %w", sc.Name(), err)
	}
	r.tables[sc.Name()] = t
	return nil
}

func (r *runner) openQueries(defs []QueryDef) error {
	for i := range defs {
		def := &defs[i]
		c, err := r.compile(def)
		if err != nil {
			return fmt.Errorf("query %s: %w", def.Name, err)
		}
		q, err := c.open(nil)
		if def.Error != "" {
			if !query.HasCode(err, query.ConfigErrorCode(def.Error)) {
				r.result.AddError(fmt.Sprintf("query %s: expected %s, got %v", def.Name, def.Error, err))
			}
			if q != nil {
				q.Close()
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("query %s: %w", def.Name, err)
		}
		r.queries[def.Name] = watched{def: def, q: q}
		r.recorder.Watch(def.Name, q)
	}
	return nil
}

// runStep applies one step and attributes the changes it caused to it.
func (r *runner) runStep(i int, step Step) {
	before := r.recorder.Len()
	err := r.execute(step)

	switch {
	case step.Error != "" && err == nil:
		r.result.AddError(fmt.Sprintf("step %d: expected error containing %q", i, step.Error))
	case step.Error != "" && !strings.Contains(err.Error(), step.Error):
		r.result.AddError(fmt.Sprintf("step %d: expected error containing %q, got %v", i, step.Error, err))
	case step.Error == "" && err != nil:
		r.result.AddError(fmt.Sprintf("step %d: %v", i, err))
	}

	for _, s := range r.recorder.Changes()[before:] {
		r.result.Trace = append(r.result.Trace, TraceEvent{
			Seq:    s.Seq,
			Step:   i,
			Query:  s.Label,
			Change: query.ExportChange(s.Change),
		})
	}
}

var errUnknownTable = errors.New("unknown table")

func (r *runner) table(name string) (*table.Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownTable, name)
	}
	return t, nil
}

func (r *runner) execute(step Step) error {
	switch {
	case step.Insert != nil:
		t, err := r.table(step.Insert.Table)
		if err != nil {
			return err
		}
		values := maps.Clone(step.Insert.Values)
		if values == nil {
			values = make(map[string]any)
		}
		if step.Insert.ID != "" {
			values[schema.IDColumn] = step.Insert.ID
		}
		_, err = t.Insert(values)
		return err

	case step.Update != nil:
		t, err := r.table(step.Update.Table)
		if err != nil {
			return err
		}
		return t.UpdateRow(step.Update.ID, step.Update.Values)

	case step.Delete != nil:
		t, err := r.table(step.Delete.Table)
		if err != nil {
			return err
		}
		return t.Delete(step.Delete.ID)

	default:
		return r.doc.Transact(func() error {
			for _, sub := range step.Transaction {
				if err := r.execute(sub); err != nil {
					return err
				}
			}
			return nil
		})
	}
}
