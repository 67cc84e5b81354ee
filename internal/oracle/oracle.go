// Package oracle mirrors changefeed maps into an in-memory SQLite database
// and re-derives query membership with plain SQL.
//
// The oracle is a reference model: it shares no code with the incremental
// engines, so agreement between a live query and its oracle answer is
// evidence that the incremental bookkeeping is right.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/livetable/internal/changefeed"
	"github.com/roach88/livetable/internal/schema"
)

// validIdentifier matches table and column names that may be interpolated
// into SQL. Values are always bound as parameters.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Oracle is a SQLite mirror of one or more tables.
type Oracle struct {
	db      *sql.DB
	schemas map[string]*schema.Schema
	stops   []func()
	logger  *slog.Logger
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithLogger sets the logger for mirror failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *Oracle) {
		o.logger = l
	}
}

// Open creates an empty in-memory oracle.
func Open(opts ...Option) (*Oracle, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open oracle database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to oracle database: %w", err)
	}

	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	o := &Oracle{
		db:      db,
		schemas: make(map[string]*schema.Schema),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Close stops mirroring and closes the database.
func (o *Oracle) Close() error {
	for _, stop := range o.stops {
		stop()
	}
	o.stops = nil
	return o.db.Close()
}

// Attach creates a SQL table for s and mirrors every record of m into it,
// now and after every committed transaction. Opaque columns are not
// mirrored.
func (o *Oracle) Attach(ctx context.Context, m *changefeed.Map, s *schema.Schema) error {
	name := m.Name()
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", name, validIdentifier.String())
	}
	if _, ok := o.schemas[name]; ok {
		return fmt.Errorf("table %s is already attached", name)
	}

	var defs []string
	for _, c := range mirrored(s) {
		if !validIdentifier.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q in table %s", c.Name, name)
		}
		def := c.Name + " " + sqlType(c.Type)
		if c.Name == schema.IDColumn {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := o.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create oracle table %s: %w", name, err)
	}
	o.schemas[name] = s

	var loadErr error
	m.ForEach(func(id string, r *changefeed.Record) {
		if loadErr == nil {
			loadErr = o.upsert(ctx, name, id, r.Fields())
		}
	})
	if loadErr != nil {
		return loadErr
	}

	o.stops = append(o.stops, m.ObserveDeep(func(events []changefeed.Event) {
		for _, ev := range events {
			var err error
			switch ev.Kind {
			case changefeed.EventDelete:
				_, err = o.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", name), ev.ID)
			default:
				err = o.upsert(ctx, name, ev.ID, ev.Record.Fields())
			}
			if err != nil {
				o.logger.Error("oracle mirror failed", "table", name, "id", ev.ID, "error", err)
			}
		}
	}))
	return nil
}

func (o *Oracle) upsert(ctx context.Context, name, id string, fields map[string]any) error {
	s := o.schemas[name]
	cols := mirrored(s)
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		marks[i] = "?"
		if c.Name == schema.IDColumn {
			args[i] = id
			continue
		}
		v, err := schema.Normalize(c.Type, fields[c.Name])
		if err != nil {
			return fmt.Errorf("column %s: %w", c.Name, err)
		}
		args[i] = v
	}
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		name, strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := o.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to mirror %s/%s: %w", name, id, err)
	}
	return nil
}

func mirrored(s *schema.Schema) []schema.Column {
	var cols []schema.Column
	for _, c := range s.Columns() {
		if c.Type.Primitive() {
			cols = append(cols, c)
		}
	}
	return cols
}

func sqlType(t schema.ColumnType) string {
	switch t {
	case schema.TypeString:
		return "TEXT"
	case schema.TypeNumber:
		return "REAL"
	case schema.TypeBigInt, schema.TypeBoolean:
		return "INTEGER"
	}
	return "BLOB"
}
