package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/livetable/internal/schema"
)

// Count returns the number of rows of table matching filter.
func (o *Oracle) Count(ctx context.Context, table string, filter schema.Filter) (int, error) {
	where, args, err := o.where(table, filter)
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
	if err := o.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("oracle count %s: %w", table, err)
	}
	return n, nil
}

// GroupCounts returns the number of rows of table matching filter per
// value of groupBy.
func (o *Oracle) GroupCounts(ctx context.Context, table string, filter schema.Filter, groupBy string) (map[schema.Value]int, error) {
	t, err := o.column(table, groupBy)
	if err != nil {
		return nil, err
	}
	where, args, err := o.where(table, filter)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s", groupBy, table, where, groupBy)
	rows, err := o.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("oracle group count %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[schema.Value]int)
	for rows.Next() {
		var (
			raw any
			n   int
		)
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g, err := fromSQL(t, raw)
		if err != nil {
			return nil, err
		}
		out[g] = n
	}
	return out, rows.Err()
}

// IDs returns the ids of the rows of table matching filter, ordered by the
// given columns and then by id. A leading "-" sorts a column descending.
func (o *Oracle) IDs(ctx context.Context, table string, filter schema.Filter, orderBy ...string) ([]string, error) {
	where, args, err := o.where(table, filter)
	if err != nil {
		return nil, err
	}
	order, err := o.orderBy(table, orderBy)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT id FROM %s%s ORDER BY %s", table, where, order)
	rows, err := o.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("oracle ids %s: %w", table, err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GroupIDs is IDs partitioned by the value of groupBy.
func (o *Oracle) GroupIDs(ctx context.Context, table string, filter schema.Filter, groupBy string, orderBy ...string) (map[schema.Value][]string, error) {
	t, err := o.column(table, groupBy)
	if err != nil {
		return nil, err
	}
	where, args, err := o.where(table, filter)
	if err != nil {
		return nil, err
	}
	order, err := o.orderBy(table, orderBy)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s, id FROM %s%s ORDER BY %s", groupBy, table, where, order)
	rows, err := o.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("oracle group ids %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[schema.Value][]string)
	for rows.Next() {
		var (
			raw any
			id  string
		)
		if err := rows.Scan(&raw, &id); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		g, err := fromSQL(t, raw)
		if err != nil {
			return nil, err
		}
		out[g] = append(out[g], id)
	}
	return out, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// where builds a parameterized WHERE clause. Keys are sorted for
// deterministic SQL; a nil literal matches NULL.
func (o *Oracle) where(table string, filter schema.Filter) (string, []any, error) {
	if _, ok := o.schemas[table]; !ok {
		return "", nil, fmt.Errorf("table %s is not attached", table)
	}
	if len(filter) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	for _, c := range filter.Columns() {
		t, err := o.column(table, c)
		if err != nil {
			return "", nil, err
		}
		v, err := schema.Normalize(t, filter[c])
		if err != nil {
			return "", nil, fmt.Errorf("filter %s: %w", c, err)
		}
		if v == nil {
			clauses = append(clauses, c+" IS NULL")
			continue
		}
		clauses = append(clauses, c+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (o *Oracle) orderBy(table string, columns []string) (string, error) {
	terms := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		dir := "ASC"
		if strings.HasPrefix(c, "-") {
			c, dir = c[1:], "DESC"
		}
		if _, err := o.column(table, c); err != nil {
			return "", err
		}
		terms = append(terms, c+" "+dir)
	}
	return strings.Join(append(terms, "id ASC"), ", "), nil
}

func (o *Oracle) column(table, column string) (schema.ColumnType, error) {
	s, ok := o.schemas[table]
	if !ok {
		return "", fmt.Errorf("table %s is not attached", table)
	}
	if !validIdentifier.MatchString(column) {
		return "", fmt.Errorf("invalid column name %q: must match pattern %s", column, validIdentifier.String())
	}
	if err := s.CheckPrimitive(column); err != nil {
		return "", err
	}
	t, _ := s.Type(column)
	return t, nil
}

// fromSQL converts a scanned SQLite value back to its column type.
func fromSQL(t schema.ColumnType, raw any) (schema.Value, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []byte:
		raw = string(v)
	case int64:
		if t == schema.TypeBoolean {
			return v != 0, nil
		}
	}
	return schema.Normalize(t, raw)
}
