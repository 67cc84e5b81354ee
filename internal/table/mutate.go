package table

import (
	"fmt"

	"github.com/roach88/livetable/internal/schema"
)

// Insert adds a row and returns its id. A missing or empty id is generated.
func (t *Table) Insert(values map[string]any) (string, error) {
	t.reclaim()
	normalized, err := t.schema.NormalizeRow(values)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", t.name, err)
	}

	id, _ := normalized[schema.IDColumn].(string)
	if id == "" {
		id = t.ids.Generate()
		normalized[schema.IDColumn] = id
	}
	if t.records.Has(id) {
		return "", fmt.Errorf("insert into %s: %w: %s", t.name, ErrDuplicateID, id)
	}

	t.records.Set(id, normalized)
	return id, nil
}

// Update sets one column of the row with id.
func (t *Table) Update(id, column string, value any) error {
	return t.UpdateRow(id, map[string]any{column: value})
}

// UpdateRow sets several columns of the row with id in one transaction.
func (t *Table) UpdateRow(id string, values map[string]any) error {
	t.reclaim()
	if _, ok := values[schema.IDColumn]; ok {
		return fmt.Errorf("update %s: %w", t.name, ErrImmutableID)
	}
	normalized, err := t.schema.NormalizeRow(values)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	rec, ok := t.records.Get(id)
	if !ok {
		return fmt.Errorf("update %s: %w: %s", t.name, ErrRowNotFound, id)
	}

	return t.doc.Transact(func() error {
		for _, c := range t.schema.Names() {
			v, ok := normalized[c]
			if !ok {
				continue
			}
			if err := rec.Set(c, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the row with id.
func (t *Table) Delete(id string) error {
	t.reclaim()
	if err := t.records.Delete(id); err != nil {
		return fmt.Errorf("delete from %s: %w: %s", t.name, ErrRowNotFound, id)
	}
	return nil
}

// Transact runs fn in one changefeed transaction. Every table of the same
// document notifies its observers once, after fn has returned and all of its
// mutations have been applied. If fn fails, its mutations are rolled back.
func (t *Table) Transact(fn func() error) error {
	return t.doc.Transact(fn)
}
