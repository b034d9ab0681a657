package db

import (
	"encoding/json"
	"fmt"

	"github.com/segmentio/ksuid"

	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/tables"
	"github.com/iudanet/gophmesh/internal/validation"
)

// Table is a handle on one table of a DB. Values are JSON documents
type Table struct {
	db   *DB
	view *tables.View
	name string
}

// Name returns the table name
func (t *Table) Name() string {
	return t.name
}

// Get returns the value of a live row
func (t *Table) Get(rowID string) (json.RawMessage, bool) {
	return t.view.Get(rowID)
}

// GetInto decodes the value of a live row into v
func (t *Table) GetInto(rowID string, v any) (bool, error) {
	raw, ok := t.view.Get(rowID)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode row %s: %w", rowID, err)
	}
	return true, nil
}

// Has reports whether a live row exists
func (t *Table) Has(rowID string) bool {
	return t.view.Has(rowID)
}

// Keys returns the sorted ids of live rows
func (t *Table) Keys() []string {
	return t.view.Keys()
}

// Values returns the values of live rows in key order
func (t *Table) Values() []json.RawMessage {
	return t.view.Values()
}

// Entries returns live rows in key order
func (t *Table) Entries() []crdt.KeyValue {
	return t.view.Entries()
}

// ForEach calls fn for every live row in key order
func (t *Table) ForEach(fn func(rowID string, value json.RawMessage)) {
	t.view.ForEach(fn)
}

// Size returns the number of live rows
func (t *Table) Size() int {
	return t.view.Size()
}

// Insert stores value under a new time-ordered row id and returns the id.
// value must be structurally simple: JSON-compatible scalars, slices, maps and structs
func (t *Table) Insert(value any) (string, error) {
	raw, err := validation.EncodeValue(value)
	if err != nil {
		return "", err
	}

	rowID := ksuid.New().String()
	if err := t.db.write(t.name, rowID, models.ChangeUpdate, raw); err != nil {
		return "", err
	}
	return rowID, nil
}

// Update replaces the value of a row. A row that does not exist yet is created
func (t *Table) Update(rowID string, value any) error {
	raw, err := validation.EncodeValue(value)
	if err != nil {
		return err
	}
	return t.db.write(t.name, rowID, models.ChangeUpdate, raw)
}

// Delete tombstones a row and returns its previous value, nil if it was not live
func (t *Table) Delete(rowID string) (json.RawMessage, error) {
	prev, _ := t.view.Get(rowID)
	if err := t.db.write(t.name, rowID, models.ChangeDelete, nil); err != nil {
		return nil, err
	}
	return prev, nil
}
