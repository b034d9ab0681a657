package tables

import (
	"encoding/json"

	"github.com/iudanet/gophmesh/internal/crdt"
)

// View is a read-only handle on one table. Every value it returns is a copy
type View struct {
	store *Store
	name  string
}

// Name returns the table name
func (v *View) Name() string {
	return v.name
}

func (v *View) rows() *crdt.LWWMap {
	if m, ok := v.store.lookup(v.name); ok {
		return m
	}
	return nil
}

// Get returns the value of a live row
func (v *View) Get(rowID string) (json.RawMessage, bool) {
	m := v.rows()
	if m == nil {
		return nil, false
	}
	return m.Get(rowID)
}

// Has reports whether a live row exists
func (v *View) Has(rowID string) bool {
	m := v.rows()
	return m != nil && m.Contains(rowID)
}

// Keys returns the sorted ids of live rows
func (v *View) Keys() []string {
	m := v.rows()
	if m == nil {
		return []string{}
	}
	return m.Keys()
}

// Values returns live row values in key order
func (v *View) Values() []json.RawMessage {
	entries := v.Entries()
	values := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		values = append(values, e.Value)
	}
	return values
}

// Entries returns live rows in key order
func (v *View) Entries() []crdt.KeyValue {
	m := v.rows()
	if m == nil {
		return []crdt.KeyValue{}
	}
	return m.Entries()
}

// ForEach calls fn for every live row in key order.
// fn works on a snapshot and may write to the store
func (v *View) ForEach(fn func(rowID string, value json.RawMessage)) {
	for _, e := range v.Entries() {
		fn(e.Key, e.Value)
	}
}

// Size returns the number of live rows
func (v *View) Size() int {
	m := v.rows()
	if m == nil {
		return 0
	}
	return m.Size()
}
