package crdt

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"
)

// Entry представляет строку таблицы вместе с её теневыми часами.
// Удалённая строка остаётся в map как tombstone, чтобы запоздавшее
// старое обновление не могло её воскресить.
type Entry struct {
	Value   json.RawMessage `json:"value,omitempty"`
	Clock   Clock           `json:"clock"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Clone создает глубокую копию записи
func (e Entry) Clone() Entry {
	out := e
	if e.Value != nil {
		out.Value = bytes.Clone(e.Value)
	}
	return out
}

// Newer reports whether e wins over other under last-writer-wins.
// Равные часы у разных изменений возможны при совпадении site: тогда
// tombstone побеждает значение, а из двух значений большее по байтам
func (e Entry) Newer(other Entry) bool {
	if c := Compare(e.Clock, other.Clock); c != 0 {
		return c > 0
	}
	if e.Deleted != other.Deleted {
		return e.Deleted
	}
	if e.Deleted {
		return false
	}
	return bytes.Compare(e.Value, other.Value) > 0
}

// KeyValue is one live row as returned by Entries.
type KeyValue struct {
	Key   string
	Value json.RawMessage
}

// LWWMap представляет Last-Write-Wins map: строки по ключу, каждая со своими часами.
// Изменение применяется, только если оно новее записанного (см. Entry.Newer)
// или записи для ключа ещё нет. Итоговое состояние не зависит от порядка применения.
type LWWMap struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

// NewLWWMap создает пустую LWW map.
func NewLWWMap() *LWWMap {
	return &LWWMap{
		entries: make(map[string]Entry),
	}
}

// Set записывает значение, если clock новее записанных часов.
// Возвращает true, если значение применено.
func (m *LWWMap) Set(key string, clock Clock, value json.RawMessage) bool {
	return m.Apply(key, Entry{Clock: clock, Value: value})
}

// Remove помечает строку удалённой при том же условии, что и Set.
func (m *LWWMap) Remove(key string, clock Clock) bool {
	return m.Apply(key, Entry{Clock: clock, Deleted: true})
}

// Apply применяет запись целиком (значение или tombstone) по правилу LWW.
func (m *LWWMap) Apply(key string, e Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.entries[key]
	if exists && !e.Newer(existing) {
		return false
	}

	e = e.Clone()
	if e.Deleted {
		e.Value = nil
	}
	m.entries[key] = e
	return true
}

// Get возвращает копию значения живой строки.
func (m *LWWMap) Get(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entries[key]
	if !exists || e.Deleted {
		return nil, false
	}
	return bytes.Clone(e.Value), true
}

// Entry возвращает запись по ключу, включая tombstone.
func (m *LWWMap) Entry(key string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entries[key]
	if !exists {
		return Entry{}, false
	}
	return e.Clone(), true
}

// Contains проверяет наличие живой строки.
func (m *LWWMap) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.entries[key]
	return exists && !e.Deleted
}

// Keys возвращает отсортированные ключи живых строк.
func (m *LWWMap) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.liveKeys()
}

func (m *LWWMap) liveKeys() []string {
	keys := make([]string, 0, len(m.entries))
	for key, e := range m.entries {
		if !e.Deleted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Entries возвращает копии живых строк в порядке ключей.
func (m *LWWMap) Entries() []KeyValue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := m.liveKeys()
	out := make([]KeyValue, 0, len(keys))
	for _, key := range keys {
		out = append(out, KeyValue{Key: key, Value: bytes.Clone(m.entries[key].Value)})
	}
	return out
}

// Size возвращает количество живых строк.
func (m *LWWMap) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		if !e.Deleted {
			count++
		}
	}
	return count
}

// TotalSize возвращает количество записей вместе с tombstone.
func (m *LWWMap) TotalSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// MaxClock возвращает наибольшие часы среди всех записей.
func (m *LWWMap) MaxClock() Clock {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var maxClock Clock
	for _, e := range m.entries {
		if e.Clock.After(maxClock) {
			maxClock = e.Clock
		}
	}
	return maxClock
}

// Merge объединяет текущую map с другой по правилу LWW.
// Операция коммутативна и идемпотентна.
func (m *LWWMap) Merge(other *LWWMap) {
	if m == other {
		return
	}

	other.mu.RLock()
	snapshot := make(map[string]Entry, len(other.entries))
	for key, e := range other.entries {
		snapshot[key] = e.Clone()
	}
	other.mu.RUnlock()

	for key, e := range snapshot {
		m.Apply(key, e)
	}
}
