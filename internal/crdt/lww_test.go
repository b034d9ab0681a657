package crdt

import (
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clk(global uint64, site uint32, local uint64) Clock {
	return Clock{Global: global, Site: site, Local: local}
}

func TestNewLWWMap(t *testing.T) {
	m := NewLWWMap()

	require.NotNil(t, m)
	assert.Equal(t, 0, m.Size(), "New map should be empty")
	assert.Equal(t, 0, m.TotalSize())
	assert.True(t, m.MaxClock().IsZero())
}

func TestLWWMap_Set(t *testing.T) {
	tests := []struct {
		name          string
		first         Clock
		second        Clock
		expectedValue string
		expectedApply bool
	}{
		{"newer clock wins", clk(1, 1, 1), clk(1, 1, 2), `"second"`, true},
		{"older clock ignored", clk(2, 1, 1), clk(1, 9, 9), `"first"`, false},
		{"equal clock larger value wins", clk(1, 1, 1), clk(1, 1, 1), `"second"`, true},
		{"site breaks tie", clk(1, 1, 5), clk(1, 2, 0), `"second"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewLWWMap()
			require.True(t, m.Set("row", tt.first, json.RawMessage(`"first"`)))

			applied := m.Set("row", tt.second, json.RawMessage(`"second"`))
			assert.Equal(t, tt.expectedApply, applied)

			value, ok := m.Get("row")
			require.True(t, ok)
			assert.JSONEq(t, tt.expectedValue, string(value))
		})
	}
}

func TestEntry_Newer(t *testing.T) {
	c := clk(3, 7, 1)
	value := func(v string) Entry { return Entry{Clock: c, Value: json.RawMessage(v)} }
	tombstone := Entry{Clock: c, Deleted: true}

	tests := []struct {
		name  string
		e     Entry
		other Entry
		want  bool
	}{
		{name: "later clock", e: Entry{Clock: clk(3, 7, 2), Value: json.RawMessage(`"a"`)}, other: value(`"z"`), want: true},
		{name: "earlier clock", e: Entry{Clock: clk(2, 9, 9), Deleted: true}, other: value(`"a"`), want: false},
		{name: "larger value", e: value(`"b"`), other: value(`"a"`), want: true},
		{name: "smaller value", e: value(`"a"`), other: value(`"b"`), want: false},
		{name: "identical", e: value(`"a"`), other: value(`"a"`), want: false},
		{name: "tombstone beats value", e: tombstone, other: value(`"z"`), want: true},
		{name: "value loses to tombstone", e: value(`"z"`), other: tombstone, want: false},
		{name: "two tombstones", e: tombstone, other: tombstone, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.e.Newer(tt.other))
		})
	}
}

func TestLWWMap_EqualClockOrderIndependent(t *testing.T) {
	c := clk(5, 42, 1)
	orders := [][]string{
		{`"a"`, `"c"`, `"b"`},
		{`"c"`, `"b"`, `"a"`},
		{`"b"`, `"a"`, `"c"`},
	}

	for _, order := range orders {
		m := NewLWWMap()
		for _, v := range order {
			m.Set("row", c, json.RawMessage(v))
		}
		got, ok := m.Get("row")
		require.True(t, ok)
		assert.JSONEq(t, `"c"`, string(got), "order %v", order)

		m.Remove("row", c)
		m.Set("row", c, json.RawMessage(`"d"`))
		assert.False(t, m.Contains("row"), "order %v", order)
	}
}

func TestLWWMap_Remove(t *testing.T) {
	m := NewLWWMap()
	m.Set("row", clk(1, 1, 1), json.RawMessage(`1`))

	// удаление более старыми часами игнорируется
	assert.False(t, m.Remove("row", clk(0, 1, 1)))
	assert.True(t, m.Contains("row"))

	assert.True(t, m.Remove("row", clk(1, 1, 2)))
	assert.False(t, m.Contains("row"))
	assert.Equal(t, 0, m.Size())
	assert.Equal(t, 1, m.TotalSize(), "Tombstone should stay in map")

	entry, ok := m.Entry("row")
	require.True(t, ok)
	assert.True(t, entry.Deleted)
	assert.Nil(t, entry.Value)
}

func TestLWWMap_TombstoneBlocksResurrection(t *testing.T) {
	m := NewLWWMap()
	m.Remove("row", clk(5, 1, 1))

	// запоздавшее старое обновление не воскрешает строку
	assert.False(t, m.Set("row", clk(4, 2, 7), json.RawMessage(`"late"`)))
	_, ok := m.Get("row")
	assert.False(t, ok)

	// более новое обновление воскрешает
	assert.True(t, m.Set("row", clk(6, 1, 0), json.RawMessage(`"new"`)))
	assert.True(t, m.Contains("row"))
}

func TestLWWMap_GetReturnsCopy(t *testing.T) {
	m := NewLWWMap()
	original := json.RawMessage(`{"a":1}`)
	m.Set("row", clk(1, 1, 1), original)
	original[2] = 'b'

	value, _ := m.Get("row")
	value[2] = 'c'

	again, _ := m.Get("row")
	assert.JSONEq(t, `{"a":1}`, string(again))
}

func TestLWWMap_KeysAndEntries(t *testing.T) {
	m := NewLWWMap()
	m.Set("b", clk(1, 1, 1), json.RawMessage(`2`))
	m.Set("a", clk(1, 1, 2), json.RawMessage(`1`))
	m.Set("c", clk(1, 1, 3), json.RawMessage(`3`))
	m.Remove("c", clk(1, 1, 4))

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	assert.Equal(t, []KeyValue{
		{Key: "a", Value: json.RawMessage(`1`)},
		{Key: "b", Value: json.RawMessage(`2`)},
	}, m.Entries())
	assert.Equal(t, clk(1, 1, 4), m.MaxClock())
}

func TestLWWMap_Merge_Commutativity(t *testing.T) {
	a := NewLWWMap()
	b := NewLWWMap()

	a.Set("x", clk(1, 1, 1), json.RawMessage(`"a1"`))
	a.Set("y", clk(3, 1, 1), json.RawMessage(`"a3"`))
	b.Set("x", clk(2, 2, 1), json.RawMessage(`"b2"`))
	b.Remove("y", clk(2, 2, 2))
	b.Set("z", clk(1, 2, 1), json.RawMessage(`"b1"`))

	ab := NewLWWMap()
	ab.Merge(a)
	ab.Merge(b)

	ba := NewLWWMap()
	ba.Merge(b)
	ba.Merge(a)

	assert.Equal(t, ab.Entries(), ba.Entries())
	assert.Equal(t, []string{"x", "y", "z"}, ab.Keys())

	x, _ := ab.Get("x")
	assert.JSONEq(t, `"b2"`, string(x))
}

func TestLWWMap_Merge_Idempotency(t *testing.T) {
	m := NewLWWMap()
	m.Set("x", clk(1, 1, 1), json.RawMessage(`1`))

	other := NewLWWMap()
	other.Set("y", clk(1, 2, 1), json.RawMessage(`2`))

	m.Merge(other)
	first := m.Entries()
	m.Merge(other)
	m.Merge(m)

	assert.Equal(t, first, m.Entries())
}

func TestLWWMap_OrderIndependence(t *testing.T) {
	type op struct {
		value json.RawMessage
		key   string
		clock Clock
		del   bool
	}

	ops := make([]op, 0, 200)
	for i := 0; i < 200; i++ {
		ops = append(ops, op{
			key:   "row-" + strconv.Itoa(i%7),
			clock: clk(uint64(i%13), uint32(i%3), uint64(i)),
			value: json.RawMessage(strconv.Itoa(i)),
			del:   i%5 == 0,
		})
	}

	apply := func(order []op) *LWWMap {
		m := NewLWWMap()
		for _, o := range order {
			if o.del {
				m.Remove(o.key, o.clock)
			} else {
				m.Set(o.key, o.clock, o.value)
			}
		}
		return m
	}

	expected := apply(ops).Entries()

	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 10; round++ {
		shuffled := append([]op(nil), ops...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		assert.Equal(t, expected, apply(shuffled).Entries(), "round %d", round)
	}
}

func TestLWWMap_ConcurrentSet(t *testing.T) {
	m := NewLWWMap()
	const goroutines = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(site uint32) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set("shared", clk(uint64(j), site, 0), json.RawMessage(strconv.Itoa(int(site))))
			}
		}(uint32(i))
	}
	wg.Wait()

	// побеждает наибольший site на максимальном global
	value, ok := m.Get("shared")
	require.True(t, ok)
	assert.Equal(t, strconv.Itoa(goroutines-1), string(value))
}

func BenchmarkLWWMap_Set(b *testing.B) {
	m := NewLWWMap()
	value := json.RawMessage(`{"k":"v"}`)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Set("row-"+strconv.Itoa(i%1000), clk(uint64(i), 1, 0), value)
	}
}
