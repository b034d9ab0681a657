package crdt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		a        Clock
		b        Clock
		expected int
	}{
		{"equal", Clock{Global: 1, Site: 2, Local: 3}, Clock{Global: 1, Site: 2, Local: 3}, 0},
		{"global wins over site", Clock{Global: 2, Site: 1}, Clock{Global: 1, Site: 9}, 1},
		{"site breaks global tie", Clock{Global: 1, Site: 1, Local: 9}, Clock{Global: 1, Site: 2}, -1},
		{"local breaks site tie", Clock{Global: 1, Site: 2, Local: 4}, Clock{Global: 1, Site: 2, Local: 3}, 1},
		{"zero before anything", Clock{}, Clock{Local: 1}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.expected, Compare(tt.b, tt.a), "Compare should be antisymmetric")
			assert.Equal(t, tt.expected < 0, tt.a.Less(tt.b))
			assert.Equal(t, tt.expected > 0, tt.a.After(tt.b))
		})
	}
}

func TestClock_IsZeroAndValidate(t *testing.T) {
	assert.True(t, Clock{}.IsZero())
	assert.False(t, Clock{Site: 1}.IsZero())

	require.NoError(t, Clock{Global: MaxGlobal}.Validate())
	assert.ErrorIs(t, Clock{Global: MaxGlobal + 1}.Validate(), ErrClockOverflow)

	assert.Equal(t, "3.2.1", Clock{Global: 3, Site: 2, Local: 1}.String())
}

func TestGenerator_Next_Monotonicity(t *testing.T) {
	gen := NewGenerator(7, 1)

	previous := gen.Current()
	for i := 0; i < 100; i++ {
		current := gen.Next()
		assert.True(t, current.After(previous), "Next should always increase")
		assert.Equal(t, uint32(7), current.Site)
		previous = current
	}

	assert.Equal(t, Clock{Global: 1, Site: 7, Local: 100}, gen.Current())
}

func TestGenerator_Observe(t *testing.T) {
	tests := []struct {
		name          string
		localGlobal   uint64
		remote        Clock
		expectedMoved bool
		expected      Clock
	}{
		{
			name:          "remote global greater than local",
			localGlobal:   5,
			remote:        Clock{Global: 10, Site: 1, Local: 4},
			expectedMoved: true,
			expected:      Clock{Global: 11, Site: 9},
		},
		{
			name:          "remote global equal to local",
			localGlobal:   5,
			remote:        Clock{Global: 5, Site: 1},
			expectedMoved: true,
			expected:      Clock{Global: 6, Site: 9},
		},
		{
			name:          "remote global less than local",
			localGlobal:   15,
			remote:        Clock{Global: 10, Site: 1},
			expectedMoved: false,
			expected:      Clock{Global: 15, Site: 9, Local: 1},
		},
		{
			name:          "watermark saturates at 40 bits",
			localGlobal:   1,
			remote:        Clock{Global: MaxGlobal},
			expectedMoved: true,
			expected:      Clock{Global: MaxGlobal, Site: 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(9, tt.localGlobal)
			gen.Next() // локальное изменение до наблюдения

			moved := gen.Observe(tt.remote)
			assert.Equal(t, tt.expectedMoved, moved)
			assert.Equal(t, tt.expected, gen.Current())
		})
	}
}

func TestGenerator_LocalAfterObservedRemote(t *testing.T) {
	gen := NewGenerator(1, 1)
	remote := Clock{Global: 40, Site: 99, Local: 1000}

	gen.Observe(remote)
	next := gen.Next()

	// изменение, сделанное после наблюдения, должно побеждать наблюдённое
	assert.True(t, next.After(remote))
}

func TestNewGenerator_ClampsGlobal(t *testing.T) {
	gen := NewGenerator(1, MaxGlobal+10)
	assert.Equal(t, uint64(MaxGlobal), gen.Current().Global)
	assert.Equal(t, uint32(1), gen.Site())
}

func TestRandomSite_Unique(t *testing.T) {
	sites := make(map[uint32]struct{})
	for i := 0; i < 100; i++ {
		sites[RandomSite()] = struct{}{}
	}
	// коллизии теоретически возможны, но не на сотне значений из 2^32
	assert.Greater(t, len(sites), 95)
}

func TestGenerator_ConcurrentNext(t *testing.T) {
	gen := NewGenerator(3, 1)
	const goroutines = 50
	const perGoroutine = 100

	var mu sync.Mutex
	seen := make(map[Clock]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c := gen.Next()
				mu.Lock()
				seen[c] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine, "All clocks should be unique")
	assert.Equal(t, uint64(goroutines*perGoroutine), gen.Current().Local)
}

func BenchmarkGenerator_Next(b *testing.B) {
	gen := NewGenerator(1, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gen.Next()
	}
}
