package crdt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MaxGlobal ограничивает глобальную компоненту часов 40 битами.
const MaxGlobal = 1<<40 - 1

// ErrClockOverflow indicates a global component outside the 40-bit range
var ErrClockOverflow = errors.New("clock global component overflows 40 bits")

// Clock представляет гибридные логические часы (global, site, local).
// Порядок лексикографический: сначала global, затем site, затем local.
// Это не векторные часы: сравнение определяет только "позже по правилу",
// но не причинность.
type Clock struct {
	Global uint64 `json:"global"` // Global водяной знак, растёт при наблюдении чужих изменений
	Local  uint64 `json:"local"`  // Local счётчик локальных изменений
	Site   uint32 `json:"site"`   // Site случайный идентификатор экземпляра базы
}

// Compare возвращает -1, 0 или 1 в зависимости от порядка a и b.
func Compare(a, b Clock) int {
	switch {
	case a.Global != b.Global:
		return cmp(a.Global, b.Global)
	case a.Site != b.Site:
		return cmp(uint64(a.Site), uint64(b.Site))
	default:
		return cmp(a.Local, b.Local)
	}
}

func cmp(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Less reports whether c orders strictly before other.
func (c Clock) Less(other Clock) bool {
	return Compare(c, other) < 0
}

// After reports whether c orders strictly after other.
func (c Clock) After(other Clock) bool {
	return Compare(c, other) > 0
}

// IsZero reports whether no clock has been recorded.
func (c Clock) IsZero() bool {
	return c == Clock{}
}

// Validate checks the 40-bit range of the global component.
func (c Clock) Validate() error {
	if c.Global > MaxGlobal {
		return fmt.Errorf("%w: %d", ErrClockOverflow, c.Global)
	}
	return nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%d.%d.%d", c.Global, c.Site, c.Local)
}

// RandomSite выбирает идентификатор экземпляра при открытии базы.
// Коллизии допустимы: site используется только для разрешения равенства global.
func RandomSite() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[:4])
}

// Generator выдаёт часы для локальных изменений и продвигает водяной знак
// при наблюдении удалённых.
type Generator struct {
	current Clock
	mu      sync.Mutex
}

// NewGenerator создает генератор с заданным site и начальным global.
// При открытии базы global = максимальный сохранённый global + 1.
func NewGenerator(site uint32, global uint64) *Generator {
	if global > MaxGlobal {
		global = MaxGlobal
	}
	return &Generator{
		current: Clock{Global: global, Site: site},
	}
}

// Next увеличивает local и возвращает часы для нового локального изменения.
// Последовательные вызовы возвращают строго возрастающие значения.
func (g *Generator) Next() Clock {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.current.Local++
	return g.current
}

// Observe обновляет водяной знак по часам удалённого изменения:
// если global <= remote.Global, то global = remote.Global + 1 и local = 0.
// Возвращает true, если водяной знак сдвинулся.
func (g *Generator) Observe(remote Clock) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current.Global > remote.Global || g.current.Global >= MaxGlobal {
		return false
	}
	g.current.Global = min(remote.Global+1, MaxGlobal)
	g.current.Local = 0
	return true
}

// Current возвращает текущее значение часов без изменения.
func (g *Generator) Current() Clock {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.current
}

// Site возвращает идентификатор экземпляра.
func (g *Generator) Site() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.current.Site
}
