package share

import (
	"fmt"
	"time"

	"github.com/iudanet/gophmesh/internal/metrics"
)

// PeerState стадия жизненного цикла соединения с пиром
type PeerState int

const (
	StateConnecting PeerState = iota // StateConnecting идёт обмен IV
	StateOpen                        // StateOpen канал открыт, синхронизация ещё не начата
	StateSyncing                     // StateSyncing идёт массовая сверка
	StateIdle                        // StateIdle инкрементальная синхронизация по таймеру
	StateClosed                      // StateClosed соединение закрыто
)

func (s PeerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateSyncing:
		return "syncing"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connected reports whether RPCs can be made in this state
func (s PeerState) Connected() bool {
	return s == StateOpen || s == StateSyncing || s == StateIdle
}

// Виды синхронизации, совпадают с метками метрик
const (
	KindBulk        = metrics.SyncBulk
	KindIncremental = metrics.SyncIncremental
)

// SyncResult counts what one sync round pulled from a peer
type SyncResult struct {
	Kind      string
	Pulled    int    // Pulled изменений в ответе
	Added     int    // Added впервые увиденных изменений
	Applied   int    // Applied изменений, изменивших таблицы
	Rejected  int    // Rejected изменений, не прошедших декодирование
	Conflicts int    // Conflicts локальных изменений, проигравших удалённым
	Cursor    uint64 // Cursor позиция в журнале пира после синхронизации
}

// Merge adds the counters of other to r
func (r *SyncResult) Merge(other SyncResult) {
	r.Pulled += other.Pulled
	r.Added += other.Added
	r.Applied += other.Applied
	r.Rejected += other.Rejected
	r.Conflicts += other.Conflicts
}

// PeerInfo is a snapshot of one peer's sync state
type PeerInfo struct {
	LastSync   time.Time
	ID         string
	LastResult SyncResult
	Cursor     uint64
	State      PeerState
}
