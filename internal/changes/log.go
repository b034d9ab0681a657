// Package changes implements the content-addressed change log: the set of
// every change a database instance has seen, kept in discovery order and
// summarised by a Bloom filter for anti-entropy.
package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/gophmesh/internal/bloom"
	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/internal/storage"
)

const (
	// DefaultFlushInterval период фонового сброса на диск
	DefaultFlushInterval = 500 * time.Millisecond

	// DefaultCapacity начальная ёмкость bloom-фильтра
	DefaultCapacity = 1024

	storeName = "changes"
)

// ErrFlushInProgress is returned by TryFlush when another flush holds the log
var ErrFlushInProgress = errors.New("flush already in progress")

// Entry is one change in the log. Data must not be modified by callers
type Entry struct {
	Hash string
	Data []byte
}

// Options configures a Log
type Options struct {
	Metrics *metrics.Metrics

	// Capacity начальное число изменений, на которое рассчитан фильтр
	Capacity int

	// FalsePositive целевая вероятность ложного срабатывания фильтра
	FalsePositive float64
}

// Log is the in-memory change log backed by a ChangeStorage
type Log struct {
	store   storage.ChangeStorage
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	index    map[string]int
	list     []Entry
	filter   *bloom.Filter
	capacity int
	fp       float64

	// writeCursor число изменений из list, уже сохранённых на диск
	writeCursor int
	flushing    atomic.Bool
}

// Open loads every stored change and builds the index and the Bloom filter
func Open(ctx context.Context, store storage.ChangeStorage, logger *slog.Logger, opts Options) (*Log, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.FalsePositive <= 0 {
		opts.FalsePositive = bloom.DefaultFalsePositive
	}

	stored, err := store.LoadChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load changes: %w", err)
	}

	l := &Log{
		store:    store,
		logger:   logger,
		metrics:  opts.Metrics,
		index:    make(map[string]int, len(stored)),
		list:     make([]Entry, 0, len(stored)),
		capacity: opts.Capacity,
		fp:       opts.FalsePositive,
	}

	for _, sc := range stored {
		if crypto.HashChange(sc.Data) != sc.Hash {
			logger.Warn("Skipping stored change with mismatched hash", "hash", sc.Hash)
			continue
		}
		if _, ok := l.index[sc.Hash]; ok {
			continue
		}
		l.index[sc.Hash] = len(l.list)
		l.list = append(l.list, Entry{Hash: sc.Hash, Data: sc.Data})
	}

	// Всё загруженное уже лежит на диске
	l.writeCursor = len(l.list)

	for l.capacity < len(l.list) {
		l.capacity *= 2
	}
	if err := l.rebuildFilter(); err != nil {
		return nil, err
	}

	l.metrics.SetChangeLogSize(len(l.list))
	logger.Debug("Change log loaded", "changes", len(l.list), "filter_bits", l.filter.Bits())

	return l, nil
}

// rebuildFilter пересоздаёт фильтр под текущую ёмкость. Вызывается под mu
func (l *Log) rebuildFilter() error {
	f, err := bloom.New(l.capacity, l.fp)
	if err != nil {
		return fmt.Errorf("failed to create bloom filter: %w", err)
	}
	for _, e := range l.list {
		f.Add(e.Hash)
	}
	l.filter = f
	return nil
}

// Add records a change under its hash. It is the only deduplication gate:
// returns true only the first time a hash is seen
func (l *Log) Add(hash string, data []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[hash]; ok {
		l.metrics.ChangeDuplicate()
		return false
	}

	l.index[hash] = len(l.list)
	l.list = append(l.list, Entry{Hash: hash, Data: append([]byte(nil), data...)})

	if len(l.list) > l.capacity {
		l.capacity *= 2
		if err := l.rebuildFilter(); err != nil {
			// ёмкость и вероятность уже проверены при открытии
			l.logger.Error("Failed to grow bloom filter", "capacity", l.capacity, "error", err)
		}
	}
	l.filter.Add(hash)

	l.metrics.ChangeAdded(len(l.list))
	return true
}

// AddData hashes data and adds it to the log
func (l *Log) AddData(data []byte) (string, bool) {
	hash := crypto.HashChange(data)
	return hash, l.Add(hash, data)
}

// Has reports whether a hash is in the log
func (l *Log) Has(hash string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.index[hash]
	return ok
}

// Get returns a change by hash
func (l *Log) Get(hash string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[hash]
	if !ok {
		return Entry{}, false
	}
	return l.list[i], true
}

// Len returns the number of changes in the log
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.list)
}

// BloomFilter returns the serialized filter over every hash in the log
func (l *Log) BloomFilter() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.filter.Bytes()
}

// Missing returns, in log order, every change the remote filter does not report
func (l *Log) Missing(filterBytes []byte) ([]Entry, error) {
	remote, err := bloom.FromBytes(filterBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bloom filter: %w", err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	missing := make([]Entry, 0)
	for _, e := range l.list {
		if !remote.Has(e.Hash) {
			missing = append(missing, e)
		}
	}
	return missing, nil
}

// After returns every change appended since cursor and the new cursor.
// A cursor at or past the end yields no changes and the current length
func (l *Log) After(cursor uint64) ([]Entry, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := uint64(len(l.list))
	if cursor >= n {
		return nil, n
	}

	out := make([]Entry, n-cursor)
	copy(out, l.list[cursor:])
	return out, n
}

// Pending returns the number of changes not yet written to storage
func (l *Log) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.list) - l.writeCursor
}

// Flush writes every pending change in one batch. If another flush is running
// Flush returns immediately with nil; the next tick picks the batch up.
// On failure the write cursor stays put and the batch is retried later
func (l *Log) Flush(ctx context.Context) error {
	err := l.TryFlush(ctx)
	if errors.Is(err, ErrFlushInProgress) {
		return nil
	}
	return err
}

// TryFlush is Flush that reports ErrFlushInProgress instead of skipping silently
func (l *Log) TryFlush(ctx context.Context) error {
	if !l.flushing.CompareAndSwap(false, true) {
		return ErrFlushInProgress
	}
	defer l.flushing.Store(false)

	l.mu.RLock()
	start, end := l.writeCursor, len(l.list)
	batch := make([]storage.StoredChange, 0, end-start)
	for _, e := range l.list[start:end] {
		batch = append(batch, storage.StoredChange{Hash: e.Hash, Data: e.Data})
	}
	l.mu.RUnlock()

	if len(batch) == 0 {
		return nil
	}

	if err := l.store.SaveChanges(ctx, batch); err != nil {
		l.metrics.Flushed(storeName, 0, err)
		return fmt.Errorf("failed to save changes: %w", err)
	}

	// Список только растёт, поэтому end остаётся верной границей
	l.mu.Lock()
	l.writeCursor = end
	l.mu.Unlock()

	l.metrics.Flushed(storeName, len(batch), nil)
	l.logger.Debug("Changes flushed", "count", len(batch))
	return nil
}

// Run flushes the log every interval until ctx is done
func (l *Log) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Flush(ctx); err != nil {
				l.logger.Warn("Change log flush failed, persistence degraded", "pending", l.Pending(), "error", err)
			}
		}
	}
}

// Close waits for a running flush and writes the remaining changes
func (l *Log) Close(ctx context.Context) error {
	for {
		err := l.TryFlush(ctx)
		if !errors.Is(err, ErrFlushInProgress) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
