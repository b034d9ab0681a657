// Package tables holds the materialised state of every table: rows merged
// by last-writer-wins on their hybrid clocks, with tombstones for deletes.
package tables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/storage"
	"github.com/iudanet/gophmesh/internal/validation"
)

// DefaultFlushInterval период фонового сброса строк на диск
const DefaultFlushInterval = 500 * time.Millisecond

const storeName = "rows"

var (
	// ErrInvalidValue indicates a row value that is not valid JSON
	ErrInvalidValue = errors.New("invalid row value")

	// ErrUnknownKind indicates a change with an unsupported kind
	ErrUnknownKind = errors.New("unknown change kind")

	// ErrFlushInProgress is returned by TryFlush when another flush is running
	ErrFlushInProgress = errors.New("flush already in progress")
)

// Options configures a Store
type Options struct {
	Metrics *metrics.Metrics

	// Validate включает проверку имён и JSON значений на входе
	Validate bool
}

// Store is the set of all tables of one database instance
type Store struct {
	rows     storage.RowStorage
	logger   *slog.Logger
	metrics  *metrics.Metrics
	validate bool

	mu     sync.RWMutex
	tables map[string]*crdt.LWWMap

	pendingMu sync.Mutex
	pending   map[models.RowKey]models.Row
	flushing  atomic.Bool
}

// Open loads every stored row. It returns the store and the largest clock
// found, so the caller can start its generator past it
func Open(ctx context.Context, rows storage.RowStorage, logger *slog.Logger, opts Options) (*Store, crdt.Clock, error) {
	loaded, err := rows.LoadRows(ctx)
	if err != nil {
		return nil, crdt.Clock{}, fmt.Errorf("failed to load rows: %w", err)
	}

	s := &Store{
		rows:     rows,
		logger:   logger,
		metrics:  opts.Metrics,
		validate: opts.Validate,
		tables:   make(map[string]*crdt.LWWMap),
		pending:  make(map[models.RowKey]models.Row),
	}

	var maxClock crdt.Clock
	for _, row := range loaded {
		s.table(row.Table).Apply(row.RowID, row.Entry())
		if row.Clock.After(maxClock) {
			maxClock = row.Clock
		}
	}

	logger.Debug("Tables loaded", "rows", len(loaded), "tables", len(s.tables), "max_clock", maxClock.String())

	return s, maxClock, nil
}

// table возвращает map таблицы, создавая её при первом обращении
func (s *Store) table(name string) *crdt.LWWMap {
	s.mu.RLock()
	m, ok := s.tables[name]
	s.mu.RUnlock()
	if ok {
		return m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok = s.tables[name]; !ok {
		m = crdt.NewLWWMap()
		s.tables[name] = m
	}
	return m
}

func (s *Store) lookup(name string) (*crdt.LWWMap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.tables[name]
	return m, ok
}

func (s *Store) checkNames(table, rowID string) error {
	if !s.validate {
		return nil
	}
	if err := validation.ValidateTableName(table); err != nil {
		return err
	}
	return validation.ValidateRowID(rowID)
}

// SetValue writes value if clock orders strictly after the row's recorded
// clock, or if the row has no clock yet. Returns whether the write applied
func (s *Store) SetValue(table, rowID string, clock crdt.Clock, value json.RawMessage) (bool, error) {
	if err := s.checkNames(table, rowID); err != nil {
		return false, err
	}
	if s.validate && !json.Valid(value) {
		return false, fmt.Errorf("%w: %s/%s", ErrInvalidValue, table, rowID)
	}

	return s.apply(table, rowID, crdt.Entry{Clock: clock, Value: value}), nil
}

// RemoveRow tombstones a row under the same guard as SetValue
func (s *Store) RemoveRow(table, rowID string, clock crdt.Clock) bool {
	return s.apply(table, rowID, crdt.Entry{Clock: clock, Deleted: true})
}

// Apply dispatches a change by kind
func (s *Store) Apply(c models.Change) (bool, error) {
	switch c.Kind {
	case models.ChangeUpdate:
		return s.SetValue(c.Table, c.RowID, c.Clock, c.Value)
	case models.ChangeDelete:
		if err := s.checkNames(c.Table, c.RowID); err != nil {
			return false, err
		}
		return s.RemoveRow(c.Table, c.RowID, c.Clock), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, c.Kind)
	}
}

func (s *Store) apply(table, rowID string, e crdt.Entry) bool {
	if !s.table(table).Apply(rowID, e) {
		return false
	}

	row := models.Row{Table: table, RowID: rowID, Clock: e.Clock, Deleted: e.Deleted}
	if !e.Deleted {
		row.Value = append(json.RawMessage(nil), e.Value...)
	}

	s.pendingMu.Lock()
	key := row.Key()
	// в очереди остаётся самая новая версия строки
	if prev, ok := s.pending[key]; !ok || row.Entry().Newer(prev.Entry()) {
		s.pending[key] = row
	}
	s.pendingMu.Unlock()

	return true
}

// Clock returns the recorded clock of a row, tombstones included
func (s *Store) Clock(table, rowID string) (crdt.Clock, bool) {
	m, ok := s.lookup(table)
	if !ok {
		return crdt.Clock{}, false
	}
	e, ok := m.Entry(rowID)
	return e.Clock, ok
}

// Table returns a read view of a table. Unknown tables read as empty
func (s *Store) Table(name string) *View {
	return &View{store: s, name: name}
}

// Names returns the sorted names of tables that have at least one record
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tables))
	for name, m := range s.tables {
		if m.TotalSize() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// RowCount returns the number of live rows across all tables
func (s *Store) RowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, m := range s.tables {
		total += m.Size()
	}
	return total
}

// Pending returns the number of rows waiting for a flush
func (s *Store) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	return len(s.pending)
}

// Flush writes pending rows in one batch. Rows the storage already holds
// with a newer clock are left alone by PutRowsIfNewer. If another flush
// is running Flush returns nil immediately
func (s *Store) Flush(ctx context.Context) error {
	err := s.TryFlush(ctx)
	if errors.Is(err, ErrFlushInProgress) {
		return nil
	}
	return err
}

// TryFlush is Flush that reports ErrFlushInProgress
func (s *Store) TryFlush(ctx context.Context) error {
	if !s.flushing.CompareAndSwap(false, true) {
		return ErrFlushInProgress
	}
	defer s.flushing.Store(false)

	s.pendingMu.Lock()
	if len(s.pending) == 0 {
		s.pendingMu.Unlock()
		return nil
	}
	batch := make([]models.Row, 0, len(s.pending))
	for _, row := range s.pending {
		batch = append(batch, row)
	}
	s.pending = make(map[models.RowKey]models.Row)
	s.pendingMu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].Table != batch[j].Table {
			return batch[i].Table < batch[j].Table
		}
		return batch[i].RowID < batch[j].RowID
	})

	written, err := s.rows.PutRowsIfNewer(ctx, batch)
	if err != nil {
		s.requeue(batch)
		s.metrics.Flushed(storeName, 0, err)
		return fmt.Errorf("failed to save rows: %w", err)
	}

	s.metrics.Flushed(storeName, written, nil)
	s.logger.Debug("Rows flushed", "batch", len(batch), "written", written)
	return nil
}

// requeue возвращает неудавшийся батч, не затирая более новые версии
func (s *Store) requeue(batch []models.Row) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for _, row := range batch {
		key := row.Key()
		if prev, ok := s.pending[key]; ok && !row.Entry().Newer(prev.Entry()) {
			continue
		}
		s.pending[key] = row
	}
}

// Run flushes pending rows every interval until ctx is done
func (s *Store) Run(ctx context.Context, interval time.Duration) {
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
			if err := s.Flush(ctx); err != nil {
				s.logger.Warn("Row flush failed, persistence degraded", "pending", s.Pending(), "error", err)
			}
		}
	}
}

// Close waits for a running flush and writes the remaining rows
func (s *Store) Close(ctx context.Context) error {
	for {
		err := s.TryFlush(ctx)
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
