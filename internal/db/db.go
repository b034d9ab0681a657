// Package db is the application-facing API of a replicated database:
// named tables of JSON rows that converge across every peer of a feed.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/gophmesh/internal/changes"
	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/share"
	"github.com/iudanet/gophmesh/internal/storage"
	"github.com/iudanet/gophmesh/internal/tables"
	"github.com/iudanet/gophmesh/internal/transport"
	"github.com/iudanet/gophmesh/internal/validation"
	"github.com/iudanet/gophmesh/pkg/api"
)

var (
	// ErrClosed is returned by writes after Close
	ErrClosed = errors.New("database closed")

	// ErrFeedMismatch indicates a database file created for another feed
	ErrFeedMismatch = errors.New("database feed mismatch")
)

// Options configures Open
type Options struct {
	// Storage готовое хранилище. Если nil, открывается файл в Dir
	Storage storage.Storage

	// Discovery источник пиров. Если nil, база работает офлайн
	Discovery transport.Discovery

	Metrics *metrics.Metrics

	// OnConflict получает локальные изменения, проигравшие удалённым
	OnConflict func(models.Conflict)

	// OnRemoteChange вызывается после применения удалённого изменения
	OnRemoteChange func(change models.Change)

	Dir     string
	Backend string

	FlushInterval time.Duration
	SyncInterval  time.Duration

	// Site идентификатор экземпляра в часах, 0 - случайный
	Site uint32
}

// NewConnectionString generates a new feed and read key
func NewConnectionString() (string, error) {
	return crypto.NewConnectionString()
}

// DB is one open replica
type DB struct {
	storage     storage.Storage
	ownsStorage bool
	tables      *tables.Store
	log         *changes.Log
	clock       *crdt.Generator
	share       *share.Share
	discovery   transport.Discovery
	logger      *slog.Logger
	opts        Options
	name        string
	conn        crypto.Connection

	// writeMu сохраняет порядок локальных записей: часы выдаются и применяются по очереди
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Open opens the database name and connects it to the feed of the connection string
func Open(ctx context.Context, name, connection string, logger *slog.Logger, opts Options) (*DB, error) {
	if err := validation.ValidateDatabaseName(name); err != nil {
		return nil, err
	}
	conn, err := crypto.ParseConnectionString(connection)
	if err != nil {
		return nil, err
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = tables.DefaultFlushInterval
	}
	if opts.Site == 0 {
		opts.Site = crdt.RandomSite()
	}

	logger = logger.With("db", name, "feed", conn.Feed)

	d := &DB{
		name:      name,
		conn:      conn,
		discovery: opts.Discovery,
		logger:    logger,
		opts:      opts,
		storage:   opts.Storage,
	}
	if d.storage == nil {
		path := StoragePath(opts.Dir, name, opts.Backend)
		if d.storage, err = OpenStorage(ctx, opts.Backend, path); err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		d.ownsStorage = true
	}

	if err := d.open(ctx); err != nil {
		if d.ownsStorage {
			_ = d.storage.Close()
		}
		return nil, err
	}
	return d, nil
}

func (d *DB) open(ctx context.Context) error {
	if err := bindFeed(ctx, d.storage, d.conn.Feed); err != nil {
		return err
	}

	var (
		maxClock crdt.Clock
		err      error
	)
	d.tables, maxClock, err = tables.Open(ctx, d.storage, d.logger, tables.Options{Metrics: d.opts.Metrics, Validate: true})
	if err != nil {
		return err
	}
	d.log, err = changes.Open(ctx, d.storage, d.logger, changes.Options{Metrics: d.opts.Metrics})
	if err != nil {
		return err
	}
	if logClock := d.replayLog(); logClock.After(maxClock) {
		maxClock = logClock
	}

	// новые локальные изменения упорядочены после всего сохранённого
	d.clock = crdt.NewGenerator(d.opts.Site, maxClock.Global+1)

	d.share, err = share.New(d.log, d.conn.ReadKey, d.logger, share.Options{
		Metrics:      d.opts.Metrics,
		OnChange:     d.applyRemote,
		OnConflict:   d.opts.OnConflict,
		SyncInterval: d.opts.SyncInterval,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.tables.Run(runCtx, d.opts.FlushInterval)
	}()
	go func() {
		defer d.wg.Done()
		d.log.Run(runCtx, d.opts.FlushInterval)
	}()

	if d.discovery != nil {
		if err := d.discovery.Start(ctx, d.share); err != nil {
			cancel()
			d.wg.Wait()
			_ = d.share.Close()
			return fmt.Errorf("failed to start discovery: %w", err)
		}
	}

	d.logger.Info("Database opened",
		"site", d.clock.Site(),
		"rows", d.tables.RowCount(),
		"changes", d.log.Len(),
	)
	return nil
}

// replayLog применяет журнал к таблицам. Строки сбрасываются отдельно от журнала,
// поэтому после сбоя таблицы могут отставать от него. Повторное применение
// уже учтённых изменений ничего не меняет
func (d *DB) replayLog() crdt.Clock {
	var (
		maxClock crdt.Clock
		replayed int
	)
	entries, _ := d.log.After(0)
	for _, e := range entries {
		change, err := api.DecodeChange(e.Data)
		if err != nil {
			d.logger.Warn("Skipping undecodable logged change", "hash", e.Hash, "error", err)
			continue
		}
		if change.Clock.After(maxClock) {
			maxClock = change.Clock
		}
		applied, err := d.tables.Apply(change)
		if err != nil {
			d.logger.Warn("Failed to replay logged change", "hash", e.Hash, "error", err)
			continue
		}
		if applied {
			replayed++
		}
	}
	if replayed > 0 {
		d.logger.Info("Replayed logged changes missing from tables", "count", replayed)
	}
	return maxClock
}

// applyRemote применяет впервые увиденное удалённое изменение
func (d *DB) applyRemote(hash string, change models.Change) bool {
	d.clock.Observe(change.Clock)

	applied, err := d.tables.Apply(change)
	if err != nil {
		d.logger.Warn("Failed to apply remote change", "hash", hash, "error", err)
		return false
	}
	if applied && d.opts.OnRemoteChange != nil {
		d.opts.OnRemoteChange(change)
	}
	return applied
}

// write создаёт локальное изменение, применяет его и кладёт в журнал
func (d *DB) write(table, rowID string, kind models.ChangeKind, value []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := validation.ValidateTableName(table); err != nil {
		return err
	}
	if err := validation.ValidateRowID(rowID); err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.closed.Load() {
		return ErrClosed
	}

	change := models.Change{
		Kind:  kind,
		Table: table,
		RowID: rowID,
		Value: value,
		Clock: d.clock.Next(),
	}
	data, err := api.EncodeChange(change)
	if err != nil {
		return err
	}
	if _, err := d.tables.Apply(change); err != nil {
		return err
	}
	if _, err := d.share.SaveLocalChange(data); err != nil {
		return err
	}
	return nil
}

// Table returns a handle on a table. Tables exist once a row is written to them
func (d *DB) Table(name string) *Table {
	return &Table{db: d, name: name, view: d.tables.Table(name)}
}

// Tables returns the names of tables that hold at least one row or tombstone
func (d *DB) Tables() []string {
	return d.tables.Names()
}

// Name returns the database name
func (d *DB) Name() string {
	return d.name
}

// Feed returns the feed id of the connection string
func (d *DB) Feed() string {
	return d.conn.Feed
}

// Site returns the clock site of this replica
func (d *DB) Site() uint32 {
	return d.clock.Site()
}

// State returns StateReady once the change log holds anything
func (d *DB) State() State {
	if d.log.Len() > 0 {
		return StateReady
	}
	return StateEmpty
}

// Connectivity returns Online while at least one peer is connected
func (d *DB) Connectivity() Connectivity {
	if d.share.PeerCount() > 0 {
		return Online
	}
	return Offline
}

// PeerCount returns the number of connected peers
func (d *DB) PeerCount() int {
	return d.share.PeerCount()
}

// Peers returns the sync state of every known peer
func (d *DB) Peers() []share.PeerInfo {
	return d.share.Peers()
}

// Sync pulls recent changes from every connected peer now
func (d *DB) Sync(ctx context.Context) (share.SyncResult, error) {
	return d.share.SyncNow(ctx)
}

// Stats is a snapshot of replica counters
type Stats struct {
	Tables         int
	Rows           int
	Changes        int
	PendingRows    int
	PendingChanges int
	Unacknowledged int
	Peers          int
}

// Stats returns replica counters
func (d *DB) Stats() Stats {
	return Stats{
		Tables:         len(d.tables.Names()),
		Rows:           d.tables.RowCount(),
		Changes:        d.log.Len(),
		PendingRows:    d.tables.Pending(),
		PendingChanges: d.log.Pending(),
		Unacknowledged: d.share.UnacknowledgedCount(),
		Peers:          d.share.PeerCount(),
	}
}

// Flush writes pending rows and changes to storage now
func (d *DB) Flush(ctx context.Context) error {
	return errors.Join(d.tables.Flush(ctx), d.log.Flush(ctx))
}

// Close disconnects every peer, stops the background loops and flushes
// what is left. In-flight RPCs are rejected
func (d *DB) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}

	var errs []error
	if d.discovery != nil {
		if err := d.discovery.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close discovery: %w", err))
		}
	}
	_ = d.share.Close()

	d.cancel()
	d.wg.Wait()

	// ждём окончания локальной записи, начатой до Close
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if err := d.tables.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush rows: %w", err))
	}
	if err := d.log.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush changes: %w", err))
	}
	if d.ownsStorage {
		if err := d.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}

	d.logger.Info("Database closed")
	return errors.Join(errs...)
}
