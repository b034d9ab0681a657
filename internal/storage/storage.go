// Package storage defines the durable persistence boundary of a database
// instance: the content-addressed change log, row snapshots and a small
// metadata table.
package storage

import (
	"context"

	"github.com/iudanet/gophmesh/internal/models"
)

//go:generate moq -out storage_mock.go . ChangeStorage RowStorage MetadataStorage

// StoredChange - сериализованное изменение и его хэш
type StoredChange struct {
	Hash string
	Data []byte
}

// ChangeStorage defines durable storage of the change log
type ChangeStorage interface {
	// LoadChanges returns every stored change in the order it was first saved.
	// The order is the backend's own (key order for bbolt, insertion order for SQLite)
	LoadChanges(ctx context.Context) ([]StoredChange, error)

	// SaveChanges stores a batch of changes in one transaction.
	// Already stored hashes are left untouched
	SaveChanges(ctx context.Context, changes []StoredChange) error
}

// RowStorage defines durable storage of row snapshots
type RowStorage interface {
	// LoadRows returns every stored row including tombstones
	LoadRows(ctx context.Context) ([]models.Row, error)

	// PutRowsIfNewer stores rows in one transaction. Each row is re-read inside
	// the transaction and written only if its clock orders after the stored one.
	// Returns the number of rows written
	PutRowsIfNewer(ctx context.Context, rows []models.Row) (int, error)

	// GetRow returns a stored row, tombstones included.
	// Returns ErrRowNotFound if the row was never stored
	GetRow(ctx context.Context, table, rowID string) (models.Row, error)
}

// MetadataStorage defines a small key-value table for instance metadata
type MetadataStorage interface {
	// GetMetadata returns the stored value.
	// Returns ErrMetadataNotFound if the key is absent
	GetMetadata(ctx context.Context, key string) ([]byte, error)

	// SetMetadata stores or replaces a value
	SetMetadata(ctx context.Context, key string, value []byte) error
}

// Storage combines every persistence concern of one database instance
type Storage interface {
	ChangeStorage
	RowStorage
	MetadataStorage

	// Close releases the underlying database
	Close() error
}

// Ключи метаданных
const (
	// MetaFeed идентификатор feed, к которому привязана локальная база
	MetaFeed = "feed"
)
