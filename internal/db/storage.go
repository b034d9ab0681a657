package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iudanet/gophmesh/internal/storage"
	"github.com/iudanet/gophmesh/internal/storage/boltdb"
	"github.com/iudanet/gophmesh/internal/storage/sqlite"
)

// Поддерживаемые хранилища
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// StoragePath returns the database file of name in dir for the backend
func StoragePath(dir, name, backend string) string {
	ext := ".db"
	if backend == BackendSQLite {
		ext = ".sqlite"
	}
	return filepath.Join(dir, name+ext)
}

// OpenStorage opens or creates the storage file of a database
func OpenStorage(ctx context.Context, backend, path string) (storage.Storage, error) {
	if backend != BackendBolt && backend != BackendSQLite && backend != "" {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnsupportedBackend, backend)
	}
	if path != sqlite.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	switch backend {
	case "", BackendBolt:
		s, err := boltdb.New(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := sqlite.New(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnsupportedBackend, backend)
	}
}

// bindFeed привязывает файл базы к feed при первом открытии
// и отказывает в открытии с другим feed
func bindFeed(ctx context.Context, store storage.MetadataStorage, feed string) error {
	stored, err := store.GetMetadata(ctx, storage.MetaFeed)
	switch {
	case err == nil:
		if string(stored) != feed {
			return fmt.Errorf("%w: database belongs to feed %s", ErrFeedMismatch, stored)
		}
		return nil
	case errors.Is(err, storage.ErrMetadataNotFound):
		if err := store.SetMetadata(ctx, storage.MetaFeed, []byte(feed)); err != nil {
			return fmt.Errorf("failed to bind feed: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to read feed binding: %w", err)
	}
}
