package boltdb

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophmesh/internal/storage"
)

// GetMetadata retrieves a metadata value by key
func (s *Storage) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	var value []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(key))
		if data == nil {
			return storage.ErrMetadataNotFound
		}
		value = bytes.Clone(data)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return value, nil
}

// SetMetadata stores or replaces a metadata value
func (s *Storage) SetMetadata(ctx context.Context, key string, value []byte) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMetadata).Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}
