package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophmesh/internal/storage"
)

// LoadChanges returns every stored change in the order it was first saved
func (s *Storage) LoadChanges(ctx context.Context) ([]storage.StoredChange, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	var changes []storage.StoredChange

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketChanges)
		order := tx.Bucket(bucketOrder)
		changes = make([]storage.StoredChange, 0, bucket.Stats().KeyN)
		seen := make(map[string]bool, bucket.Stats().KeyN)

		err := order.ForEach(func(_, hash []byte) error {
			data := bucket.Get(hash)
			if data == nil || seen[string(hash)] {
				return nil
			}
			seen[string(hash)] = true
			// Значения bbolt валидны только внутри транзакции - копируем
			changes = append(changes, storage.StoredChange{
				Hash: string(hash),
				Data: bytes.Clone(data),
			})
			return nil
		})
		if err != nil {
			return err
		}

		// изменения без записи в порядке (файлы старой схемы) идут в конце
		return bucket.ForEach(func(k, v []byte) error {
			if seen[string(k)] {
				return nil
			}
			changes = append(changes, storage.StoredChange{
				Hash: string(k),
				Data: bytes.Clone(v),
			})
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load changes: %w", err)
	}

	return changes, nil
}

// SaveChanges stores a batch of changes in one transaction
func (s *Storage) SaveChanges(ctx context.Context, changes []storage.StoredChange) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	if len(changes) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketChanges)
		order := tx.Bucket(bucketOrder)
		for _, c := range changes {
			key := []byte(c.Hash)
			// Изменение адресуется содержимым: повторная запись ничего не меняет
			if bucket.Get(key) != nil {
				continue
			}
			if err := bucket.Put(key, c.Data); err != nil {
				return fmt.Errorf("failed to save change %s: %w", c.Hash, err)
			}

			seq, err := order.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to allocate change sequence: %w", err)
			}
			if err := order.Put(binary.BigEndian.AppendUint64(nil, seq), key); err != nil {
				return fmt.Errorf("failed to save change order %s: %w", c.Hash, err)
			}
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}
