package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/storage"
)

// rowKeySeparator разделяет имя таблицы и идентификатор строки в ключе
const rowKeySeparator = "\x00"

// rowRecord - JSON значение строки в bucket tables
type rowRecord struct {
	Value   json.RawMessage `json:"value,omitempty"`
	Clock   crdt.Clock      `json:"clock"`
	Removed bool            `json:"removed,omitempty"`
}

func rowKey(table, rowID string) []byte {
	return []byte(table + rowKeySeparator + rowID)
}

func splitRowKey(key []byte) (string, string, error) {
	table, rowID, ok := strings.Cut(string(key), rowKeySeparator)
	if !ok {
		return "", "", fmt.Errorf("malformed row key %q", key)
	}
	return table, rowID, nil
}

func decodeRow(key, value []byte) (models.Row, error) {
	table, rowID, err := splitRowKey(key)
	if err != nil {
		return models.Row{}, err
	}

	var rec rowRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return models.Row{}, fmt.Errorf("failed to unmarshal row %s/%s: %w", table, rowID, err)
	}

	return models.Row{
		Table:   table,
		RowID:   rowID,
		Clock:   rec.Clock,
		Value:   rec.Value,
		Deleted: rec.Removed,
	}, nil
}

// LoadRows returns every stored row including tombstones
func (s *Storage) LoadRows(ctx context.Context) ([]models.Row, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}

	var rows []models.Row

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTables).ForEach(func(k, v []byte) error {
			row, err := decodeRow(k, v)
			if err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}

	return rows, nil
}

// PutRowsIfNewer re-reads each row inside one write transaction and writes it
// only if it wins over the stored version (crdt.Entry.Newer)
func (s *Storage) PutRowsIfNewer(ctx context.Context, rows []models.Row) (int, error) {
	if s.closed.Load() {
		return 0, storage.ErrStorageClosed
	}
	if len(rows) == 0 {
		return 0, nil
	}

	written := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTables)
		for _, row := range rows {
			key := rowKey(row.Table, row.RowID)

			// Защита от затирания более новой версии, записанной другим flush
			if existing := bucket.Get(key); existing != nil {
				stored, err := decodeRow(key, existing)
				if err != nil {
					return err
				}
				if !row.Entry().Newer(stored.Entry()) {
					continue
				}
			}

			rec := rowRecord{Clock: row.Clock, Removed: row.Deleted}
			if !row.Deleted {
				rec.Value = row.Value
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal row %s/%s: %w", row.Table, row.RowID, err)
			}
			if err := bucket.Put(key, data); err != nil {
				return fmt.Errorf("failed to save row %s/%s: %w", row.Table, row.RowID, err)
			}
			written++
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("transaction failed: %w", err)
	}

	return written, nil
}

// GetRow returns a stored row, tombstones included
func (s *Storage) GetRow(ctx context.Context, table, rowID string) (models.Row, error) {
	if s.closed.Load() {
		return models.Row{}, storage.ErrStorageClosed
	}

	var row models.Row

	err := s.db.View(func(tx *bbolt.Tx) error {
		key := rowKey(table, rowID)
		data := tx.Bucket(bucketTables).Get(key)
		if data == nil {
			return storage.ErrRowNotFound
		}

		var err error
		row, err = decodeRow(key, data)
		return err
	})

	if err != nil {
		return models.Row{}, err
	}

	return row, nil
}
