package sqlite

import (
	"context"
	"fmt"

	"github.com/iudanet/gophmesh/internal/storage"
)

// LoadChanges returns every stored change in insertion order
func (s *Storage) LoadChanges(ctx context.Context) ([]storage.StoredChange, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT hash, change FROM changes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	changes := make([]storage.StoredChange, 0)
	for rows.Next() {
		var c storage.StoredChange
		if err := rows.Scan(&c.Hash, &c.Data); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate changes: %w", err)
	}

	return changes, nil
}

// SaveChanges stores a batch of changes in one transaction
func (s *Storage) SaveChanges(ctx context.Context, changes []storage.StoredChange) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO changes (hash, change) VALUES (?, ?) ON CONFLICT(hash) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err := stmt.ExecContext(ctx, c.Hash, c.Data); err != nil {
			return fmt.Errorf("failed to save change %s: %w", c.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}

	return nil
}
