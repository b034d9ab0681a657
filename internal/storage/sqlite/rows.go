package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/storage"
)

// upsertRow пишет строку, только если она новее сохранённой (как crdt.Entry.Newer).
// При равных часах tombstone побеждает значение, затем большее значение по байтам;
// для двух tombstone value равен NULL и сравнение ложно.
const upsertRow = `
	INSERT INTO table_rows (table_name, row_id, global, site, local, value, removed)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(table_name, row_id) DO UPDATE SET
		global = excluded.global,
		site = excluded.site,
		local = excluded.local,
		value = excluded.value,
		removed = excluded.removed
	WHERE (excluded.global, excluded.site, excluded.local, excluded.removed, excluded.value) >
		(table_rows.global, table_rows.site, table_rows.local, table_rows.removed, table_rows.value)
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (models.Row, error) {
	var (
		row     models.Row
		global  int64
		site    int64
		local   int64
		value   []byte
		removed int
	)

	if err := sc.Scan(&row.Table, &row.RowID, &global, &site, &local, &value, &removed); err != nil {
		return models.Row{}, err
	}

	row.Clock.Global = uint64(global)
	row.Clock.Site = uint32(site)
	row.Clock.Local = uint64(local)
	row.Deleted = removed != 0
	if !row.Deleted {
		row.Value = value
	}
	return row, nil
}

// LoadRows returns every stored row including tombstones
func (s *Storage) LoadRows(ctx context.Context) ([]models.Row, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, row_id, global, site, local, value, removed
		FROM table_rows
		ORDER BY table_name, row_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	result := make([]models.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

// PutRowsIfNewer writes rows in one transaction with a conditional upsert
func (s *Storage) PutRowsIfNewer(ctx context.Context, rows []models.Row) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertRow)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, row := range rows {
		// INTEGER в SQLite знаковый
		if row.Clock.Local > math.MaxInt64 {
			return 0, fmt.Errorf("row %s/%s: local clock %d does not fit INTEGER", row.Table, row.RowID, row.Clock.Local)
		}

		var value []byte
		if !row.Deleted {
			value = row.Value
		}

		res, err := stmt.ExecContext(ctx,
			row.Table,
			row.RowID,
			int64(row.Clock.Global),
			int64(row.Clock.Site),
			int64(row.Clock.Local),
			value,
			boolToInt(row.Deleted),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save row %s/%s: %w", row.Table, row.RowID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get affected rows: %w", err)
		}
		written += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rows: %w", err)
	}

	return written, nil
}

// GetRow returns a stored row, tombstones included
func (s *Storage) GetRow(ctx context.Context, table, rowID string) (models.Row, error) {
	if err := s.checkOpen(); err != nil {
		return models.Row{}, err
	}

	row, err := scanRow(s.db.QueryRowContext(ctx, `
		SELECT table_name, row_id, global, site, local, value, removed
		FROM table_rows
		WHERE table_name = ? AND row_id = ?
	`, table, rowID))

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Row{}, storage.ErrRowNotFound
		}
		return models.Row{}, fmt.Errorf("failed to get row: %w", err)
	}

	return row, nil
}
