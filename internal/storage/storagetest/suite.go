// Package storagetest holds the behaviour every storage.Storage backend must share.
package storagetest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/storage"
)

// Factory creates a fresh, empty backend for one subtest
type Factory func(t *testing.T) storage.Storage

// Run executes the shared backend suite
func Run(t *testing.T, newStorage Factory) {
	t.Run("changes round trip", func(t *testing.T) { testChanges(t, newStorage(t)) })
	t.Run("changes are idempotent", func(t *testing.T) { testChangesIdempotent(t, newStorage(t)) })
	t.Run("changes keep save order", func(t *testing.T) { testChangesOrder(t, newStorage(t)) })
	t.Run("rows newer wins", func(t *testing.T) { testRowsNewerWins(t, newStorage(t)) })
	t.Run("rows equal clock tie break", func(t *testing.T) { testRowsEqualClock(t, newStorage(t)) })
	t.Run("rows tombstones", func(t *testing.T) { testRowsTombstone(t, newStorage(t)) })
	t.Run("row not found", func(t *testing.T) { testRowNotFound(t, newStorage(t)) })
	t.Run("metadata", func(t *testing.T) { testMetadata(t, newStorage(t)) })
	t.Run("closed", func(t *testing.T) { testClosed(t, newStorage(t)) })
}

func row(table, rowID string, clock crdt.Clock, value string) models.Row {
	r := models.Row{Table: table, RowID: rowID, Clock: clock}
	if value == "" {
		r.Deleted = true
	} else {
		r.Value = json.RawMessage(value)
	}
	return r
}

func testChanges(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	loaded, err := s.LoadChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	batch := []storage.StoredChange{
		{Hash: "hashB", Data: []byte{1, 2, 3}},
		{Hash: "hashA", Data: []byte{4}},
	}
	require.NoError(t, s.SaveChanges(ctx, batch))
	require.NoError(t, s.SaveChanges(ctx, nil))

	loaded, err = s.LoadChanges(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, batch, loaded)
}

func testChangesIdempotent(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.SaveChanges(ctx, []storage.StoredChange{{Hash: "h", Data: []byte{1}}}))
	// тот же хэш второй раз не создаёт дубликат
	require.NoError(t, s.SaveChanges(ctx, []storage.StoredChange{{Hash: "h", Data: []byte{1}}, {Hash: "g", Data: []byte{2}}}))

	loaded, err := s.LoadChanges(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func testChangesOrder(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	// хэши намеренно не отсортированы: порядок задаёт только запись
	require.NoError(t, s.SaveChanges(ctx, []storage.StoredChange{{Hash: "zz", Data: []byte{1}}, {Hash: "mm", Data: []byte{2}}}))
	require.NoError(t, s.SaveChanges(ctx, []storage.StoredChange{{Hash: "mm", Data: []byte{2}}, {Hash: "aa", Data: []byte{3}}}))

	loaded, err := s.LoadChanges(ctx)
	require.NoError(t, err)

	hashes := make([]string, 0, len(loaded))
	for _, c := range loaded {
		hashes = append(hashes, c.Hash)
	}
	assert.Equal(t, []string{"zz", "mm", "aa"}, hashes)
}

func testRowsNewerWins(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	written, err := s.PutRowsIfNewer(ctx, []models.Row{
		row("todos", "r1", crdt.Clock{Global: 2, Site: 1, Local: 1}, `{"v":2}`),
		row("todos", "r2", crdt.Clock{Global: 1, Site: 1, Local: 1}, `"x"`),
		row("notes", "r1", crdt.Clock{Global: 1, Site: 1, Local: 2}, `[1,2]`),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	// более старая версия не затирает более новую; при равных часах меньшее значение проигрывает
	written, err = s.PutRowsIfNewer(ctx, []models.Row{
		row("todos", "r1", crdt.Clock{Global: 1, Site: 9, Local: 9}, `{"v":1}`),
		row("todos", "r2", crdt.Clock{Global: 1, Site: 1, Local: 1}, `"w"`),
		row("todos", "r2", crdt.Clock{Global: 1, Site: 2, Local: 0}, `"z"`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	r1, err := s.GetRow(ctx, "todos", "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(r1.Value))
	assert.Equal(t, crdt.Clock{Global: 2, Site: 1, Local: 1}, r1.Clock)

	r2, err := s.GetRow(ctx, "todos", "r2")
	require.NoError(t, err)
	assert.JSONEq(t, `"z"`, string(r2.Value))

	rows, err := s.LoadRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func testRowsEqualClock(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	c := crdt.Clock{Global: 4, Site: 7, Local: 1}

	_, err := s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", c, `"b"`)})
	require.NoError(t, err)

	written, err := s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", c, `"a"`)})
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	written, err = s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", c, `"c"`)})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	stored, err := s.GetRow(ctx, "t", "r")
	require.NoError(t, err)
	assert.JSONEq(t, `"c"`, string(stored.Value))

	// tombstone с теми же часами побеждает значение, повторный tombstone ничего не пишет
	written, err = s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", c, "")})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	written, err = s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", c, ""), row("t", "r", c, `"z"`)})
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	stored, err = s.GetRow(ctx, "t", "r")
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
}

func testRowsTombstone(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", crdt.Clock{Global: 1}, `1`)})
	require.NoError(t, err)
	written, err := s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", crdt.Clock{Global: 2}, "")})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	stored, err := s.GetRow(ctx, "t", "r")
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	assert.Empty(t, stored.Value)

	// запоздавшее обновление не воскрешает строку
	written, err = s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", crdt.Clock{Global: 1, Local: 5}, `2`)})
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}

func testRowNotFound(t *testing.T, s storage.Storage) {
	_, err := s.GetRow(context.Background(), "t", "missing")
	assert.ErrorIs(t, err, storage.ErrRowNotFound)
}

func testMetadata(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.GetMetadata(ctx, storage.MetaFeed)
	assert.ErrorIs(t, err, storage.ErrMetadataNotFound)

	require.NoError(t, s.SetMetadata(ctx, storage.MetaFeed, []byte("feed-1")))
	require.NoError(t, s.SetMetadata(ctx, storage.MetaFeed, []byte("feed-2")))

	value, err := s.GetMetadata(ctx, storage.MetaFeed)
	require.NoError(t, err)
	assert.Equal(t, []byte("feed-2"), value)
}

func testClosed(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close should be idempotent")

	_, err := s.LoadChanges(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, s.SaveChanges(ctx, []storage.StoredChange{{Hash: "h"}}), storage.ErrStorageClosed)
	_, err = s.LoadRows(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = s.PutRowsIfNewer(ctx, []models.Row{row("t", "r", crdt.Clock{}, `1`)})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = s.GetRow(ctx, "t", "r")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = s.GetMetadata(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, s.SetMetadata(ctx, "k", nil), storage.ErrStorageClosed)
}
