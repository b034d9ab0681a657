package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/storage"
	"github.com/iudanet/gophmesh/internal/storage/storagetest"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	// Используем in-memory database для тестов
	s, err := New(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_Suite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return setupTestStorage(t)
	})
}

func TestStorage_LoadChangesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	require.NoError(t, s.SaveChanges(ctx, []storage.StoredChange{{Hash: "c", Data: []byte{3}}}))
	require.NoError(t, s.SaveChanges(ctx, []storage.StoredChange{{Hash: "a", Data: []byte{1}}, {Hash: "b", Data: []byte{2}}}))

	changes, err := s.LoadChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{changes[0].Hash, changes[1].Hash, changes[2].Hash})
}

func TestStorage_MigrationsOnReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mesh.sqlite")

	s, err := New(ctx, path)
	require.NoError(t, err)
	_, err = s.PutRowsIfNewer(ctx, []models.Row{{Table: "t", RowID: "r", Clock: crdt.Clock{Global: 1, Site: 4000000000, Local: 2}, Value: []byte(`{"a":1}`)}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// повторный запуск миграций на существующей базе не должен падать
	reopened, err := New(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	row, err := reopened.GetRow(ctx, "t", "r")
	require.NoError(t, err)
	assert.Equal(t, crdt.Clock{Global: 1, Site: 4000000000, Local: 2}, row.Clock)
	assert.JSONEq(t, `{"a":1}`, string(row.Value))
}

func TestStorage_SiteComparisonAboveInt32(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	_, err := s.PutRowsIfNewer(ctx, []models.Row{{Table: "t", RowID: "r", Clock: crdt.Clock{Global: 1, Site: 100}, Value: []byte(`1`)}})
	require.NoError(t, err)

	// site > 2^31 должен сравниваться как беззнаковый
	written, err := s.PutRowsIfNewer(ctx, []models.Row{{Table: "t", RowID: "r", Clock: crdt.Clock{Global: 1, Site: 3000000000}, Value: []byte(`2`)}})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
}

func TestStorage_LocalOverflow(t *testing.T) {
	s := setupTestStorage(t)

	_, err := s.PutRowsIfNewer(context.Background(), []models.Row{{Table: "t", RowID: "r", Clock: crdt.Clock{Local: 1 << 63}, Value: []byte(`1`)}})
	assert.Error(t, err)
}
