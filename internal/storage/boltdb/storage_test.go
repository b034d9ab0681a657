package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/gophmesh/internal/crdt"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/storage"
	"github.com/iudanet/gophmesh/internal/storage/storagetest"
)

// createTestStorage создает временное хранилище для тестов
func createTestStorage(t *testing.T) *Storage {
	t.Helper()

	store, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorage_Suite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return createTestStorage(t)
	})
}

func TestStorage_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveChanges(ctx, []storage.StoredChange{{Hash: "h1", Data: []byte{1}}}))
	_, err = store.PutRowsIfNewer(ctx, []models.Row{{Table: "t", RowID: "r", Clock: crdt.Clock{Global: 3}, Value: []byte(`"v"`)}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Переоткрываем и проверяем, что данные на месте
	reopened, err := New(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	changes, err := reopened.LoadChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []storage.StoredChange{{Hash: "h1", Data: []byte{1}}}, changes)

	row, err := reopened.GetRow(ctx, "t", "r")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), row.Clock.Global)
}

func TestStorage_LoadChangesKeyOrder(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.SaveChanges(ctx, []storage.StoredChange{
		{Hash: "c", Data: []byte{3}},
		{Hash: "a", Data: []byte{1}},
		{Hash: "b", Data: []byte{2}},
	}))

	changes, err := store.LoadChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, "a", changes[0].Hash)
	assert.Equal(t, "b", changes[1].Hash)
	assert.Equal(t, "c", changes[2].Hash)
}

func TestStorage_RowKeyLayout(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	_, err := store.PutRowsIfNewer(ctx, []models.Row{{Table: "todos", RowID: "r1", Clock: crdt.Clock{Global: 1}, Value: []byte(`1`)}})
	require.NoError(t, err)

	err = store.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTables).Get([]byte("todos\x00r1"))
		assert.NotNil(t, data)
		assert.Contains(t, string(data), `"clock"`)
		return nil
	})
	require.NoError(t, err)
}

func TestStorage_CorruptRow(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTables).Put([]byte("t\x00r"), []byte("{not json"))
	})
	require.NoError(t, err)

	_, err = store.LoadRows(ctx)
	assert.Error(t, err)

	_, err = store.GetRow(ctx, "t", "r")
	assert.Error(t, err)
}
