package db

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/storage"
	"github.com/iudanet/gophmesh/internal/transport"
	"github.com/iudanet/gophmesh/internal/validation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newConnection(t *testing.T) string {
	t.Helper()
	conn, err := NewConnectionString()
	require.NoError(t, err)
	return conn
}

func openDB(t *testing.T, name, conn string, opts Options) *DB {
	t.Helper()
	d, err := Open(context.Background(), name, conn, testLogger(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

type todo struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

func TestDB_TableOperations(t *testing.T) {
	d := openDB(t, "notes", newConnection(t), Options{Dir: t.TempDir()})
	assert.Equal(t, StateEmpty, d.State())
	assert.Equal(t, Offline, d.Connectivity())

	todos := d.Table("todos")
	id, err := todos.Insert(todo{Title: "write tests"})
	require.NoError(t, err)
	assert.Len(t, id, 27)
	assert.Equal(t, StateReady, d.State())

	var got todo
	ok, err := todos.GetInto(id, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "write tests", got.Title)

	require.NoError(t, todos.Update(id, todo{Title: "write tests", Done: true}))
	raw, ok := todos.Get(id)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"write tests","done":true}`, string(raw))

	second, err := todos.Insert(map[string]any{"title": "ship"})
	require.NoError(t, err)
	assert.Equal(t, 2, todos.Size())
	assert.ElementsMatch(t, []string{id, second}, todos.Keys())
	assert.Len(t, todos.Values(), 2)
	assert.Len(t, todos.Entries(), 2)

	seen := 0
	todos.ForEach(func(string, json.RawMessage) { seen++ })
	assert.Equal(t, 2, seen)

	prev, err := todos.Delete(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"write tests","done":true}`, string(prev))
	assert.False(t, todos.Has(id))
	assert.Equal(t, 1, todos.Size())

	prev, err = todos.Delete("missing")
	require.NoError(t, err)
	assert.Nil(t, prev)

	ok, err = todos.GetInto(id, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"todos"}, d.Tables())

	stats := d.Stats()
	assert.Equal(t, 1, stats.Tables)
	assert.Equal(t, 1, stats.Rows)
	assert.Equal(t, 5, stats.Changes)
	assert.Equal(t, 0, stats.Peers)
}

func TestDB_ValidationIsSynchronous(t *testing.T) {
	d := openDB(t, "notes", newConnection(t), Options{Dir: t.TempDir()})

	_, err := d.Table("todos").Insert(func() {})
	assert.ErrorIs(t, err, validation.ErrUnsupportedValue)

	_, err = d.Table("bad table!").Insert(todo{Title: "x"})
	assert.ErrorIs(t, err, validation.ErrInvalidName)

	err = d.Table("todos").Update("bad id!", todo{})
	assert.ErrorIs(t, err, validation.ErrInvalidName)

	// ни одно изменение не создано
	assert.Equal(t, StateEmpty, d.State())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	conn := newConnection(t)

	_, err := Open(ctx, "bad/name", conn, testLogger(), Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, validation.ErrInvalidName)

	_, err = Open(ctx, "notes", "short", testLogger(), Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, crypto.ErrInvalidConnectionString)

	_, err = Open(ctx, "notes", conn, testLogger(), Options{Dir: t.TempDir(), Backend: "postgres"})
	assert.ErrorIs(t, err, storage.ErrUnsupportedBackend)
}

func TestOpen_FeedMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	d, err := Open(ctx, "notes", newConnection(t), testLogger(), Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, d.Close(ctx))

	_, err = Open(ctx, "notes", newConnection(t), testLogger(), Options{Dir: dir})
	assert.ErrorIs(t, err, ErrFeedMismatch)
}

func TestDB_Reopen(t *testing.T) {
	for _, backend := range []string{BackendBolt, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			conn := newConnection(t)
			ctx := context.Background()

			d, err := Open(ctx, "notes", conn, testLogger(), Options{Dir: dir, Backend: backend})
			require.NoError(t, err)
			id, err := d.Table("todos").Insert(todo{Title: "persist me"})
			require.NoError(t, err)
			gone, err := d.Table("todos").Insert(todo{Title: "delete me"})
			require.NoError(t, err)
			_, err = d.Table("todos").Delete(gone)
			require.NoError(t, err)
			before := d.clock.Current()
			require.NoError(t, d.Close(ctx))

			_, err = os.Stat(StoragePath(dir, "notes", backend))
			require.NoError(t, err)

			d, err = Open(ctx, "notes", conn, testLogger(), Options{Dir: dir, Backend: backend})
			require.NoError(t, err)
			t.Cleanup(func() { _ = d.Close(ctx) })

			assert.Equal(t, StateReady, d.State())
			assert.Equal(t, 3, d.Stats().Changes)
			assert.True(t, d.Table("todos").Has(id))
			assert.False(t, d.Table("todos").Has(gone))

			// часы после открытия упорядочены после всего сохранённого
			assert.Greater(t, d.clock.Current().Global, before.Global)
		})
	}
}

// crash останавливает фоновые циклы и закрывает хранилище без сброса строк
func crash(t *testing.T, d *DB) {
	t.Helper()
	d.closed.Store(true)
	_ = d.share.Close()
	d.cancel()
	d.wg.Wait()
	require.NoError(t, d.storage.Close())
}

func TestDB_ReopenReplaysLog(t *testing.T) {
	for _, backend := range []string{BackendBolt, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			conn := newConnection(t)
			ctx := context.Background()
			opts := Options{Dir: dir, Backend: backend, FlushInterval: time.Hour}

			d, err := Open(ctx, "notes", conn, testLogger(), opts)
			require.NoError(t, err)
			todos := d.Table("todos")

			flushed, err := todos.Insert(todo{Title: "old"})
			require.NoError(t, err)
			require.NoError(t, d.Flush(ctx))

			// строки после этого сброса попадают только в журнал
			require.NoError(t, todos.Update(flushed, todo{Title: "new"}))
			logged, err := todos.Insert(todo{Title: "logged only"})
			require.NoError(t, err)
			before := d.clock.Current()

			require.NoError(t, d.log.Flush(ctx))
			assert.Equal(t, 2, d.tables.Pending())
			crash(t, d)

			d, err = Open(ctx, "notes", conn, testLogger(), opts)
			require.NoError(t, err)
			t.Cleanup(func() { _ = d.Close(ctx) })

			assert.Equal(t, StateReady, d.State())
			assert.Equal(t, 3, d.Stats().Changes)

			var got todo
			ok, err := d.Table("todos").GetInto(logged, &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "logged only", got.Title)

			ok, err = d.Table("todos").GetInto(flushed, &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "new", got.Title)

			// часы упорядочены после изменений, известных только журналу
			assert.Greater(t, d.clock.Current().Global, before.Global)

			// восстановленные строки снова ждут сброса
			assert.Equal(t, 2, d.Stats().PendingRows)
		})
	}
}

func TestDB_ClosedRejectsWrites(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, "notes", newConnection(t), testLogger(), Options{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx))

	_, err = d.Table("todos").Insert(todo{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDB_Flush(t *testing.T) {
	d := openDB(t, "notes", newConnection(t), Options{Dir: t.TempDir(), FlushInterval: time.Hour})

	_, err := d.Table("todos").Insert(todo{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().PendingRows)
	assert.Equal(t, 1, d.Stats().PendingChanges)

	require.NoError(t, d.Flush(context.Background()))
	assert.Equal(t, 0, d.Stats().PendingRows)
	assert.Equal(t, 0, d.Stats().PendingChanges)
}

func TestDB_Replication(t *testing.T) {
	hub := transport.NewMemoryHub()
	conn := newConnection(t)
	parsed, err := crypto.ParseConnectionString(conn)
	require.NoError(t, err)

	remoteChanges := make(chan string, 16)
	a := openDB(t, "a", conn, Options{
		Dir:          t.TempDir(),
		Discovery:    hub.Join(parsed.Feed, "peer-a"),
		SyncInterval: 20 * time.Millisecond,
		Site:         1,
	})
	b := openDB(t, "b", conn, Options{
		Dir:          t.TempDir(),
		Discovery:    hub.Join(parsed.Feed, "peer-b"),
		SyncInterval: 20 * time.Millisecond,
		Site:         2,
		OnRemoteChange: func(c models.Change) {
			remoteChanges <- c.RowID
		},
	})

	require.Eventually(t, func() bool {
		return a.Connectivity() == Online && b.Connectivity() == Online
	}, 3*time.Second, 10*time.Millisecond)

	id, err := a.Table("todos").Insert(map[string]int{"x": 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Table("todos").Has(id) }, 3*time.Second, 10*time.Millisecond)
	raw, _ := b.Table("todos").Get(id)
	assert.JSONEq(t, `{"x":1}`, string(raw))
	assert.Equal(t, id, <-remoteChanges)

	// правки без связи: обновление на A и удаление на B
	hub.Disconnect(parsed.Feed, "peer-a", "peer-b")
	require.Eventually(t, func() bool {
		return a.PeerCount() == 0 && b.PeerCount() == 0
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Table("todos").Update(id, map[string]int{"x": 2}))
	_, err = b.Table("todos").Delete(id)
	require.NoError(t, err)

	hub.Connect(parsed.Feed, "peer-a", "peer-b")
	require.Eventually(t, func() bool {
		return a.Stats().Changes == 3 && b.Stats().Changes == 3
	}, 3*time.Second, 10*time.Millisecond)

	// B видел вставку A, поэтому его удаление имеет больший global и побеждает
	assert.False(t, a.Table("todos").Has(id))
	assert.False(t, b.Table("todos").Has(id))
}
