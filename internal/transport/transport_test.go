package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingHandler собирает события discovery
type recordingHandler struct {
	mu      sync.Mutex
	peers   map[string]Channel
	dropped []string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{peers: make(map[string]Channel)}
}

func (h *recordingHandler) OnPeer(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.ID] = p.Channel
}

func (h *recordingHandler) OnPeerDisconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
	h.dropped = append(h.dropped, id)
}

func (h *recordingHandler) channel(id string) (Channel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.peers[id]
	return ch, ok
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func TestPipe_SendReceive(t *testing.T) {
	ctx := context.Background()
	a, b := NewPipe(4)

	msg := []byte("hello")
	require.NoError(t, a.Send(ctx, msg))
	msg[0] = 'j'

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got, "send copies the message")

	require.NoError(t, b.Send(ctx, []byte("back")))
	got, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("back"), got)
}

func TestPipe_Close(t *testing.T) {
	ctx := context.Background()
	a, b := NewPipe(1)

	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Send(ctx, []byte("x")), ErrClosed)
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, IsClosed(err))
	assert.NoError(t, b.Close())
}

func TestPipe_ContextCancel(t *testing.T) {
	a, _ := NewPipe(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, a.Send(context.Background(), []byte("fills buffer")))
	assert.ErrorIs(t, a.Send(ctx, []byte("blocks")), context.DeadlineExceeded)
}

func TestMemoryHub_PairsPeersInFeed(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	ha, hb, hc := newRecordingHandler(), newRecordingHandler(), newRecordingHandler()
	da := hub.Join("feed", "a")
	db := hub.Join("feed", "b")
	dc := hub.Join("other", "c")

	require.NoError(t, da.Start(ctx, ha))
	require.NoError(t, db.Start(ctx, hb))
	require.NoError(t, dc.Start(ctx, hc))

	assert.Equal(t, 1, ha.count())
	assert.Equal(t, 1, hb.count())
	assert.Equal(t, 0, hc.count(), "feeds are isolated")

	chA, ok := ha.channel("b")
	require.True(t, ok)
	chB, ok := hb.channel("a")
	require.True(t, ok)

	require.NoError(t, chA.Send(ctx, []byte("ping")))
	got, err := chB.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)

	require.NoError(t, db.Close())
	assert.Equal(t, 0, ha.count())
	assert.Equal(t, []string{"b"}, ha.dropped)
	_, err = chA.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryHub_DisconnectConnect(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	ha, hb := newRecordingHandler(), newRecordingHandler()
	da, db := hub.Join("feed", "a"), hub.Join("feed", "b")
	require.NoError(t, da.Start(ctx, ha))
	require.NoError(t, db.Start(ctx, hb))

	hub.Disconnect("feed", "a", "b")
	assert.Equal(t, 0, ha.count())
	assert.Equal(t, 0, hb.count())

	hub.Connect("feed", "a", "b")
	assert.Equal(t, 1, ha.count())
	assert.Equal(t, 1, hb.count())

	// повторный Connect не создаёт второй канал
	hub.Connect("feed", "a", "b")
	assert.Equal(t, 1, ha.count())
}

func TestFeedPath(t *testing.T) {
	assert.Equal(t, "/api/v1/feeds/abc/ws", FeedPath("abc"))
}

func TestWebsocketDiscovery_Endpoint(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "http://host:8080", want: "ws://host:8080/api/v1/feeds/f/ws"},
		{url: "https://host/", want: "wss://host/api/v1/feeds/f/ws"},
		{url: "ws://host", want: "ws://host/api/v1/feeds/f/ws"},
		{url: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d := NewWebsocketDiscovery(WebsocketOptions{TrackerURL: tt.url, Feed: "f"}, testLogger())
			got, err := d.endpoint()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebsocketDiscovery_StartFailsWithoutTracker(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	d := NewWebsocketDiscovery(WebsocketOptions{TrackerURL: url, Feed: "f"}, testLogger())
	err := d.Start(context.Background(), newRecordingHandler())
	assert.Error(t, err)
	assert.NoError(t, d.Close())
	assert.False(t, d.Connected())
}
