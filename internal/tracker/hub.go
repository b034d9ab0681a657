// Package tracker implements the rendezvous relay: peers of one feed meet
// on a websocket endpoint and exchange opaque encrypted frames through it.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/iudanet/gophmesh/internal/binary"
	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/pkg/api"
)

// ErrHubStopped is returned when the hub no longer runs
var ErrHubStopped = errors.New("hub stopped")

// outbound сообщение в очереди записи клиента
type outbound struct {
	data []byte
	text bool
}

// client одно websocket соединение пира
type client struct {
	send   chan outbound
	feed   string
	peerID string
	once   sync.Once
	done   chan struct{}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

type relayMsg struct {
	from  *client
	frame api.RelayFrame
}

// Hub groups connected peers by feed and forwards frames between them.
// All membership changes and forwarding run on the Run goroutine
type Hub struct {
	feeds      map[string]map[string]*client
	register   chan *client
	unregister chan *client
	relay      chan relayMsg
	stats      chan chan Stats
	done       chan struct{}
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Stats is a snapshot of hub membership
type Stats struct {
	Feeds int `json:"feeds"`
	Peers int `json:"peers"`
}

// NewHub creates a hub. Call Run to start it
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		feeds:      make(map[string]map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		relay:      make(chan relayMsg, 256),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run processes hub events until ctx is done, then disconnects everyone
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.relay:
			h.handleRelay(msg)
		case reply := <-h.stats:
			reply <- h.snapshot()
		}
	}
}

// Stats returns current membership counts
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (h *Hub) snapshot() Stats {
	s := Stats{Feeds: len(h.feeds)}
	for _, peers := range h.feeds {
		s.Peers += len(peers)
	}
	return s
}

func (h *Hub) handleRegister(c *client) {
	peers, ok := h.feeds[c.feed]
	if !ok {
		peers = make(map[string]*client)
		h.feeds[c.feed] = peers
	}

	if _, taken := peers[c.peerID]; taken {
		h.logger.Warn("Duplicate peer id rejected", "peer_id", c.peerID)
		c.stop()
		return
	}

	// новый пир сначала узнаёт о существующих, и только потом они о нём
	for id := range peers {
		h.enqueueEvent(c, api.PeerEvent{Type: api.PeerEventJoin, PeerID: id})
	}
	for _, other := range peers {
		h.enqueueEvent(other, api.PeerEvent{Type: api.PeerEventJoin, PeerID: c.peerID})
	}
	select {
	case <-c.done:
		return
	default:
	}
	peers[c.peerID] = c

	h.metrics.TrackerConnOpened()
	h.logger.Debug("Peer joined", "peer_id", c.peerID, "peers", len(peers))
}

func (h *Hub) remove(c *client) {
	peers, ok := h.feeds[c.feed]
	if !ok || peers[c.peerID] != c {
		c.stop()
		return
	}

	delete(peers, c.peerID)
	c.stop()
	if len(peers) == 0 {
		delete(h.feeds, c.feed)
	}

	for _, other := range peers {
		h.enqueueEvent(other, api.PeerEvent{Type: api.PeerEventLeave, PeerID: c.peerID})
	}

	h.metrics.TrackerConnClosed()
	h.logger.Debug("Peer left", "peer_id", c.peerID, "peers", len(peers))
}

func (h *Hub) handleRelay(msg relayMsg) {
	peers := h.feeds[msg.from.feed]
	if peers[msg.from.peerID] != msg.from {
		return
	}

	target, ok := peers[msg.frame.Peer]
	if !ok {
		h.metrics.FrameDropped()
		return
	}

	out, err := binary.Marshal(&api.RelayFrame{Peer: msg.from.peerID, Payload: msg.frame.Payload})
	if err != nil {
		h.logger.Error("Failed to encode relay frame", "error", err)
		return
	}

	if h.enqueue(target, outbound{data: out}) {
		h.metrics.FrameRelayed()
	} else {
		h.metrics.FrameDropped()
	}
}

func (h *Hub) enqueueEvent(c *client, ev api.PeerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode peer event", "error", err)
		return
	}
	h.enqueue(c, outbound{data: data, text: true})
}

// enqueue не блокирует hub: медленный клиент отключается
func (h *Hub) enqueue(c *client, msg outbound) bool {
	select {
	case c.send <- msg:
		return true
	default:
		h.logger.Warn("Peer send queue full, disconnecting", "peer_id", c.peerID)
		h.remove(c)
		return false
	}
}

func (h *Hub) shutdown() {
	for _, peers := range h.feeds {
		for _, c := range peers {
			c.stop()
			h.metrics.TrackerConnClosed()
		}
	}
	h.feeds = make(map[string]map[string]*client)
}

// join регистрирует клиента; false, если hub уже остановлен
func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) forward(c *client, frame api.RelayFrame) {
	select {
	case h.relay <- relayMsg{from: c, frame: frame}:
	case <-h.done:
	}
}
