package transport

import (
	"context"
	"sync"
)

// MemoryHub pairs in-process peers joined to the same feed.
// Used for tests and for embedding several instances in one process
type MemoryHub struct {
	mu     sync.Mutex
	feeds  map[string]map[string]*MemoryDiscovery
	buffer int
}

// NewMemoryHub creates an empty hub
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		feeds:  make(map[string]map[string]*MemoryDiscovery),
		buffer: DefaultPipeBuffer,
	}
}

// Join returns a Discovery for peerID in feed. The peer becomes visible
// to others once Start is called
func (h *MemoryHub) Join(feed, peerID string) *MemoryDiscovery {
	return &MemoryDiscovery{hub: h, feed: feed, id: peerID, channels: make(map[string]Channel)}
}

// Disconnect drops the link between two peers as if the network failed.
// Both handlers see OnPeerDisconnect and the pipe is closed
func (h *MemoryHub) Disconnect(feed, a, b string) {
	h.mu.Lock()
	members := h.feeds[feed]
	da, okA := members[a]
	db, okB := members[b]
	h.mu.Unlock()

	if !okA || !okB {
		return
	}
	da.drop(b)
	db.drop(a)
}

// Connect links two started peers that are not linked yet
func (h *MemoryHub) Connect(feed, a, b string) {
	h.mu.Lock()
	members := h.feeds[feed]
	da, okA := members[a]
	db, okB := members[b]
	h.mu.Unlock()

	if okA && okB {
		h.link(da, db)
	}
}

func (h *MemoryHub) link(a, b *MemoryDiscovery) {
	ca, cb := NewPipe(h.buffer)
	if !a.attach(b.id, ca) {
		_ = ca.Close()
		return
	}
	if !b.attach(a.id, cb) {
		a.drop(b.id)
		return
	}
	a.handler.OnPeer(Peer{ID: b.id, Channel: ca})
	b.handler.OnPeer(Peer{ID: a.id, Channel: cb})
}

// MemoryDiscovery is one member of a MemoryHub
type MemoryDiscovery struct {
	hub     *MemoryHub
	handler Handler
	feed    string
	id      string

	mu       sync.Mutex
	channels map[string]Channel
	closed   bool
}

var _ Discovery = (*MemoryDiscovery)(nil)

// ID returns the peer id
func (d *MemoryDiscovery) ID() string {
	return d.id
}

// Start registers the peer in its feed and connects it to every member
func (d *MemoryDiscovery) Start(_ context.Context, handler Handler) error {
	d.handler = handler

	d.hub.mu.Lock()
	members, ok := d.hub.feeds[d.feed]
	if !ok {
		members = make(map[string]*MemoryDiscovery)
		d.hub.feeds[d.feed] = members
	}
	others := make([]*MemoryDiscovery, 0, len(members))
	for _, m := range members {
		others = append(others, m)
	}
	members[d.id] = d
	d.hub.mu.Unlock()

	for _, other := range others {
		d.hub.link(d, other)
	}
	return nil
}

func (d *MemoryDiscovery) attach(peerID string, ch Channel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if _, ok := d.channels[peerID]; ok {
		return false
	}
	d.channels[peerID] = ch
	return true
}

func (d *MemoryDiscovery) drop(peerID string) {
	d.mu.Lock()
	ch, ok := d.channels[peerID]
	delete(d.channels, peerID)
	d.mu.Unlock()

	if !ok {
		return
	}
	_ = ch.Close()
	d.handler.OnPeerDisconnect(peerID)
}

// Close leaves the feed and closes every channel
func (d *MemoryDiscovery) Close() error {
	d.hub.mu.Lock()
	if members, ok := d.hub.feeds[d.feed]; ok && members[d.id] == d {
		delete(members, d.id)
		if len(members) == 0 {
			delete(d.hub.feeds, d.feed)
		}
	}
	d.hub.mu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	peers := make([]string, 0, len(d.channels))
	for id := range d.channels {
		peers = append(peers, id)
	}
	d.mu.Unlock()

	for _, id := range peers {
		d.hub.mu.Lock()
		other := d.hub.feeds[d.feed][id]
		d.hub.mu.Unlock()

		d.dropSilently(id)
		if other != nil {
			other.drop(d.id)
		}
	}
	return nil
}

func (d *MemoryDiscovery) dropSilently(peerID string) {
	d.mu.Lock()
	ch, ok := d.channels[peerID]
	delete(d.channels, peerID)
	d.mu.Unlock()

	if ok {
		_ = ch.Close()
	}
}
