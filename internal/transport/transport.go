// Package transport defines the boundary between peer discovery and the
// sync protocol: ordered, reliable, message-oriented channels to peers.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed channel or discovery
var ErrClosed = errors.New("channel closed")

// Channel is a bidirectional ordered message channel to one remote peer.
// Send and Receive may be called from different goroutines
type Channel interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Peer is a freshly connected remote peer
type Peer struct {
	Channel Channel
	ID      string
}

// Handler receives peer lifecycle events from a Discovery.
// Implementations must not block
type Handler interface {
	OnPeer(p Peer)
	OnPeerDisconnect(peerID string)
}

// Discovery finds peers that share a feed and hands their channels to a Handler
type Discovery interface {
	Start(ctx context.Context, h Handler) error
	Close() error
}
