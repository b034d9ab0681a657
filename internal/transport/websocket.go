package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iudanet/gophmesh/internal/binary"
	"github.com/iudanet/gophmesh/pkg/api"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 1 << 20
	peerQueueSize  = 256
	sendQueueSize  = 256
	minRedialDelay = 500 * time.Millisecond
	maxRedialDelay = 30 * time.Second
)

// FeedPath returns the tracker relay path for a feed
func FeedPath(feed string) string {
	return "/api/v1/feeds/" + url.PathEscape(feed) + "/ws"
}

// WebsocketOptions configures a WebsocketDiscovery
type WebsocketOptions struct {
	Dialer *websocket.Dialer

	// TrackerURL базовый адрес трекера, например ws://localhost:8080
	TrackerURL string
	Feed       string

	// PeerID идентификатор этого пира; по умолчанию случайный UUID
	PeerID string

	// Redial переподключаться к трекеру после обрыва
	Redial bool
}

// WebsocketDiscovery connects to the tracker relay and multiplexes one
// virtual channel per remote peer over a single websocket
type WebsocketDiscovery struct {
	opts    WebsocketOptions
	logger  *slog.Logger
	handler Handler

	mu      sync.Mutex
	session *wsSession
	cancel  context.CancelFunc
	closed  bool
	done    chan struct{}
}

var _ Discovery = (*WebsocketDiscovery)(nil)

// NewWebsocketDiscovery creates a discovery client. Nothing is dialed until Start
func NewWebsocketDiscovery(opts WebsocketOptions, logger *slog.Logger) *WebsocketDiscovery {
	if opts.PeerID == "" {
		opts.PeerID = uuid.NewString()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &WebsocketDiscovery{
		opts:   opts,
		logger: logger.With("peer_id", opts.PeerID),
		done:   make(chan struct{}),
	}
}

// PeerID returns this peer's id on the tracker
func (d *WebsocketDiscovery) PeerID() string {
	return d.opts.PeerID
}

// Connected reports whether the tracker socket is currently up
func (d *WebsocketDiscovery) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session != nil
}

// Start dials the tracker once and serves the connection in the background.
// With Redial set a failed connection is retried with backoff until Close
func (d *WebsocketDiscovery) Start(ctx context.Context, h Handler) error {
	d.handler = h

	conn, err := d.dial(ctx)
	if err != nil && !d.opts.Redial {
		return err
	}
	if err != nil {
		d.logger.Warn("Tracker unreachable, will retry", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	go d.run(runCtx, conn)
	return nil
}

func (d *WebsocketDiscovery) endpoint() (string, error) {
	base, err := url.Parse(strings.TrimRight(d.opts.TrackerURL, "/"))
	if err != nil {
		return "", fmt.Errorf("failed to parse tracker url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported tracker scheme %q", base.Scheme)
	}
	return base.String() + FeedPath(d.opts.Feed), nil
}

func (d *WebsocketDiscovery) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, err
	}

	conn, _, err := d.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial tracker: %w", err)
	}

	announce := api.Announce{Feed: d.opts.Feed, PeerID: d.opts.PeerID}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(announce); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to announce: %w", err)
	}

	return conn, nil
}

func (d *WebsocketDiscovery) run(ctx context.Context, conn *websocket.Conn) {
	defer close(d.done)

	delay := minRedialDelay
	for {
		if conn != nil {
			delay = minRedialDelay
			d.serve(ctx, conn)
		}
		if !d.opts.Redial || ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRedialDelay)

		var err error
		conn, err = d.dial(ctx)
		if err != nil {
			d.logger.Debug("Tracker redial failed", "error", err, "next_in", delay)
		}
	}
}

// serve обслуживает одно соединение с трекером до его обрыва
func (d *WebsocketDiscovery) serve(ctx context.Context, conn *websocket.Conn) {
	s := &wsSession{
		d:     d,
		conn:  conn,
		out:   make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
		peers: make(map[string]*relayChannel),
	}

	d.mu.Lock()
	d.session = s
	d.mu.Unlock()
	d.logger.Info("Connected to tracker", "feed", d.opts.Feed)

	go s.writePump(ctx)
	s.readPump()

	d.mu.Lock()
	d.session = nil
	d.mu.Unlock()
	s.shutdown()
	d.logger.Info("Disconnected from tracker")
}

// Close disconnects from the tracker and closes every peer channel
func (d *WebsocketDiscovery) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel := d.cancel
	s := d.session
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if s != nil {
		s.closeConn()
	}
	<-d.done
	return nil
}

type wsSession struct {
	d    *WebsocketDiscovery
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	peers map[string]*relayChannel
}

func (s *wsSession) closeConn() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *wsSession) shutdown() {
	s.closeConn()

	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[string]*relayChannel)
	s.mu.Unlock()

	for id, ch := range peers {
		ch.closeLocal()
		s.d.handler.OnPeerDisconnect(id)
	}
}

func (s *wsSession) readPump() {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.d.logger.Warn("Tracker connection error", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.TextMessage:
			s.handleEvent(data)
		case websocket.BinaryMessage:
			s.handleFrame(data)
		}
	}
}

func (s *wsSession) handleEvent(data []byte) {
	var ev api.PeerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.d.logger.Warn("Malformed tracker event", "error", err)
		return
	}
	if ev.PeerID == "" || ev.PeerID == s.d.opts.PeerID {
		return
	}

	switch ev.Type {
	case api.PeerEventJoin:
		s.peer(ev.PeerID)
	case api.PeerEventLeave:
		s.drop(ev.PeerID)
	}
}

func (s *wsSession) handleFrame(data []byte) {
	var frame api.RelayFrame
	if err := binary.Unmarshal(data, &frame); err != nil {
		s.d.logger.Warn("Malformed relay frame", "error", err)
		return
	}
	if frame.Peer == "" || frame.Peer == s.d.opts.PeerID {
		return
	}

	// трекер всегда присылает join раньше первого кадра от пира
	s.mu.Lock()
	ch, ok := s.peers[frame.Peer]
	s.mu.Unlock()
	if !ok {
		s.d.logger.Debug("Frame from unknown peer dropped", "remote", frame.Peer)
		return
	}

	select {
	case ch.in <- frame.Payload:
	case <-ch.closed:
	default:
		// получатель не успевает: порядок уже не гарантировать, рвём канал
		s.d.logger.Warn("Peer queue overflow, dropping channel", "remote", frame.Peer)
		s.drop(frame.Peer)
	}
}

// peer возвращает канал к пиру, создавая его и уведомляя handler при первом обращении
func (s *wsSession) peer(id string) *relayChannel {
	s.mu.Lock()
	ch, ok := s.peers[id]
	if !ok {
		ch = &relayChannel{
			session: s,
			peerID:  id,
			in:      make(chan []byte, peerQueueSize),
			closed:  make(chan struct{}),
		}
		s.peers[id] = ch
	}
	s.mu.Unlock()

	if !ok {
		s.d.handler.OnPeer(Peer{ID: id, Channel: ch})
	}
	return ch
}

func (s *wsSession) drop(id string) {
	s.mu.Lock()
	ch, ok := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()

	if ok {
		ch.closeLocal()
		s.d.handler.OnPeerDisconnect(id)
	}
}

func (s *wsSession) forget(ch *relayChannel) {
	s.mu.Lock()
	if s.peers[ch.peerID] == ch {
		delete(s.peers, ch.peerID)
	}
	s.mu.Unlock()
}

func (s *wsSession) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConn()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-s.done:
			return
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				s.d.logger.Warn("Failed to write to tracker", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// relayChannel виртуальный канал к одному пиру поверх сокета трекера
type relayChannel struct {
	session *wsSession
	peerID  string
	in      chan []byte
	closed  chan struct{}
	once    sync.Once
}

func (c *relayChannel) closeLocal() {
	c.once.Do(func() { close(c.closed) })
}

func (c *relayChannel) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	frame, err := binary.Marshal(&api.RelayFrame{Peer: c.peerID, Payload: msg})
	if err != nil {
		return fmt.Errorf("failed to encode relay frame: %w", err)
	}

	select {
	case c.session.out <- frame:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-c.session.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *relayChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *relayChannel) Close() error {
	c.closeLocal()
	c.session.forget(c)
	return nil
}

// IsClosed reports whether err means the channel is gone
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
