// Package share replicates the change log between peers: bulk reconciliation
// with a Bloom filter when a peer connects, then incremental pulls by cursor.
package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/gophmesh/internal/changes"
	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/internal/models"
	"github.com/iudanet/gophmesh/internal/peer"
	"github.com/iudanet/gophmesh/internal/transport"
	"github.com/iudanet/gophmesh/pkg/api"
)

// DefaultSyncInterval период инкрементальной синхронизации
const DefaultSyncInterval = time.Second

var (
	// ErrClosed is returned after Close
	ErrClosed = errors.New("share closed")

	// ErrSyncInProgress is returned when a sync with the same peer is already running
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrUnknownPeer is returned for a peer id that is not connected
	ErrUnknownPeer = errors.New("unknown peer")
)

// ChangeLog is the part of the change log the sync protocol needs
type ChangeLog interface {
	Add(hash string, data []byte) bool
	Len() int
	BloomFilter() []byte
	Missing(filter []byte) ([]changes.Entry, error)
	After(cursor uint64) ([]changes.Entry, uint64)
}

// Options configures a Share
type Options struct {
	Metrics *metrics.Metrics

	// OnChange вызывается для каждого впервые увиденного удалённого изменения.
	// Возвращает true, если изменение поменяло таблицы
	OnChange func(hash string, change models.Change) bool

	// OnConflict сообщает о локальном изменении, проигравшем удалённому
	OnConflict func(models.Conflict)

	// Stub настройки RPC каналов, PeerID заполняется для каждого пира
	Stub peer.Options

	SyncInterval time.Duration
}

type localChange struct {
	hash   string
	change models.Change
}

// Share is the transport.Handler that keeps the local change log in sync with peers
type Share struct {
	log     ChangeLog
	logger  *slog.Logger
	metrics *metrics.Metrics
	methods peer.Methods
	key     []byte
	opts    Options

	mu     sync.Mutex
	peers  map[string]*remotePeer
	closed bool

	// local изменения, ещё не отданные ни одному пиру, по строкам
	localMu     sync.Mutex
	local       map[models.RowKey]localChange
	localHashes map[string]models.RowKey

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ transport.Handler = (*Share)(nil)

type remotePeer struct {
	stub    *peer.Stub
	cancel  context.CancelFunc
	id      string
	syncing atomic.Bool

	mu       sync.Mutex
	state    PeerState
	cursor   uint64
	lastSync time.Time
	last     SyncResult
}

// stop прерывает цикл пира, не дожидаясь его завершения
func (p *remotePeer) stop() {
	p.cancel()
	_ = p.stub.Close()
}

func (p *remotePeer) setState(state PeerState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *remotePeer) info() PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerInfo{
		ID:         p.id,
		State:      p.state,
		Cursor:     p.cursor,
		LastSync:   p.lastSync,
		LastResult: p.last,
	}
}

// New creates a Share over log. key is the feed read key
func New(log ChangeLog, key []byte, logger *slog.Logger, opts Options) (*Share, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("%w, got %d", crypto.ErrInvalidKeySize, len(key))
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.Stub.Metrics == nil {
		opts.Stub.Metrics = opts.Metrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Share{
		log:         log,
		logger:      logger,
		metrics:     opts.Metrics,
		key:         append([]byte(nil), key...),
		opts:        opts,
		peers:       make(map[string]*remotePeer),
		local:       make(map[models.RowKey]localChange),
		localHashes: make(map[string]models.RowKey),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.methods = s.serverMethods()

	registry := opts.Stub.Registry
	if registry == nil {
		registry = api.NewRegistry()
		s.opts.Stub.Registry = registry
	}
	if err := s.methods.Validate(registry); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build method table: %w", err)
	}
	return s, nil
}

// OnPeer starts the channel handshake and the sync loop for a new peer
func (s *Share) OnPeer(p transport.Peer) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = p.Channel.Close()
		return
	}
	if old, ok := s.peers[p.ID]; ok {
		// повторное подключение вытесняет старый канал
		old.stop()
	}

	stubOpts := s.opts.Stub
	stubOpts.PeerID = p.ID
	stub, err := peer.NewStub(p.Channel, s.key, s.methods, s.logger, stubOpts)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("Failed to create peer stub", "peer_id", p.ID, "error", err)
		_ = p.Channel.Close()
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	rp := &remotePeer{
		id:     p.ID,
		stub:   stub,
		cancel: cancel,
		state:  StateConnecting,
	}
	s.peers[p.ID] = rp
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("Peer connected", "peer_id", p.ID)
	go s.runPeer(ctx, rp)
}

// OnPeerDisconnect stops syncing with the peer. Changes already applied stay
func (s *Share) OnPeerDisconnect(peerID string) {
	s.mu.Lock()
	rp, ok := s.peers[peerID]
	s.mu.Unlock()

	if ok {
		s.logger.Debug("Peer disconnected", "peer_id", peerID)
		rp.stop()
	}
}

// runPeer владеет жизненным циклом одного пира
func (s *Share) runPeer(ctx context.Context, rp *remotePeer) {
	defer s.wg.Done()
	defer s.removePeer(rp)
	defer rp.cancel()

	if err := rp.stub.Open(ctx); err != nil {
		s.logger.Warn("Failed to open peer channel", "peer_id", rp.id, "error", err)
		return
	}
	defer rp.stub.Close()

	rp.setState(StateOpen)
	s.metrics.SetConnectedPeers(s.PeerCount())

	rp.setState(StateSyncing)
	if _, err := s.syncPeer(ctx, rp, KindBulk); err != nil && ctx.Err() == nil {
		s.logger.Warn("Bulk sync failed", "peer_id", rp.id, "error", err)
	}
	rp.setState(StateIdle)

	ticker := time.NewTicker(s.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rp.stub.Done():
			if err := rp.stub.Err(); err != nil && !errors.Is(err, peer.ErrStubClosed) {
				s.logger.Info("Peer channel closed", "peer_id", rp.id, "error", err)
			}
			return
		case <-ticker.C:
			_, err := s.syncPeer(ctx, rp, KindIncremental)
			if err != nil && !errors.Is(err, ErrSyncInProgress) && ctx.Err() == nil {
				s.logger.Debug("Incremental sync failed", "peer_id", rp.id, "error", err)
			}
		}
	}
}

func (s *Share) removePeer(rp *remotePeer) {
	rp.setState(StateClosed)

	s.mu.Lock()
	if s.peers[rp.id] == rp {
		delete(s.peers, rp.id)
	}
	s.mu.Unlock()

	s.metrics.SetConnectedPeers(s.PeerCount())
}

// PeerCount returns the number of peers with an open channel
func (s *Share) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rp := range s.peers {
		rp.mu.Lock()
		if rp.state.Connected() {
			n++
		}
		rp.mu.Unlock()
	}
	return n
}

// Peers returns a snapshot of every known peer ordered by id
func (s *Share) Peers() []PeerInfo {
	s.mu.Lock()
	out := make([]PeerInfo, 0, len(s.peers))
	for _, rp := range s.peers {
		out = append(out, rp.info())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b PeerInfo) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Close stops every sync loop and closes every peer channel.
// In-flight RPCs fail with peer.ErrStubClosed
func (s *Share) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*remotePeer, 0, len(s.peers))
	for _, rp := range s.peers {
		peers = append(peers, rp)
	}
	s.mu.Unlock()

	s.cancel()
	for _, rp := range peers {
		rp.stop()
	}
	s.wg.Wait()
	return nil
}
