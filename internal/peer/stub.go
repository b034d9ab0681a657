// Package peer implements the per-peer RPC stub: an encrypted, chunked,
// request/response channel on top of a transport.Channel.
package peer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"

	codec "github.com/iudanet/gophmesh/internal/binary"
	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/internal/transport"
	"github.com/iudanet/gophmesh/pkg/api"
)

const (
	// DefaultCallTimeout время ожидания ответа, если у ctx вызова нет дедлайна
	DefaultCallTimeout = 30 * time.Second

	// DefaultHandshakeTimeout время ожидания IV удалённой стороны
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultCompressThreshold сообщения не короче этого сжимаются snappy
	DefaultCompressThreshold = 1024

	// DefaultMaxPieces ограничивает размер собранного сообщения (~60 MB)
	DefaultMaxPieces = 1024

	maxPendingMessages = 64
)

// Options configures a Stub
type Options struct {
	Metrics           *metrics.Metrics
	Registry          *codec.Registry
	PeerID            string
	CallTimeout       time.Duration
	HandshakeTimeout  time.Duration
	CompressThreshold int
	MaxPieces         uint64
}

type result struct {
	err     error
	payload []byte
}

// Stub is one encrypted RPC channel to a remote peer
type Stub struct {
	ch       transport.Channel
	key      []byte
	methods  Methods
	registry *codec.Registry
	logger   *slog.Logger
	opts     Options

	sealer *crypto.Sealer
	opener *crypto.Opener
	sendMu sync.Mutex
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint32]chan result
	open    bool
	err     error

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewStub validates the key and the method table. The channel is not touched until Open
func NewStub(ch transport.Channel, key []byte, methods Methods, logger *slog.Logger, opts Options) (*Stub, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("%w, got %d", crypto.ErrInvalidKeySize, len(key))
	}
	if opts.Registry == nil {
		opts.Registry = api.NewRegistry()
	}
	if err := methods.Validate(opts.Registry); err != nil {
		return nil, err
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.CompressThreshold <= 0 {
		opts.CompressThreshold = DefaultCompressThreshold
	}
	if opts.MaxPieces == 0 {
		opts.MaxPieces = DefaultMaxPieces
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Stub{
		ch:       ch,
		key:      append([]byte(nil), key...),
		methods:  methods,
		registry: opts.Registry,
		logger:   logger.With("peer_id", opts.PeerID),
		opts:     opts,
		pending:  make(map[uint32]chan result),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Open exchanges IVs with the remote side and starts serving.
// Each side sends its own 12-byte IV as the first raw message
func (s *Stub) Open(ctx context.Context) error {
	myIV, err := crypto.GenerateIV()
	if err != nil {
		return err
	}

	hctx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancel()

	if err := s.ch.Send(hctx, myIV); err != nil {
		s.fail(err)
		return fmt.Errorf("%w: failed to send iv: %w", ErrHandshake, err)
	}

	theirIV, err := s.ch.Receive(hctx)
	if err != nil {
		s.fail(err)
		return fmt.Errorf("%w: failed to receive iv: %w", ErrHandshake, err)
	}
	if len(theirIV) != crypto.IVSize {
		err := fmt.Errorf("%w: iv of %d bytes", ErrHandshake, len(theirIV))
		s.fail(err)
		return err
	}

	sealer, err := crypto.NewSealer(s.key, myIV)
	if err != nil {
		return err
	}
	opener, err := crypto.NewOpener(s.key, theirIV)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return ErrStubClosed
	}
	s.sealer, s.opener = sealer, opener
	s.open = true
	s.mu.Unlock()

	go s.readLoop()
	return nil
}

// Done is closed when the stub closes for any reason
func (s *Stub) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns why the stub closed, or nil while it is open
func (s *Stub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the channel and rejects every in-flight call with ErrStubClosed
func (s *Stub) Close() error {
	s.fail(ErrStubClosed)
	return nil
}

func (s *Stub) fail(reason error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = reason
		s.open = false
		pending := s.pending
		s.pending = make(map[uint32]chan result)
		s.mu.Unlock()

		s.cancel()
		_ = s.ch.Close()

		for _, waiter := range pending {
			waiter <- result{err: ErrStubClosed}
		}
	})
}

// violation закрывает stub после нарушения протокола
func (s *Stub) violation(err error) {
	s.logger.Warn("Closing peer after protocol violation", "error", err)
	s.opts.Metrics.ProtocolError()
	s.fail(fmt.Errorf("%w: %w", ErrProtocol, err))
}

// Call sends a request and decodes the response into resp.
// Without a deadline on ctx the call times out after the configured RPC timeout
func (s *Stub) Call(ctx context.Context, method string, req, resp codec.Message) error {
	payload, err := codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}

	id, waiter, err := s.register()
	if err != nil {
		return err
	}

	if err := s.send(&api.RPC{Type: api.RPCRequest, ID: id, Method: method, Payload: payload}); err != nil {
		s.unregister(id)
		return err
	}

	select {
	case res := <-waiter:
		if res.err != nil {
			var remote *RemoteError
			if errors.As(res.err, &remote) {
				remote.Method = method
			}
			return res.err
		}
		if err := codec.Unmarshal(res.payload, resp); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		s.unregister(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, method, ctx.Err())
		}
		return ctx.Err()
	}
}

// register выбирает случайный 32-битный id, не занятый ожидающими вызовами
func (s *Stub) register() (uint32, chan result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		if s.err != nil {
			return 0, nil, ErrStubClosed
		}
		return 0, nil, ErrNotOpen
	}

	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, nil, fmt.Errorf("failed to generate call id: %w", err)
		}
		id := binary.BigEndian.Uint32(buf[:])
		if _, taken := s.pending[id]; taken {
			continue
		}
		waiter := make(chan result, 1)
		s.pending[id] = waiter
		return id, waiter, nil
	}
}

func (s *Stub) unregister(id uint32) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Stub) resolve(id uint32, res result) {
	s.mu.Lock()
	waiter, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if !ok {
		// ответ на вызов, который уже завершился по таймауту
		s.logger.Debug("Dropping response without pending call", "id", id)
		return
	}
	waiter <- res
}

// send сериализует, сжимает, шифрует и отправляет кадр кусками.
// Куски одного сообщения уходят подряд, счётчики шифрования идут по порядку
func (s *Stub) send(rpc *api.RPC) error {
	data, err := codec.Marshal(rpc)
	if err != nil {
		return fmt.Errorf("failed to encode rpc: %w", err)
	}

	compressed := false
	if len(data) >= s.opts.CompressThreshold {
		if packed := snappy.Encode(nil, data); len(packed) < len(data) {
			data, compressed = packed, true
		}
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	sealed := s.sealer.Seal(data)
	for _, piece := range split(s.nextID.Add(1), sealed, compressed) {
		frame, err := codec.Marshal(piece)
		if err != nil {
			return fmt.Errorf("failed to encode piece: %w", err)
		}
		if err := s.ch.Send(s.ctx, frame); err != nil {
			if s.ctx.Err() != nil {
				return ErrStubClosed
			}
			s.fail(err)
			return fmt.Errorf("failed to send: %w", err)
		}
	}
	return nil
}

func (s *Stub) readLoop() {
	asm := newAssembler(s.opts.MaxPieces, maxPendingMessages)

	for {
		frame, err := s.ch.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Debug("Peer channel closed", "error", err)
			}
			s.fail(err)
			return
		}

		var piece api.MessagePiece
		if err := codec.Unmarshal(frame, &piece); err != nil {
			s.violation(err)
			return
		}

		sealed, compressed, err := asm.add(&piece)
		if err != nil {
			s.violation(err)
			return
		}
		if sealed == nil && piece.PieceCount > 1 {
			// ждём остальные куски
			continue
		}

		if err := s.dispatch(sealed, compressed); err != nil {
			s.violation(err)
			return
		}
	}
}

func (s *Stub) dispatch(sealed []byte, compressed bool) error {
	data, err := s.opener.Open(sealed)
	if err != nil {
		return err
	}
	if compressed {
		if data, err = snappy.Decode(nil, data); err != nil {
			return fmt.Errorf("failed to decompress: %w", err)
		}
	}

	var rpc api.RPC
	if err := codec.Unmarshal(data, &rpc); err != nil {
		return err
	}

	switch rpc.Type {
	case api.RPCRequest:
		method, ok := s.methods[rpc.Method]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMethod, rpc.Method)
		}
		go s.serve(rpc, method)
	case api.RPCResponse:
		s.resolve(rpc.ID, result{payload: rpc.Payload})
	case api.RPCError:
		msg, err := s.registry.UnmarshalAny(rpc.Payload)
		if err != nil {
			return fmt.Errorf("failed to decode error frame: %w", err)
		}
		em, ok := msg.(*api.ErrorMessage)
		if !ok {
			return fmt.Errorf("unexpected error payload %s", msg.Schema().Name())
		}
		s.resolve(rpc.ID, result{err: &RemoteError{Method: rpc.Method, Message: em.Message}})
	}
	return nil
}

func (s *Stub) serve(rpc api.RPC, method Method) {
	reply := &api.RPC{Type: api.RPCResponse, ID: rpc.ID, Method: rpc.Method}

	resp, err := s.handle(rpc, method)
	if err == nil {
		reply.Payload, err = codec.Marshal(resp)
	}
	if err != nil {
		s.logger.Debug("RPC handler failed", "method", rpc.Method, "error", err)
		reply.Type = api.RPCError
		reply.Payload, err = s.registry.MarshalAny(&api.ErrorMessage{Message: err.Error()})
		if err != nil {
			s.logger.Error("Failed to encode error frame", "error", err)
			return
		}
	}

	if err := s.send(reply); err != nil && !errors.Is(err, ErrStubClosed) {
		s.logger.Debug("Failed to send rpc reply", "method", rpc.Method, "error", err)
	}
}

func (s *Stub) handle(rpc api.RPC, method Method) (codec.Message, error) {
	req := method.NewRequest()
	if err := codec.Unmarshal(rpc.Payload, req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	s.opts.Metrics.RPCServed(rpc.Method)
	return method.Handle(s.ctx, req)
}
