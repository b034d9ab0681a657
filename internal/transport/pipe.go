package transport

import (
	"context"
	"sync"
)

// DefaultPipeBuffer число сообщений, которое вмещает каждое направление pipe
const DefaultPipeBuffer = 64

type pipeState struct {
	done chan struct{}
	once sync.Once
}

func (s *pipeState) close() {
	s.once.Do(func() { close(s.done) })
}

type pipeEnd struct {
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState
}

// NewPipe returns two connected in-memory channel ends.
// Closing either end closes both
func NewPipe(buffer int) (Channel, Channel) {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}

	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	state := &pipeState{done: make(chan struct{})}

	return &pipeEnd{in: ba, out: ab, state: state}, &pipeEnd{in: ab, out: ba, state: state}
}

func (p *pipeEnd) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- append([]byte(nil), msg...):
		return nil
	case <-p.state.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.state.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.state.close()
	return nil
}
