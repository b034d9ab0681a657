package peer

import (
	"context"
	"fmt"

	"github.com/iudanet/gophmesh/internal/binary"
)

// Method describes one RPC method: how to build its messages and how to serve it
type Method struct {
	NewRequest  func() binary.Message
	NewResponse func() binary.Message
	Handle      func(ctx context.Context, req binary.Message) (binary.Message, error)
}

// Methods is the method table of a stub, keyed by method name
type Methods map[string]Method

// Validate checks that every request and response type is known to reg.
// The table is built once per process, so a failure here is a programming error
func (m Methods) Validate(reg *binary.Registry) error {
	for name, method := range m {
		if method.NewRequest == nil || method.NewResponse == nil || method.Handle == nil {
			return fmt.Errorf("method %s: incomplete definition", name)
		}
		for _, msg := range []binary.Message{method.NewRequest(), method.NewResponse()} {
			if _, err := reg.New(msg.Schema().Name()); err != nil {
				return fmt.Errorf("method %s: %w", name, err)
			}
		}
	}
	return nil
}
