package peer

import (
	"errors"
	"fmt"
)

var (
	// ErrStubClosed is returned by calls on a closed stub and by calls
	// that were in flight when it closed
	ErrStubClosed = errors.New("peer stub closed")

	// ErrHandshake indicates a missing or malformed IV from the remote side
	ErrHandshake = errors.New("peer handshake failed")

	// ErrProtocol indicates a protocol violation; the stub closes on it
	ErrProtocol = errors.New("peer protocol violation")

	// ErrUnknownMethod indicates a call to a method missing from the table
	ErrUnknownMethod = errors.New("unknown rpc method")

	// ErrTimeout indicates a call that got no response in time
	ErrTimeout = errors.New("rpc timed out")

	// ErrNotOpen is returned by Call before Open completed
	ErrNotOpen = errors.New("peer stub not open")
)

// RemoteError is an error reported by the remote handler in an ERROR frame
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s failed: %s", e.Method, e.Message)
}
