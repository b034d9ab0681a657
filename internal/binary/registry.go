package binary

import (
	"fmt"
	"sort"
	"sync"
)

// Registry resolves message type names to constructors for open ("any")
// unions. It is built once at startup and handed to the code that needs it.
type Registry struct {
	factories map[string]func() Message
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func() Message),
	}
}

// Register adds a message type under its schema name.
func (r *Registry) Register(factory func() Message) error {
	name := factory().Schema().Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("%w: type %s registered twice", ErrInvalidSchema, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister registers every factory and panics on a duplicate name.
func (r *Registry) MustRegister(factories ...func() Message) *Registry {
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// New creates an empty message of the named type.
func (r *Registry) New(name string) (Message, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return factory(), nil
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalAny encodes m prefixed with its measured type name.
func (r *Registry) MarshalAny(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownVariant)
	}
	name := m.Schema().Name()
	if _, err := r.New(name); err != nil {
		return nil, err
	}
	return marshal(func(e *Encoder) {
		e.putMeasured([]byte(name))
		e.writeMessage(m)
	})
}

// UnmarshalAny decodes a value written by MarshalAny.
func (r *Registry) UnmarshalAny(data []byte) (Message, error) {
	d := &Decoder{buf: data}
	name, err := d.measured()
	if err != nil {
		return nil, err
	}
	m, err := r.New(string(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := d.readMessage(m); err != nil {
		return nil, err
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return m, nil
}
