package binary

import "fmt"

// Oneof is a closed tagged union. Variants are encoded by their position in
// the list, so the order is part of the wire format.
type Oneof struct {
	names    map[string]int
	name     string
	variants []func() Message
}

// NewOneof builds a union over the given variant constructors.
func NewOneof(name string, variants ...func() Message) (*Oneof, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: oneof %s has no variants", ErrInvalidSchema, name)
	}
	o := &Oneof{
		name:     name,
		variants: variants,
		names:    make(map[string]int, len(variants)),
	}
	for i, newVariant := range variants {
		variantName := newVariant().Schema().Name()
		if _, dup := o.names[variantName]; dup {
			return nil, fmt.Errorf("%w: oneof %s lists %s twice", ErrInvalidSchema, name, variantName)
		}
		o.names[variantName] = i
	}
	return o, nil
}

// MustOneof is NewOneof for package-level definitions.
func MustOneof(name string, variants ...func() Message) *Oneof {
	o, err := NewOneof(name, variants...)
	if err != nil {
		panic(err)
	}
	return o
}

// Name returns the union name.
func (o *Oneof) Name() string {
	return o.name
}

func (o *Oneof) indexOf(m Message) (int, error) {
	if m == nil {
		return 0, fmt.Errorf("%w: nil %s variant", ErrUnknownVariant, o.name)
	}
	i, ok := o.names[m.Schema().Name()]
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a %s variant", ErrUnknownVariant, m.Schema().Name(), o.name)
	}
	return i, nil
}

// Marshal encodes m as a top-level union value.
func (o *Oneof) Marshal(m Message) ([]byte, error) {
	return marshal(func(e *Encoder) {
		e.writeOneof(o, m)
	})
}

// Unmarshal decodes a top-level union value.
func (o *Oneof) Unmarshal(data []byte) (Message, error) {
	d := &Decoder{buf: data}
	m, err := d.readOneof(o)
	if err != nil {
		return nil, err
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return m, nil
}
