// Package binary implements the schema-driven wire codec used for changes,
// sync requests and RPC frames.
//
// A message is encoded as (tag, value) pairs of its fields followed by the
// reserved terminator tag 0. Integers are varints, blobs and strings are
// measured (varint length, then bytes). Decoding is strict: unknown tags,
// repeated tags, truncation and trailing bytes are all errors.
package binary

import "fmt"

// messageEnd is the reserved terminator tag.
const messageEnd = 0

// Message is implemented by every type that travels through the codec.
type Message interface {
	// Schema returns the static field set of the message type
	Schema() *Schema

	// MarshalFields writes every present field through the encoder
	MarshalFields(e *Encoder)

	// UnmarshalField reads the value of the field with the given tag
	UnmarshalField(d *Decoder, tag uint64) error
}

// Marshal encodes m in two passes: a dry run sizes the buffer, the second
// pass fills it.
func Marshal(m Message) ([]byte, error) {
	return marshal(func(e *Encoder) {
		e.writeMessage(m)
	})
}

// Size returns the encoded length of m.
func Size(m Message) (int, error) {
	sizer := &Encoder{dry: true}
	sizer.writeMessage(m)
	if sizer.err != nil {
		return 0, sizer.err
	}
	return sizer.n, nil
}

// Unmarshal decodes data into m. The whole buffer must be consumed.
func Unmarshal(data []byte, m Message) error {
	d := &Decoder{buf: data}
	if err := d.readMessage(m); err != nil {
		return err
	}
	return d.finish()
}

func marshal(write func(e *Encoder)) ([]byte, error) {
	sizer := &Encoder{dry: true}
	write(sizer)
	if sizer.err != nil {
		return nil, sizer.err
	}

	e := &Encoder{buf: make([]byte, 0, sizer.n)}
	write(e)
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

func (d *Decoder) finish() error {
	if d.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, d.remaining())
	}
	return nil
}
