package binary

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"
)

// Encoder writes tagged fields for the message currently being encoded.
// A dry-run encoder only counts bytes; Marshal uses it to size the output
// buffer before the real write.
type Encoder struct {
	err    error
	schema *Schema
	buf    []byte
	n      int
	dry    bool
}

// Len returns the number of bytes written (or counted) so far.
func (e *Encoder) Len() int {
	return e.n
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) putUvarint(v uint64) {
	if e.dry {
		e.n += uvarintLen(v)
		return
	}
	before := len(e.buf)
	e.buf = appendUvarint(e.buf, v)
	e.n += len(e.buf) - before
}

func (e *Encoder) putRaw(b []byte) {
	e.n += len(b)
	if !e.dry {
		e.buf = append(e.buf, b...)
	}
}

func (e *Encoder) putMeasured(b []byte) {
	e.putUvarint(uint64(len(b)))
	e.putRaw(b)
}

// field checks the tag against the schema and writes it.
func (e *Encoder) field(tag uint64, kind Kind) bool {
	if e.err != nil {
		return false
	}
	if e.schema == nil {
		e.fail(fmt.Errorf("%w: field %d written outside of a message", ErrInvalidSchema, tag))
		return false
	}
	f, ok := e.schema.Field(tag)
	if !ok {
		e.fail(fmt.Errorf("%w: %s has no field %d", ErrUnknownField, e.schema.name, tag))
		return false
	}
	if f.Kind != kind {
		e.fail(fmt.Errorf("%w: %s.%s is %s, written as %s", ErrInvalidSchema, e.schema.name, f.Name, f.Kind, kind))
		return false
	}
	e.putUvarint(tag)
	return true
}

// Uint writes an unsigned varint field.
func (e *Encoder) Uint(tag, v uint64) {
	if e.field(tag, KindUint) {
		e.putUvarint(v)
	}
}

// Float writes an IEEE-754 double, big-endian.
func (e *Encoder) Float(tag uint64, v float64) {
	if !e.field(tag, KindFloat) {
		return
	}
	bits := math.Float64bits(v)
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(bits)
		bits >>= 8
	}
	e.putRaw(b[:])
}

// Bool writes 0 or 1.
func (e *Encoder) Bool(tag uint64, v bool) {
	if !e.field(tag, KindBool) {
		return
	}
	if v {
		e.putUvarint(1)
	} else {
		e.putUvarint(0)
	}
}

// Bytes writes a measured byte blob.
func (e *Encoder) Bytes(tag uint64, v []byte) {
	if e.field(tag, KindBytes) {
		e.putMeasured(v)
	}
}

// String writes a measured UTF-8 string.
func (e *Encoder) String(tag uint64, v string) {
	if !e.field(tag, KindString) {
		return
	}
	if e.dry && !utf8.ValidString(v) {
		e.fail(fmt.Errorf("%w: %s string field %d is not valid UTF-8", ErrMalformed, e.schema.name, tag))
		return
	}
	e.putMeasured([]byte(v))
}

// JSON writes an already serialized JSON document as a measured blob.
func (e *Encoder) JSON(tag uint64, v json.RawMessage) {
	if !e.field(tag, KindJSON) {
		return
	}
	if e.dry && !json.Valid(v) {
		e.fail(fmt.Errorf("%w: %s json field %d is not valid JSON", ErrMalformed, e.schema.name, tag))
		return
	}
	e.putMeasured(v)
}

// Message writes a nested message.
func (e *Encoder) Message(tag uint64, m Message) {
	if e.field(tag, KindMessage) {
		e.writeMessage(m)
	}
}

// Oneof writes a variant index followed by the variant message.
func (e *Encoder) Oneof(tag uint64, o *Oneof, m Message) {
	if e.field(tag, KindOneof) {
		e.writeOneof(o, m)
	}
}

// RepeatedBytes writes a count-prefixed list of measured blobs.
func (e *Encoder) RepeatedBytes(tag uint64, v [][]byte) {
	if !e.field(tag, KindRepeatedBytes) {
		return
	}
	e.putUvarint(uint64(len(v)))
	for _, b := range v {
		e.putMeasured(b)
	}
}

// RepeatedMessage writes a count-prefixed list of messages; at returns the
// i-th element.
func (e *Encoder) RepeatedMessage(tag uint64, count int, at func(i int) Message) {
	if !e.field(tag, KindRepeatedMessage) {
		return
	}
	e.putUvarint(uint64(count))
	for i := 0; i < count; i++ {
		e.writeMessage(at(i))
	}
}

func (e *Encoder) writeMessage(m Message) {
	if e.err != nil {
		return
	}
	if m == nil {
		e.fail(fmt.Errorf("%w: nil message", ErrInvalidSchema))
		return
	}
	parent := e.schema
	e.schema = m.Schema()
	m.MarshalFields(e)
	e.schema = parent
	e.putUvarint(messageEnd)
}

func (e *Encoder) writeOneof(o *Oneof, m Message) {
	i, err := o.indexOf(m)
	if err != nil {
		e.fail(err)
		return
	}
	e.putUvarint(uint64(i))
	e.writeMessage(m)
}
