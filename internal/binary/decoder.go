package binary

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"
)

// Decoder reads the value of the field whose tag the message is currently
// handling. Typed readers check the schema kind of that field.
type Decoder struct {
	schema *Schema
	buf    []byte
	field  Field
	off    int
}

func (d *Decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) uvarint() (uint64, error) {
	v, n, err := readUvarint(d.buf[d.off:])
	if err != nil {
		return 0, err
	}
	d.off += n
	return v, nil
}

func (d *Decoder) raw(n uint64) ([]byte, error) {
	if n > uint64(d.remaining()) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrMalformed, n, d.remaining())
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *Decoder) measured() ([]byte, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	b, err := d.raw(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (d *Decoder) expect(kind Kind) error {
	if d.field.Kind != kind {
		return fmt.Errorf("%w: %s is %s, read as %s", ErrInvalidSchema, d.field.Name, d.field.Kind, kind)
	}
	return nil
}

// Uint reads an unsigned varint.
func (d *Decoder) Uint() (uint64, error) {
	if err := d.expect(KindUint); err != nil {
		return 0, err
	}
	return d.uvarint()
}

// Float reads an IEEE-754 double.
func (d *Decoder) Float() (float64, error) {
	if err := d.expect(KindFloat); err != nil {
		return 0, err
	}
	b, err := d.raw(8)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for _, c := range b {
		bits = bits<<8 | uint64(c)
	}
	return math.Float64frombits(bits), nil
}

// Bool reads 0 or 1; anything else is malformed.
func (d *Decoder) Bool() (bool, error) {
	if err := d.expect(KindBool); err != nil {
		return false, err
	}
	v, err := d.uvarint()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool value %d", ErrMalformed, v)
	}
}

// Bytes reads a measured blob. The result does not alias the input buffer.
func (d *Decoder) Bytes() ([]byte, error) {
	if err := d.expect(KindBytes); err != nil {
		return nil, err
	}
	return d.measured()
}

// String reads a measured UTF-8 string.
func (d *Decoder) String() (string, error) {
	if err := d.expect(KindString); err != nil {
		return "", err
	}
	b, err := d.measured()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}
	return string(b), nil
}

// JSON reads a measured JSON document.
func (d *Decoder) JSON() (json.RawMessage, error) {
	if err := d.expect(KindJSON); err != nil {
		return nil, err
	}
	b, err := d.measured()
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	return json.RawMessage(b), nil
}

// Message reads a nested message into m.
func (d *Decoder) Message(m Message) error {
	if err := d.expect(KindMessage); err != nil {
		return err
	}
	return d.readMessage(m)
}

// Oneof reads a variant index and the variant message.
func (d *Decoder) Oneof(o *Oneof) (Message, error) {
	if err := d.expect(KindOneof); err != nil {
		return nil, err
	}
	return d.readOneof(o)
}

// RepeatedBytes reads a count-prefixed list of blobs.
func (d *Decoder) RepeatedBytes() ([][]byte, error) {
	if err := d.expect(KindRepeatedBytes); err != nil {
		return nil, err
	}
	count, err := d.count()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		b, err := d.measured()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// RepeatedMessage reads a count-prefixed list of messages. next must return a
// fresh message to decode the following element into.
func (d *Decoder) RepeatedMessage(next func() Message) error {
	if err := d.expect(KindRepeatedMessage); err != nil {
		return err
	}
	count, err := d.count()
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := d.readMessage(next()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// count reads a repeated count. Every element takes at least one byte, so a
// count larger than the rest of the buffer cannot be valid.
func (d *Decoder) count() (int, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.remaining()) {
		return 0, fmt.Errorf("%w: repeated count %d exceeds buffer", ErrMalformed, n)
	}
	return int(n), nil
}

func (d *Decoder) readMessage(m Message) error {
	schema := m.Schema()
	parentSchema, parentField := d.schema, d.field
	defer func() {
		d.schema, d.field = parentSchema, parentField
	}()
	d.schema = schema

	seen := make([]bool, len(schema.fields))
	for {
		if d.remaining() == 0 {
			return fmt.Errorf("%w: %s did not terminate", ErrMalformed, schema.name)
		}
		tag, err := d.uvarint()
		if err != nil {
			return err
		}
		if tag == messageEnd {
			return nil
		}
		i, ok := schema.index(tag)
		if !ok {
			return fmt.Errorf("%w: %w: %s tag %d", ErrMalformed, ErrUnknownField, schema.name, tag)
		}
		if seen[i] {
			return fmt.Errorf("%w: %s tag %d repeated", ErrMalformed, schema.name, tag)
		}
		seen[i] = true
		d.field = schema.fields[i]
		if err := m.UnmarshalField(d, tag); err != nil {
			return fmt.Errorf("%s.%s: %w", schema.name, schema.fields[i].Name, err)
		}
	}
}

func (d *Decoder) readOneof(o *Oneof) (Message, error) {
	i, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if i >= uint64(len(o.variants)) {
		return nil, fmt.Errorf("%w: %w: %s index %d", ErrMalformed, ErrUnknownVariant, o.name, i)
	}
	m := o.variants[i]()
	if err := d.readMessage(m); err != nil {
		return nil, err
	}
	return m, nil
}
