package binary

import "fmt"

// Kind is the wire type of a message field.
type Kind uint8

const (
	KindUint Kind = iota + 1
	KindFloat
	KindBool
	KindBytes
	KindString
	KindJSON
	KindMessage
	KindOneof
	KindRepeatedBytes
	KindRepeatedMessage
)

var kindNames = map[Kind]string{
	KindUint:            "uint",
	KindFloat:           "float",
	KindBool:            "bool",
	KindBytes:           "bytes",
	KindString:          "string",
	KindJSON:            "json",
	KindMessage:         "message",
	KindOneof:           "oneof",
	KindRepeatedBytes:   "repeated bytes",
	KindRepeatedMessage: "repeated message",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Field describes one tagged field of a message.
type Field struct {
	Name string
	Tag  uint64
	Kind Kind
}

// Schema is the static field set of a message type. Tags are validated once,
// when the schema is defined, never at serialization time.
type Schema struct {
	byTag  map[uint64]int
	name   string
	fields []Field
}

// NewSchema validates the field list and builds a schema.
// A zero tag is reserved for the message terminator.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty message name", ErrInvalidSchema)
	}
	s := &Schema{
		name:   name,
		fields: make([]Field, 0, len(fields)),
		byTag:  make(map[uint64]int, len(fields)),
	}
	for _, f := range fields {
		if f.Tag == 0 {
			return nil, fmt.Errorf("%w: %s.%s has non-positive tag", ErrInvalidSchema, name, f.Name)
		}
		if _, dup := s.byTag[f.Tag]; dup {
			return nil, fmt.Errorf("%w: %s.%s reuses tag %d", ErrInvalidSchema, name, f.Name, f.Tag)
		}
		if _, ok := kindNames[f.Kind]; !ok {
			return nil, fmt.Errorf("%w: %s.%s has unknown kind %d", ErrInvalidSchema, name, f.Name, f.Kind)
		}
		s.byTag[f.Tag] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema is NewSchema for package-level definitions.
func MustSchema(name string, fields ...Field) *Schema {
	s, err := NewSchema(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the message type name.
func (s *Schema) Name() string {
	return s.name
}

// Fields returns a copy of the field list in definition order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks a field up by tag.
func (s *Schema) Field(tag uint64) (Field, bool) {
	i, ok := s.byTag[tag]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s *Schema) index(tag uint64) (int, bool) {
	i, ok := s.byTag[tag]
	return i, ok
}
