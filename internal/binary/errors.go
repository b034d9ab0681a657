package binary

import "errors"

// Codec errors. Every decode failure wraps ErrMalformed so callers can
// treat a bad peer message uniformly.
var (
	// ErrMalformed indicates a truncated, unterminated or semantically invalid buffer
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownField indicates a tag that the message schema does not declare
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownVariant indicates an out-of-range oneof index or an unregistered any type
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrInvalidSchema indicates a schema definition error (duplicate or non-positive tag)
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrNegative indicates a negative value given to an unsigned field
	ErrNegative = errors.New("negative value for unsigned field")
)
