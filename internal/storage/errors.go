package storage

import "errors"

// Common storage errors
var (
	// ErrRowNotFound indicates that the row was never stored
	ErrRowNotFound = errors.New("row not found")

	// ErrMetadataNotFound indicates that the metadata key is absent
	ErrMetadataNotFound = errors.New("metadata not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrUnsupportedBackend indicates an unknown storage backend name
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
)
