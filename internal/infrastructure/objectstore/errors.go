package objectstore

import "errors"

var (
	// ErrDisabled indicates cover storage is disabled in configuration.
	ErrDisabled = errors.New("objectstore: disabled in configuration")

	// ErrInvalidKey indicates an object key that is empty, absolute or traversing.
	ErrInvalidKey = errors.New("objectstore: invalid object key")

	// ErrUnsupportedType indicates a cover content type that is not accepted.
	ErrUnsupportedType = errors.New("objectstore: unsupported content type")
)
