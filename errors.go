package kennisgraaf

import "errors"

var (
	// ErrInvalidInput is returned for malformed text or configuration,
	// such as document content that is not valid UTF-8.
	ErrInvalidInput = errors.New("kennisgraaf: invalid input")

	// ErrNotFound is returned when a query references an unknown
	// document, node, or signature id.
	ErrNotFound = errors.New("kennisgraaf: not found")

	// ErrInvariantViolation signals internal graph corruption. It is
	// always a bug: callers never receive it for ordinary empty results.
	ErrInvariantViolation = errors.New("kennisgraaf: invariant violation")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("kennisgraaf: unsupported document format")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("kennisgraaf: invalid configuration")
)
