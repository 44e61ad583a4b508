package taxonomy

import "errors"

var (
	// ErrSourceUnavailable indicates a tier could not be reached or parsed.
	ErrSourceUnavailable = errors.New("taxonomy source unavailable")

	// ErrMalformedRecord indicates a record lacks a label or identifier.
	ErrMalformedRecord = errors.New("malformed taxonomy record")

	// ErrIntegrity indicates a tier returned implausibly few records.
	ErrIntegrity = errors.New("taxonomy snapshot failed integrity check")

	// ErrInvalidAlias indicates an empty alias or canonical label.
	ErrInvalidAlias = errors.New("invalid alias")
)
