package store

import "errors"

var (
	// ErrStaleSequence means the container changed since it was read.
	ErrStaleSequence = errors.New("sequence changed since it was read")
	// ErrStoreWriteFailed wraps every other failure of an order write. Nothing
	// from the write was applied.
	ErrStoreWriteFailed  = errors.New("store write failed")
	ErrDuplicatePosition = errors.New("duplicate position in container")
	ErrUnknownKind       = errors.New("unknown container kind")
)
