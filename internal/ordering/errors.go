package ordering

import "errors"

var (
	ErrItemNotFound    = errors.New("item not found in sequence")
	ErrItemExists      = errors.New("item already present in sequence")
	ErrInvalidTarget   = errors.New("invalid target")
	ErrInvalidConfig   = errors.New("invalid ordering config")
	ErrCorruptSequence = errors.New("corrupt sequence")

	// ErrRebalanceRequired is reported by Placement.Err. The resolve methods
	// handle it themselves and never return it.
	ErrRebalanceRequired = errors.New("rebalance required")
)
