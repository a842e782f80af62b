package discovery

import "errors"

var (
	// ErrNoMiner indicates no probe produced a classifiable response
	// before the deadline.
	ErrNoMiner = errors.New("no miner found")

	// ErrUnsupported indicates a make/firmware combination without a
	// backend.
	ErrUnsupported = errors.New("unsupported miner")
)
