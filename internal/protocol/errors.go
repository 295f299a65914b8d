package protocol

import "errors"

var (
	// ErrFramingFault is the parent of every envelope violation. Workers close the
	// connection without acknowledgment when a read error matches it.
	ErrFramingFault = errors.New("protocol: framing fault")
	ErrInvalidInput = errors.New("protocol: invalid input")
)
