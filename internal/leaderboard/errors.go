package leaderboard

import (
	"errors"
	"fmt"
)

var (
	// ErrDecodeData reports a stored member-data blob that could not be decoded.
	ErrDecodeData = errors.New("decode member data")
	// ErrEncodeData reports member data that could not be serialized.
	ErrEncodeData    = errors.New("encode member data")
	ErrInvalidSortBy = errors.New("invalid sort order")
)

// OpError ties a failure to the operation and board that produced it.
type OpError struct {
	Op    string
	Board string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("leaderboard %s: %s: %v", e.Board, e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
