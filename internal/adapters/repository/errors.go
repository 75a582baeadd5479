package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrStore wraps every failure reported by a backend.
	ErrStore            = errors.New("store command failed")
	ErrInvalidScore     = errors.New("score is not a number")
	ErrInvalidAggregate = errors.New("invalid aggregate")
	ErrNoKeys           = errors.New("no source keys")
	ErrClosed           = errors.New("store closed")
)
