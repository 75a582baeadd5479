package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid ladder config")
	// ErrLoadConfig wraps failures reading the config file or environment.
	ErrLoadConfig = errors.New("loading ladder config")
)
