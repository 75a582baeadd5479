package worker

import (
	"github.com/okian/ladder/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithResultHook registers a callback invoked after every apply attempt.
func WithResultHook(fn func(e Event, changed bool, err error)) Option {
	return func(w *InMemoryWorker) {
		w.onApplied = fn
	}
}
