package audit

import (
	"context"
	"errors"
)

// TeeSink fans a record out to several sinks. Every sink sees every append;
// the first error is returned after all sinks have been attempted so one
// failing destination does not starve the others.
type TeeSink struct {
	sinks []Sink
}

// NewTeeSink wraps the given sinks. At least one is required.
func NewTeeSink(sinks ...Sink) (*TeeSink, error) {
	if len(sinks) == 0 {
		return nil, errors.New("tee sink requires at least one destination")
	}
	return &TeeSink{sinks: sinks}, nil
}

// Append forwards to every sink.
func (t *TeeSink) Append(ctx context.Context, rec Record) error {
	var firstErr error
	for _, s := range t.sinks {
		if err := s.Append(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink, returning the first error.
func (t *TeeSink) Close() error {
	var firstErr error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
