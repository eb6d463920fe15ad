package audit

import (
	"context"
	"sync"
)

// MemorySink keeps records in memory. It backs tests and the interactive
// shell's `history` command.
type MemorySink struct {
	mu      sync.Mutex
	seq     uint64
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores the record with the next sequence number.
func (s *MemorySink) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.Seq = s.seq
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of all appended records in order.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports the number of appended records.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }
