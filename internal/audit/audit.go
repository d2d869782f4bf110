// Package audit provides the append-only decision log consumed by the
// admission and wave engines. Sinks are write-only; failures must not
// impact the request that produced the entry.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Entry records one admission, promotion or removal decision.
type Entry struct {
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Target    string            `json:"target"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sink accepts audit entries.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// MemorySink keeps the most recent entries in a bounded ring. It backs
// the read-only audit endpoint and the tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewMemorySink creates a sink retaining up to max entries.
func NewMemorySink(max int) *MemorySink {
	if max <= 0 {
		max = 200
	}
	return &MemorySink{max: max}
}

func (s *MemorySink) Append(_ context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	return nil
}

// List returns up to limit of the most recent entries.
func (s *MemorySink) List(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, limit)
	copy(out, s.entries[len(s.entries)-limit:])
	return out
}

// FileSink appends entries as JSONL.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if needed) the JSONL audit file. An
// empty path yields a nil sink, which callers treat as disabled.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Append(_ context.Context, entry Entry) error {
	if s == nil || s.file == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// MultiSink fans entries out to several sinks, keeping the first error.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, entry Entry) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Append(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
