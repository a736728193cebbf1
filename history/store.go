// Package history persists per-attempt execution records so an external
// orchestrator can audit what the dispatcher did for each request.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/quillworks/relay"
)

// AttemptRecord is one (request id, attempt number, result) event.
type AttemptRecord struct {
	RequestID string
	Provider  relay.Provider
	Attempt   int
	Result    relay.ExecutionResult
	At        time.Time
}

// Store abstracts persistence for in-memory (tests, ephemeral runs) and
// SQLite (CLI) modes.
type Store interface {
	Append(ctx context.Context, rec AttemptRecord) error
	ListByRequest(ctx context.Context, requestID string) ([]AttemptRecord, error)
	Close() error
}

// MemoryStore keeps attempt records in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []AttemptRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append adds a record.
func (s *MemoryStore) Append(ctx context.Context, rec AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// ListByRequest returns the records for one request in append order.
func (s *MemoryStore) ListByRequest(ctx context.Context, requestID string) ([]AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AttemptRecord
	for _, rec := range s.records {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
