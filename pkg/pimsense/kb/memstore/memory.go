// Package memstore is an in-memory kb.Store used in tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cognicore/pimsense/pkg/pimsense/internalerr"
	"github.com/cognicore/pimsense/pkg/pimsense/kb"
)

// Store is an in-memory implementation of kb.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*kb.Entry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*kb.Entry)}
}

// Close implements kb.Store.
func (s *Store) Close() error { return nil }

// Load returns a deep copy of all entries.
func (s *Store) Load(ctx context.Context) (map[string]*kb.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*kb.Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = copyEntry(e)
	}
	return out, nil
}

// Upsert stores a copy of e.
func (s *Store) Upsert(ctx context.Context, e *kb.Entry) error {
	if e.CategoryKey == "" {
		return internalerr.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.CategoryKey] = copyEntry(e)
	return nil
}

// ClearReview clears the needs-review flag for one category.
func (s *Store) ClearReview(ctx context.Context, categoryKey, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[categoryKey]
	if !ok {
		return fmt.Errorf("clear review %s: %w", categoryKey, internalerr.ErrNotFound)
	}
	e.NeedsReview = false
	e.History = append(e.History, kb.Event{
		RunID:  runID,
		At:     time.Now().UTC(),
		Action: kb.ActionReviewCleared,
	})
	return nil
}

func copyEntry(e *kb.Entry) *kb.Entry {
	cp := *e
	cp.History = append([]kb.Event(nil), e.History...)
	return &cp
}
