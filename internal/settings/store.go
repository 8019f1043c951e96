// Package settings defines the contract with the user preference store.
// The orchestration core reads a snapshot on demand and treats store
// failures as "use defaults".
package settings

import (
	"context"
	"sync"
)

// Snapshot is a read-only view of the user preferences the core consumes.
type Snapshot struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	BackendURL     string `json:"backend_url"`
}

// Store provides preference snapshots.
type Store interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Update(ctx context.Context, snapshot Snapshot) error
}

// MemoryStore is an in-process Store. Settings may change mid-session; the
// core re-reads the snapshot per chunk.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot Snapshot
	err      error
}

// NewMemoryStore creates a store seeded with the given snapshot.
func NewMemoryStore(initial Snapshot) *MemoryStore {
	return &MemoryStore{snapshot: initial}
}

// Snapshot returns the current preferences.
func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return Snapshot{}, s.err
	}

	return s.snapshot, nil
}

// Update replaces the current preferences.
func (s *MemoryStore) Update(ctx context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.snapshot = snapshot
	return nil
}

// SetError forces subsequent calls to fail, for exercising the
// fall-back-to-defaults path in tests.
func (s *MemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
