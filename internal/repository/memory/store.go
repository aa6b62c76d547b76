// Package memory provides an in-process VersionedStore used in development
// and tests.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/repository"
)

// Store keeps the document in memory with a monotonically increasing version.
type Store struct {
	mu      sync.Mutex
	payload []byte
	version uint64
	exists  bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Seed installs an initial payload, bypassing version checks. Test helper.
func (s *Store) Seed(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	s.version++
	s.exists = true
}

// Get returns the current payload and version token.
func (s *Store) Get(_ context.Context) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return nil, "", repository.ErrNotFound
	}
	return append([]byte(nil), s.payload...), strconv.FormatUint(s.version, 10), nil
}

// Put writes the payload when expectedVersion matches the stored version.
// An empty expectedVersion is only valid for the initial create.
func (s *Store) Put(_ context.Context, payload []byte, expectedVersion string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := ""
	if s.exists {
		current = strconv.FormatUint(s.version, 10)
	}
	if expectedVersion != current {
		return "", repository.ErrVersionConflict
	}

	s.payload = append([]byte(nil), payload...)
	s.version++
	s.exists = true
	return strconv.FormatUint(s.version, 10), nil
}
