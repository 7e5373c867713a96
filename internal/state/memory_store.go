package state

import (
	"maps"
	"sync"

	"github.com/enclave-labs/agentscript/internal/config"
	"github.com/enclave-labs/agentscript/internal/util"
)

// MemoryStore implements the Store interface using a Go map protected by a
// sync.RWMutex. Reads return deep copies by default, so one run mutating an
// ambient object can never leak that mutation into the store or into a
// sibling run.
type MemoryStore struct {
	data map[string]interface{}
	mode config.GlobalsAccessMode
	mu   sync.RWMutex
}

// NewMemoryStore creates a new, empty MemoryStore using deep-copy access.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithPolicy(config.GlobalsPolicy{})
}

// NewMemoryStoreWithPolicy creates a MemoryStore honoring the given globals
// policy. An unset access mode defaults to deep copy.
func NewMemoryStoreWithPolicy(policy config.GlobalsPolicy) *MemoryStore {
	mode := policy.AccessMode
	if mode == "" {
		mode = config.GlobalsAccessDeepCopy
	}
	return &MemoryStore{
		data: make(map[string]interface{}),
		mode: mode,
	}
}

// Get retrieves the value bound to the given name, deep-copied under the
// default access mode.
func (s *MemoryStore) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, exists := s.data[name]
	if !exists {
		return nil, false
	}
	if s.mode == config.GlobalsAccessUnsafeDirectReference {
		return val, true
	}
	return util.DeepCopy(val), true
}

// Snapshot returns the globals map for one run. Under deep-copy access every
// value is copied; under direct-reference access only the top-level map is
// cloned.
func (s *MemoryStore) Snapshot() map[string]interface{} {
	s.mu.RLock()
	flat := maps.Clone(s.data)
	s.mu.RUnlock()
	if flat == nil {
		return make(map[string]interface{})
	}
	if s.mode == config.GlobalsAccessUnsafeDirectReference {
		return flat
	}

	// Copy outside the lock; snapshots can be large.
	snapshot := make(map[string]interface{}, len(flat))
	for name, value := range flat {
		snapshot[name] = util.DeepCopy(value)
	}
	return snapshot
}

// Set binds a value to a global name. The reference is stored as-is and
// copied on read.
func (s *MemoryStore) Set(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = value
	return nil
}

// Delete removes the named global, returning ErrKeyNotFound if absent.
func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[name]; !exists {
		return ErrKeyNotFound
	}
	delete(s.data, name)
	return nil
}

// Load replaces the entire globals map with a shallow copy of data.
func (s *MemoryStore) Load(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = maps.Clone(data)
	if s.data == nil {
		s.data = make(map[string]interface{})
	}
	return nil
}

// Close is a no-op for the MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
