package state

import "errors"

// ErrKeyNotFound indicates that a requested global does not exist in the
// store.
var ErrKeyNotFound = errors.New("global not found in store")

// Reader defines the read-only interface for accessing the enclave's globals.
// Implementations must be thread-safe.
type Reader interface {
	// Get retrieves the value bound to the given global name. It returns
	// the value and true if the name exists, otherwise nil and false.
	Get(name string) (interface{}, bool)

	// Snapshot returns the full globals map as prepared for one run. With
	// deep-copy access the script can mutate the snapshot freely without
	// affecting the store or concurrent runs.
	Snapshot() map[string]interface{}
}

// Store defines the full interface for the enclave's globals storage,
// including the write operations used at construction time. Implementations
// must be thread-safe.
type Store interface {
	Reader

	// Set binds a value to a global name, overwriting any existing binding.
	Set(name string, value interface{}) error

	// Delete removes a global. It returns ErrKeyNotFound if the name is not
	// bound.
	Delete(name string) error

	// Load replaces the entire globals map, typically at enclave
	// construction.
	Load(data map[string]interface{}) error

	// Close releases any resources held by the store.
	Close() error
}
