package capability

import (
	"fmt"
	"sync"

	"github.com/enclave-labs/agentscript/pkg/enclave/v1/capability"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
)

// StaticRegistry implements the capability.Registry interface using an
// in-memory map. It provides thread-safe registration and retrieval of
// handlers, plus an optional default handler that services any name without
// a dedicated one. This is the registry the enclave uses when a host passes
// a single catch-all Handler instead of a Registry.
type StaticRegistry struct {
	handlers map[string]capability.Handler
	fallback capability.Handler
	mu       sync.RWMutex
}

// NewStaticRegistry creates a new, empty static registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		handlers: make(map[string]capability.Handler),
	}
}

// NewStaticRegistryWithFallback creates a registry whose Get never fails:
// unknown names route to the given handler.
func NewStaticRegistryWithFallback(fallback capability.Handler) *StaticRegistry {
	r := NewStaticRegistry()
	r.fallback = fallback
	return r
}

// Register associates a capability name with its handler. It enforces that
// names and handlers are valid and prevents duplicate registrations.
func (r *StaticRegistry) Register(name string, h capability.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return enclaveerrors.NewConfigError("capability registration error: name cannot be empty", nil)
	}
	if h == nil {
		return enclaveerrors.NewConfigError(fmt.Sprintf("capability registration error for '%s': handler cannot be nil", name), nil)
	}
	if _, exists := r.handlers[name]; exists {
		return enclaveerrors.NewConfigError(fmt.Sprintf("capability registration error: duplicate capability name '%s'", name), nil)
	}

	r.handlers[name] = h
	return nil
}

// Get retrieves the handler for a given capability name, falling back to the
// default handler when one is set. If neither exists it returns a
// CapabilityNotFoundError.
func (r *StaticRegistry) Get(name string) (capability.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[name]
	if !exists {
		if r.fallback != nil {
			return r.fallback, nil
		}
		return nil, enclaveerrors.NewCapabilityNotFoundError(name)
	}
	return h, nil
}

// List returns the names of all registered capabilities. The order is not
// guaranteed. The fallback handler, having no name, is not listed.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

var _ capability.Registry = (*StaticRegistry)(nil)
