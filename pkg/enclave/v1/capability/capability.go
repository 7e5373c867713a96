package capability

import "context"

// Handler defines the public interface the host implements to service
// capability calls crossing the sandbox boundary. It is the single seam
// through which governed scripts can affect the outside world.
//
// The name is the capability the script invoked, and args is the validated
// plain-object argument map. Handlers MUST respect context cancellation:
// when a run's deadline elapses mid-call, the enclave abandons the result.
//
// Returns the value handed back to the script, or an error that aborts the
// run as a runtime fault.
type Handler interface {
	Invoke(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)

func (f HandlerFunc) Invoke(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	return f(ctx, name, args)
}

// Registry defines the public interface for a named-capability dispatcher.
// It routes invocations to per-capability handlers, falling back to a
// default handler when one is set.
type Registry interface {
	// Get retrieves the handler for a given capability name. It returns a
	// NotFoundError when the name is not registered and no default exists.
	Get(name string) (Handler, error)

	// Register associates a capability name with its handler. It must be
	// concurrency-safe and returns an error if the name is empty, the
	// handler is nil, or the name is already registered.
	Register(name string, h Handler) error

	// List returns the names of all registered capabilities. Order is not
	// guaranteed.
	List() []string
}
