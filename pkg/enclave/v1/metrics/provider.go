package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryProvider defines the interface for accessing the enclave's metrics
// registry. Consumers expose the registry via their chosen method, typically
// a Prometheus HTTP endpoint.
type RegistryProvider interface {
	// Registry returns the Prometheus registry containing enclave metrics.
	Registry() *prometheus.Registry
}
