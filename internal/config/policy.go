package config

// GlobalsAccessMode defines the available methods for exposing host globals
// to a run. It is a typed string to enforce valid values.
type GlobalsAccessMode string

const (
	// GlobalsAccessDeepCopy (default) hands each run a deep copy of the
	// globals map, so a script mutating an ambient object cannot affect
	// later runs or sibling tenants.
	GlobalsAccessDeepCopy GlobalsAccessMode = "deep_copy"

	// GlobalsAccessUnsafeDirectReference exposes the host's maps and
	// slices directly. Highest performance, but a script can mutate shared
	// data. Only for trusted single-run hosts.
	GlobalsAccessUnsafeDirectReference GlobalsAccessMode = "unsafe_direct_reference"
)

// GlobalsPolicy defines how runs interact with the enclave's globals store.
type GlobalsPolicy struct {
	// AccessMode controls the method used when snapshotting globals for a
	// run. If unset, it defaults to "deep_copy" for maximum safety.
	AccessMode GlobalsAccessMode `yaml:"access_mode,omitempty" json:"access_mode,omitempty"`
}
