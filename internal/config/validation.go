package config

import (
	"fmt"
	"regexp"

	"github.com/enclave-labs/agentscript/internal/transform"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
)

// Pre-compiled regex for validating custom global names.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$]*$`)

// ValidateProfileStructure performs logical validation of a parsed Profile.
// It checks rules that cannot be fully expressed in JSON Schema alone and
// returns a slice of all validation errors found.
func ValidateProfileStructure(p *Profile) []error {
	var errs []error

	if p.Level == "" {
		errs = append(errs, enclaveerrors.NewConfigError("profile must set 'level'", nil))
	} else if _, err := PresetFor(p.Level); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for _, name := range p.CustomGlobals {
		if !identifierRegex.MatchString(name) {
			errs = append(errs, enclaveerrors.NewConfigError(fmt.Sprintf("custom global '%s' is not a valid identifier", name), nil))
			continue
		}
		if transform.HasReservedPrefix(name) {
			errs = append(errs, enclaveerrors.NewConfigError(fmt.Sprintf("custom global '%s' uses a reserved prefix", name), nil))
			continue
		}
		if seen[name] {
			errs = append(errs, enclaveerrors.NewConfigError(fmt.Sprintf("custom global '%s' is listed more than once", name), nil))
		}
		seen[name] = true
	}

	return errs
}
