package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedSchemaVersionConstraint defines the SemVer constraint that loaded
// profiles must satisfy. A v1 enclave only accepts v1 profiles.
const SupportedSchemaVersionConstraint = "v1"

// LoadProfile reads the given YAML bytes, validates them against the embedded
// JSON schema, unmarshals into a Profile with strict decoding, checks schema
// version compatibility, and performs logical validation.
func LoadProfile(profileYAML []byte, filePathHint string) (*Profile, error) {
	if len(profileYAML) == 0 {
		return nil, enclaveerrors.NewConfigError("profile content cannot be empty", nil)
	}

	if err := ValidateWithSchema(profileYAML); err != nil {
		return nil, enclaveerrors.NewConfigError(fmt.Sprintf("profile '%s' failed schema validation", filePathHint), err)
	}

	var profile Profile
	if err := yamlUnmarshalStrict(profileYAML, &profile); err != nil {
		return nil, enclaveerrors.NewConfigError(fmt.Sprintf("failed to parse profile YAML '%s'", filePathHint), err)
	}
	profile.FilePath = filePathHint

	if profile.SchemaVersion == "" {
		return nil, enclaveerrors.NewConfigError(fmt.Sprintf("profile '%s' is missing required 'schemaVersion' field", filePathHint), nil)
	}
	profileSemVer := profile.SchemaVersion
	if !strings.HasPrefix(profileSemVer, "v") {
		profileSemVer = "v" + profileSemVer
	}
	if !semver.IsValid(profileSemVer) {
		return nil, enclaveerrors.NewConfigError(fmt.Sprintf("profile '%s' has invalid 'schemaVersion' format: '%s'", filePathHint, profile.SchemaVersion), nil)
	}
	if semver.Major(profileSemVer) != SupportedSchemaVersionConstraint {
		return nil, enclaveerrors.NewConfigError(
			fmt.Sprintf("profile '%s' schemaVersion '%s' is not compatible with enclave requirement '%s'",
				filePathHint, profile.SchemaVersion, SupportedSchemaVersionConstraint),
			nil,
		)
	}

	validationErrs := ValidateProfileStructure(&profile)
	if len(validationErrs) > 0 {
		var errorMessages []string
		for _, vErr := range validationErrs {
			errorMessages = append(errorMessages, vErr.Error())
		}
		combinedMessage := fmt.Sprintf("profile '%s' has %d validation error(s):\n- %s",
			filePathHint, len(errorMessages), strings.Join(errorMessages, "\n- "))
		return nil, enclaveerrors.NewConfigError(combinedMessage, validationErrs[0])
	}

	return &profile, nil
}

// LoadProfileFromFile is a convenience function to read a profile from disk.
func LoadProfileFromFile(filePath string) (*Profile, error) {
	if filePath == "" {
		return nil, enclaveerrors.NewConfigError("profile file path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, enclaveerrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", filePath), err)
	}
	yamlFile, err := os.ReadFile(absPath)
	if err != nil {
		return nil, enclaveerrors.NewConfigError(fmt.Sprintf("failed to read profile file '%s'", absPath), err)
	}
	return LoadProfile(yamlFile, absPath)
}

// yamlUnmarshalStrict provides stricter YAML unmarshalling by disallowing
// unknown fields, catching typos in profiles early.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(strings.NewReader(string(in)))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}
