package config

import (
	_ "embed"
	"fmt"
	"sync"

	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Embed the schema file content directly into the compiled binary.
//
//go:embed enclave_profile_schema_v1.0.0.json
var schemaV1Bytes []byte

var (
	schemaV1Loader gojsonschema.JSONLoader
	schemaV1       *gojsonschema.Schema
	schemaOnce     sync.Once
	schemaErr      error
)

// loadSchema compiles the embedded schema thread-safely, only once.
func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = enclaveerrors.NewConfigError("embedded schema 'enclave_profile_schema_v1.0.0.json' is empty or not found", nil)
			return
		}
		schemaV1Loader = gojsonschema.NewBytesLoader(schemaV1Bytes)
		schemaV1, schemaErr = gojsonschema.NewSchema(schemaV1Loader)
		if schemaErr != nil {
			schemaErr = enclaveerrors.NewConfigError("failed to compile embedded schema 'enclave_profile_schema_v1.0.0.json'", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// ValidateWithSchema validates the given YAML document bytes against the
// embedded profile schema, handling the YAML-to-JSON conversion the
// validator requires.
func ValidateWithSchema(documentYAML []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	var jsonData interface{}
	if err := yaml.Unmarshal(documentYAML, &jsonData); err != nil {
		return enclaveerrors.NewConfigError("failed to parse profile YAML for schema validation", err)
	}

	docLoader := gojsonschema.NewGoLoader(jsonData)
	result, err := schema.Validate(docLoader)
	if err != nil {
		return enclaveerrors.NewConfigError("schema validation process failed", err)
	}

	if !result.Valid() {
		errMsg := "profile failed JSON schema validation:"
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" || field == "" {
				field = desc.Context().String()
			}
			errMsg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
		}
		return enclaveerrors.NewConfigError(errMsg, nil)
	}

	return nil
}
