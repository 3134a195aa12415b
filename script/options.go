package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Options is a storage driver's configuration, a flat set of named
// key/value options (spec.md §6 "Storage configuration is a set of named
// key/value options"), validated against the driver's own JSON Schema
// before use.
type Options map[string]string

// ValidateOptions compiles schemaDoc (a JSON Schema Draft 2020-12
// document, spec.md §6) and checks opts against it, following the
// compile-then-validate shape used throughout this module's driver
// packages.
func ValidateOptions(schemaDoc map[string]any, opts Options) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	schemaJSON, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("script: marshalling option schema: %w", err)
	}
	url := "schema://options.json"
	if err := compiler.AddResource(url, strings.NewReader(string(schemaJSON))); err != nil {
		return fmt.Errorf("script: adding option schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("script: compiling option schema: %w", err)
	}

	asAny := make(map[string]any, len(opts))
	for k, v := range opts {
		asAny[k] = v
	}
	if err := compiled.Validate(asAny); err != nil {
		return fmt.Errorf("script: invalid driver options: %w", err)
	}
	return nil
}
