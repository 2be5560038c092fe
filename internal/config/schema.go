package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// settingsKeys lists the recognized settings file keys.
var settingsKeys = map[string]struct{}{
	"enabledTools":   {},
	"truncateChars":  {},
	"estimator":      {},
	"snapshotDriver": {},
	"profile":        {},
}

var (
	schemaOnce     sync.Once
	schemaJSON     []byte
	schemaCompiled *jsvalidate.Schema
	schemaErr      error
)

// SettingsSchema returns the generated JSON Schema for the settings
// file, suitable for editor integration.
func SettingsSchema() ([]byte, error) {
	buildSchema()
	return schemaJSON, schemaErr
}

func buildSchema() {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:               "yaml",
			AllowAdditionalProperties:  true,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
		}
		schema := r.Reflect(&Settings{})
		schemaJSON, schemaErr = json.MarshalIndent(schema, "", "  ")
		if schemaErr != nil {
			return
		}
		schemaCompiled, schemaErr = jsvalidate.CompileString("settings.json", string(schemaJSON))
	})
}

// validateSettings checks the raw document against the generated
// schema. Unknown keys are stripped before this runs, so failures mean
// a known key has the wrong shape.
func validateSettings(raw map[string]any) error {
	buildSchema()
	if schemaErr != nil {
		return schemaErr
	}

	// Normalize through JSON so the validator sees canonical types.
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := schemaCompiled.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
