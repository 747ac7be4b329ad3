// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package config

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://holomush.dev/schemas/lobby-config.schema.json"

var compiled = sync.OnceValues(compileSchema)

// Schema generates the JSON Schema for the YAML config file.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		FieldNameTag:   "yaml",
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Lobby configuration"
	schema.Description = "Schema for the lobby config.yaml file"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateFile checks a config file against the schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return oops.Code("CONFIG_FILE_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateDocument(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}

// ValidateDocument checks YAML config data against the schema. An empty
// document is valid.
func ValidateDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("reason", "invalid YAML").Wrap(err)
	}
	if doc == nil {
		return nil
	}

	sch, err := compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("reason", "schema validation failed").Wrap(err)
	}
	return nil
}

func compileSchema() (*jschema.Schema, error) {
	data, err := Schema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", doc); err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return sch, nil
}

// toJSONTypes converts YAML-decoded values to the types the validator
// accepts. Values YAML decodes specially, such as timestamps, go through a
// JSON round trip.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONTypes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONTypes(item)
		}
		return out
	case nil, string, bool, int, int64, uint64, float64:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}
