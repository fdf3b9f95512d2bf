package state

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// stateSchema describes the persisted snapshot. Unknown properties are
// allowed so files written by newer minor releases stay readable.
const stateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "records"],
  "properties": {
    "schema_version": {"type": "integer", "minimum": 1},
    "records": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/record"}
    }
  },
  "$defs": {
    "record": {
      "type": "object",
      "required": ["id", "raw", "content_hash", "status", "first_seen_at", "updated_at"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "raw": {
          "type": "object",
          "required": ["id"],
          "properties": {"id": {"type": "string"}}
        },
        "folder_id": {"type": "string"},
        "content_hash": {"type": "string"},
        "tags": {"type": ["array", "null"], "items": {"type": "string"}},
        "enrichment": {"type": ["object", "null"]},
        "status": {"enum": ["pending", "enriched", "failed", "skipped", "deleted"]},
        "attempts": {"type": "integer", "minimum": 0},
        "last_error": {"type": "string"},
        "first_seen_at": {"type": "string"},
        "updated_at": {"type": "string"}
      }
    }
  }
}`

const schemaURL = "marksync-state.schema.json"

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stateSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse state schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add state schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile state schema: %w", err)
	}
	return sch, nil
}

// validate checks raw file content against the state schema.
func validate(sch *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
