package casedoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadSchema describes the JSON accepted by BuildJSON. Scalars that the
// authoring form may send as numbers accept either type.
const payloadSchema = `{
  "type": "object",
  "required": ["title", "rubric_id"],
  "additionalProperties": false,
  "$defs": {
    "scalar": {"type": ["string", "number", "boolean", "null"]},
    "strings": {"type": "array", "items": {"type": "string"}},
    "dict": {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "properties": {
    "id": {"type": "string"},
    "title": {"type": "string"},
    "specialty": {"type": "string"},
    "difficulty": {"type": "string"},
    "version": {"type": "string"},
    "rubric_id": {"type": "string"},
    "objectives": {"$ref": "#/$defs/strings"},
    "patient": {
      "type": "object",
      "properties": {
        "demographics": {
          "type": "object",
          "properties": {
            "age": {"$ref": "#/$defs/scalar"},
            "sex": {"$ref": "#/$defs/scalar"},
            "name": {"$ref": "#/$defs/scalar"}
          }
        },
        "personality": {"type": "string"},
        "baseline_vitals": {
          "type": "object",
          "properties": {
            "temp_c": {"$ref": "#/$defs/scalar"},
            "hr": {"$ref": "#/$defs/scalar"},
            "rr": {"$ref": "#/$defs/scalar"},
            "bp": {"$ref": "#/$defs/scalar"}
          }
        },
        "core_story": {
          "type": "object",
          "properties": {
            "chief_complaint": {"type": "string"},
            "hpi_summary": {"type": "string"}
          }
        }
      }
    },
    "qa_reveals": {"$ref": "#/$defs/dict"},
    "orders": {
      "type": "object",
      "properties": {
        "allowed": {"$ref": "#/$defs/strings"},
        "results": {"$ref": "#/$defs/dict"}
      }
    },
    "expected": {
      "type": "object",
      "properties": {
        "key_findings": {"$ref": "#/$defs/strings"},
        "differentials": {
          "type": "object",
          "properties": {
            "should_include": {"$ref": "#/$defs/strings"},
            "reasonable_alternatives": {"$ref": "#/$defs/strings"}
          }
        },
        "final_dx": {"type": "string"},
        "initial_plan_high_level": {"$ref": "#/$defs/strings"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func payloadJSONSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		def, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(payloadSchema)))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("medisim://case-payload.json", def); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("medisim://case-payload.json")
	})
	return compiledSchema, schemaErr
}

// BuildJSON validates a JSON payload against the authoring schema, then
// builds it like Build.
func BuildJSON(data []byte) ([]byte, error) {
	schema, err := payloadJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return Build(p)
}
