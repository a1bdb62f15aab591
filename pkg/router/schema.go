package router

import (
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// TelemetrySchema describes a partial battery reading. Unknown properties
// are allowed so newer peers can add fields.
const TelemetrySchema = `{
	"type": "object",
	"properties": {
		"buds": {
			"type": ["object", "null"],
			"properties": {
				"leftBattery": {"$ref": "#/$defs/percent"},
				"rightBattery": {"$ref": "#/$defs/percent"},
				"leftState": {"$ref": "#/$defs/code"},
				"rightState": {"$ref": "#/$defs/code"}
			}
		},
		"headset": {"$ref": "#/$defs/peripheral"},
		"mouse": {"$ref": "#/$defs/peripheral"}
	},
	"$defs": {
		"percent": {"type": ["number", "null"]},
		"code": {"type": ["integer", "null"]},
		"peripheral": {
			"type": ["object", "null"],
			"properties": {
				"batteryLevel": {"$ref": "#/$defs/percent"},
				"extraBatteryLevel": {"$ref": "#/$defs/percent"},
				"status": {"$ref": "#/$defs/code"}
			}
		}
	}
}`

// Validator checks payloads against a compiled JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schemaDoc.
func NewValidator(schemaDoc string) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaDoc))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal schema")
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to add schema resource")
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to compile schema")
	}
	return &Validator{schema: compiled}, nil
}

// NewTelemetryValidator compiles TelemetrySchema.
func NewTelemetryValidator() (*Validator, error) {
	return NewValidator(TelemetrySchema)
}

// Validate parses payload as JSON and validates it.
func (v *Validator) Validate(payload string) error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(err, "invalid json")
	}
	return v.schema.Validate(inst)
}
