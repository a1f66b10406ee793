package http

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// eventSchema constrains the strict JSON ingestion path. The beacon and
// query paths stay lenient; this schema applies only to POST /events.
const eventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_name"],
  "properties": {
    "event_name": {"type": "string", "minLength": 1},
    "shop": {"type": "string", "minLength": 1},
    "pixelId": {"type": "string"},
    "custom_data": {"type": "object"},
    "timestamp": {"type": ["number", "string"]},
    "email": {"type": "string"},
    "phone": {"type": "string"},
    "value": {"type": ["number", "string"]},
    "currency": {"type": "string"},
    "content_ids": {"type": "array", "items": {"type": "string"}},
    "num_items": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": true
}`

// compileEventSchema compiles the embedded event schema once at startup.
func compileEventSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(eventSchema))
	if err != nil {
		return nil, fmt.Errorf("parse event schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("events.json", doc); err != nil {
		return nil, fmt.Errorf("add event schema: %w", err)
	}
	sch, err := c.Compile("events.json")
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return sch, nil
}
