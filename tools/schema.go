package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a Go struct's json/jsonschema tags into the
// map[string]any shape providers expect for tool parameter schemas.
//
// Supported tags:
//   - json:"name"                       parameter name
//   - json:",omitempty"                 optional parameter
//   - jsonschema:"required"             explicitly mark as required
//   - jsonschema:"description=..."      parameter description
//   - jsonschema:"default=..."          default value
//   - jsonschema:"enum=a|b"             allowed values
func SchemaFor[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: failed to marshal schema: %v", err))
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("tools: failed to decode schema: %v", err))
	}

	if m["type"] == "object" {
		out := map[string]any{
			"type":       "object",
			"properties": m["properties"],
		}
		if req, ok := m["required"]; ok {
			out["required"] = req
		}
		return out
	}
	return m
}

// validateParams checks params against the descriptor's required-field
// list. It is deliberately shallow (presence only, not type checking) —
// deep validation is the tool's own job inside Execute, which returns a
// domain error that dispatch still reports as InvalidParameters-shaped
// when the tool recognizes it as such.
func validateParams(d Descriptor, params map[string]any) error {
	required, _ := d.Schema["required"].([]any)
	for _, r := range required {
		name, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := params[name]; !present {
			return &Error{Kind: KindInvalidParameters, Tool: d.Name, Msg: fmt.Sprintf("missing required parameter %q", name)}
		}
	}
	return nil
}
