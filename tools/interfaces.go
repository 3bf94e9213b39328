// Package tools implements the tool registry and dispatcher: lookup,
// parameter validation, and execution of the side-effecting capabilities
// (file I/O, code search, shell) that the turn loop may invoke on a model's
// behalf.
package tools

import (
	"context"
	"fmt"
)

// Kind classifies the failure mode of a dispatch, mirroring the taxonomy
// the rest of the runtime uses to decide whether an error is surfaced to
// the model (so it can self-correct) or escalated to the user.
type Kind string

const (
	// KindInvalidParameters is returned when a ToolCall's parameters fail
	// schema validation.
	KindInvalidParameters Kind = "InvalidParameters"
	// KindNotFound is returned when a ToolCall names an unregistered tool.
	KindNotFound Kind = "NotFound"
)

// Error is the structured error a dispatch failure produces. It is never
// allowed to propagate as a panic; Registry.Invoke always converts it into
// a Result so the model can see and react to it.
type Error struct {
	Kind Kind
	Tool string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Tool, e.Msg)
}

// Descriptor is what the registry exposes to the prompt composer: enough
// to build a provider-facing tool definition without reaching into the
// implementation.
type Descriptor struct {
	Name        string
	Description string
	// Schema is a JSON-schema-shaped map (invopop/jsonschema output),
	// suitable for direct inclusion in a provider's tool definitions.
	Schema map[string]any
	// Mutating tools write, edit, delete, or execute shell commands; the
	// mode/permission engine and approval queue gate these before dispatch.
	Mutating bool
}

// Call is a single structured tool invocation extracted from model output.
type Call struct {
	ID     string
	Name   string
	Params map[string]any
}

// Result is what a tool execution (or a permission/validation refusal)
// produces. Content is the human/model-readable rendering; Err, when set,
// carries the structured Kind so callers can branch on it.
type Result struct {
	Success bool
	Content string
	Err     error
	Usage   *Usage
}

// Usage captures resource metrics the registry records about a tool's
// execution (its wall-clock duration); distinct from LLM token usage.
type Usage struct {
	DurationMillis int64
}

// Tool is the capability contract every tool implementation satisfies:
// name, description, schema, and an async execute. Implementations must
// never panic; internal failures are returned as an error value which
// Registry.Invoke folds into a Result.
type Tool interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, params map[string]any) (string, error)
}
