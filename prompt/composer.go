// Package prompt implements the prompt composer (component F): it turns
// a role's system prompt, a mode-specific suffix, a working-memory
// snapshot, and the tool registry's descriptors into a provider-facing
// ChatRequest.
package prompt

import (
	"github.com/loomwork/agentcore/llms"
	"github.com/loomwork/agentcore/memory"
	"github.com/loomwork/agentcore/mode"
	"github.com/loomwork/agentcore/tools"
)

// planSuffix and buildSuffix are appended to the role's system prompt so
// the model is explicitly told which capabilities are live this turn,
// independent of what the permission engine would refuse.
const (
	planSuffix  = "\n\nYou are currently in Plan mode: tools that write, edit, run commands, or otherwise change state are unavailable. Investigate and propose a plan."
	buildSuffix = "\n\nYou are currently in Build mode: you may read, write, and execute as needed to complete the task."
)

// SamplingParams are the role/task-derived generation parameters.
type SamplingParams struct {
	Temperature float64
	MaxTokens   int
}

// Compose builds a ChatRequest from the current role, mode, working
// memory snapshot, and tool registry. toolCapable gates whether the
// tools array is populated; per §4.6 this is mandatory whenever the
// chosen model supports tools — never omitted, never nil.
func Compose(role mode.Role, currentMode mode.Mode, snapshot []memory.Item, registry *tools.Registry, toolCapable bool, sampling SamplingParams) llms.ChatRequest {
	systemPrompt := role.SystemPrompt
	switch currentMode {
	case mode.Plan:
		systemPrompt += planSuffix
	case mode.Build:
		systemPrompt += buildSuffix
	}

	messages := make([]llms.Message, 0, len(snapshot)+1)
	messages = append(messages, llms.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, renderSnapshot(snapshot)...)

	req := llms.ChatRequest{
		Messages:    messages,
		Temperature: sampling.Temperature,
		MaxTokens:   sampling.MaxTokens,
	}

	if toolCapable {
		req.Tools = toolDefinitions(registry)
	}

	return req
}

// renderSnapshot maps working-memory item kinds onto the provider's
// system/user/assistant vocabulary. Tool results are rendered as user
// messages since the generic ChatRequest shape has no separate tool-role
// slot; a provider adapter that supports a native tool-result
// representation remaps this itself before sending the wire request.
func renderSnapshot(snapshot []memory.Item) []llms.Message {
	out := make([]llms.Message, 0, len(snapshot))
	for _, item := range snapshot {
		switch item.Kind {
		case memory.KindSystemPrompt:
			continue // already the single system message above
		case memory.KindUserMsg, memory.KindTaskState:
			out = append(out, llms.Message{Role: "user", Content: item.Content})
		case memory.KindAssistantMsg:
			out = append(out, llms.Message{Role: "assistant", Content: item.Content})
		case memory.KindToolResult, memory.KindCodeSnippet, memory.KindKGQueryResult:
			out = append(out, llms.Message{Role: "user", Content: item.Content})
		}
	}
	return out
}

// toolDefinitions always returns a non-nil slice, even when the registry
// is empty, to satisfy §4.6's "never pass None" mandate at the call
// site; an empty-but-non-nil array is still a deliberate, inspectable
// value rather than an absent field.
func toolDefinitions(registry *tools.Registry) []llms.ToolDefinition {
	descriptors := registry.List()
	defs := make([]llms.ToolDefinition, 0, len(descriptors))
	for _, d := range descriptors {
		defs = append(defs, llms.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema,
		})
	}
	return defs
}
