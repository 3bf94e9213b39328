// Package toolcall implements the tool-call parser (component G): it
// turns a raw assistant response into clean text plus a list of
// structured ToolCalls. Most providers already return ToolCalls as
// structured data (JSON mode); this package also covers the fallback
// path for text-embedded tool calls some local/legacy models emit.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/loomwork/agentcore/llms"
	"github.com/loomwork/agentcore/tools"
)

// fencedCallPattern matches a fenced JSON tool-call block some models
// emit in free text instead of using the provider's native tool-calling
// protocol, e.g.:
//
//	```tool_call
//	{"name": "read_file", "arguments": {"path": "a.go"}}
//	```
var fencedCallPattern = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)\\n```")

// textCall is the shape a fenced tool-call block unmarshals into.
type textCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Parse splits a provider response into clean display text and a list of
// structured ToolCalls. When resp already carries structured ToolCalls
// (the common case for JSON-mode providers), those are returned
// unchanged and the text is used as-is. Otherwise resp.Text is scanned
// for fenced tool-call blocks, which are extracted and stripped from the
// returned text.
func Parse(resp llms.ChatResponse) (cleanText string, calls []tools.Call) {
	if len(resp.ToolCalls) > 0 {
		return resp.Text, toToolCalls(resp.ToolCalls)
	}

	matches := fencedCallPattern.FindAllStringSubmatchIndex(resp.Text, -1)
	if len(matches) == 0 {
		return resp.Text, nil
	}

	var builder strings.Builder
	last := 0
	for _, m := range matches {
		blockStart, blockEnd := m[0], m[1]
		jsonStart, jsonEnd := m[2], m[3]

		builder.WriteString(resp.Text[last:blockStart])
		last = blockEnd

		var tc textCall
		if err := json.Unmarshal([]byte(resp.Text[jsonStart:jsonEnd]), &tc); err != nil {
			continue // malformed block: drop silently, leave it out of both text and calls
		}
		calls = append(calls, tools.Call{Name: tc.Name, Params: tc.Arguments})
	}
	builder.WriteString(resp.Text[last:])

	return strings.TrimSpace(builder.String()), calls
}

func toToolCalls(llmCalls []llms.ToolCall) []tools.Call {
	out := make([]tools.Call, len(llmCalls))
	for i, c := range llmCalls {
		out[i] = tools.Call{ID: c.ID, Name: c.Name, Params: c.Arguments}
	}
	return out
}
