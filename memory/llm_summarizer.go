package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomwork/agentcore/llms"
)

// LLMSummarizer condenses evicted runs with a real model call instead of
// the default truncating concatenation. Per §5, a summarizer that calls
// an LLM is itself a suspension point of the turn loop; callers that want
// that behavior invoke SummarizeContext explicitly from within the turn
// loop rather than through Window.Prune directly, since Prune itself must
// stay synchronous and allocation-only.
type LLMSummarizer struct {
	Provider llms.Provider
	Model    string
}

// Summarize implements the synchronous Summarizer interface Window uses
// by falling back to concatenation; SummarizeContext is the real entry
// point for an LLM-backed fold.
func (s *LLMSummarizer) Summarize(items []Item) string {
	return concatSummarizer{}.Summarize(items)
}

// SummarizeContext asks the configured provider to condense a run of
// items into a short paragraph. The turn loop calls it when a single item
// is too large for the window (ContextOverflow) and inserts the summary
// in its place; Window.Prune does not call it. The call goes through
// llms.ChatWithRetry, so it is cancellable via ctx and retried on
// transient failures.
func (s *LLMSummarizer) SummarizeContext(ctx context.Context, items []Item) (string, error) {
	if s.Provider == nil || len(items) == 0 {
		return concatSummarizer{}.Summarize(items), nil
	}

	var transcript strings.Builder
	for _, it := range items {
		fmt.Fprintf(&transcript, "[%s] %s\n", it.Kind, it.Content)
	}

	req := llms.ChatRequest{
		Messages: []llms.Message{
			{Role: "system", Content: "Summarize the following conversation fragment in 2-3 sentences, preserving any facts a later turn might need."},
			{Role: "user", Content: transcript.String()},
		},
	}

	resp, err := llms.ChatWithRetry(ctx, s.Provider, req)
	if err != nil {
		return "", fmt.Errorf("memory: summarization call failed: %w", err)
	}
	return resp.Text, nil
}
