// Package memory implements the working-memory manager (component C): a
// bounded, ordered context window with relevance-scored eviction and
// summarization, grounded in the same strategy-object shape the upstream
// agent framework uses for pluggable history management, generalized here
// to a single built-in policy rather than a swappable one.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the ContextItem variants the working memory tracks.
// Type weights (§4.3) are keyed on this.
type Kind string

const (
	KindSystemPrompt  Kind = "system-prompt"
	KindUserMsg       Kind = "user-msg"
	KindAssistantMsg  Kind = "assistant-msg"
	KindToolResult    Kind = "tool-result"
	KindCodeSnippet   Kind = "code-snippet"
	KindTaskState     Kind = "task-state"
	KindKGQueryResult Kind = "kg-query-result"
)

// Item is the atom of working memory.
type Item struct {
	ID string
	// Kind is one of the variants above. System-prompt items are always
	// sticky; every other kind is prunable by the relevance policy.
	Kind Kind
	// Content is the string payload sent to the provider.
	Content string
	// TokenCost is the estimated cost at insertion time (component A);
	// never recomputed afterward, so pruning accounting is stable.
	TokenCost int
	// Timestamp is the monotone creation time used for decay and
	// tie-breaks.
	Timestamp time.Time
	// TaskID optionally associates the item with a Task; the task-boost
	// term in the relevance score keys on equality with the current task.
	TaskID string
	// Dependencies are other Item IDs this item references; pruning an
	// item that other items depend on recomputes those children's
	// relevance via the dependency-boost term, not by forcing eviction.
	Dependencies map[string]struct{}
	// Sticky items are never evicted. NewItem makes every system-prompt
	// item sticky; Window does not check how many system-prompt items it
	// holds.
	Sticky bool
	// BaseRelevance is an optional producer-assigned multiplier, default 1.
	BaseRelevance float64
	// HasToolCalls marks an assistant-msg item that carries tool calls,
	// which the relevance formula weights more heavily than plain text.
	HasToolCalls bool
}

// NewItem constructs an Item with a fresh ID and the current time, base
// relevance defaulted to 1.0, sticky exactly when kind is system-prompt.
func NewItem(kind Kind, content string, tokenCost int) Item {
	return Item{
		ID:            uuid.NewString(),
		Kind:          kind,
		Content:       content,
		TokenCost:     tokenCost,
		Timestamp:     time.Now(),
		Dependencies:  make(map[string]struct{}),
		Sticky:        kind == KindSystemPrompt,
		BaseRelevance: 1.0,
	}
}
