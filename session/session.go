// Package session implements the session store (component J): the
// save/load contract of §4.9, with a default atomic-file implementation
// and a SQL-backed alternative grounded on the upstream framework's
// dialect-branching session service.
package session

import (
	"encoding/json"
	"time"

	"github.com/loomwork/agentcore/memory"
	"github.com/loomwork/agentcore/mode"
	"github.com/loomwork/agentcore/router"
)

// Session is the authoritative persisted record of a conversation.
// Working memory is reconstructible from Transcript; Session itself is
// the thing save/load round-trips.
type Session struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Mode        mode.Mode     `json:"mode"`
	Role        mode.RoleName `json:"role"`
	CurrentTask string        `json:"current_task,omitempty"`

	// Transcript holds the working-memory items as they stood at the last
	// save (FromMemoryItems over the window's snapshot); items pruned
	// before that save are not kept. Derived marks entries that are pure
	// derivations a store may drop and recompute; FromMemoryItems does not
	// set it, so fold summaries are stored like any other item.
	Transcript []TranscriptItem `json:"transcript"`

	Usage Usage `json:"usage"`

	// Unknown carries any fields this version of the struct doesn't
	// recognize, so that load(save(s)) preserves them unchanged — the
	// forward-compatibility property §6 requires.
	Unknown map[string]json.RawMessage `json:"-"`
}

// TranscriptItem is a persisted rendering of a memory.Item.
type TranscriptItem struct {
	ID        string      `json:"id"`
	Kind      memory.Kind `json:"kind"`
	Content   string      `json:"content"`
	TokenCost int         `json:"token_cost"`
	Timestamp time.Time   `json:"timestamp"`
	TaskID    string      `json:"task_id,omitempty"`
	Derived   bool        `json:"derived,omitempty"`
}

// Usage is the persisted snapshot of the router's usage counters.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Requests     int     `json:"requests"`
	CostUSD      float64 `json:"cost_usd"`
}

// FromRouterUsage converts a router.Usage into the persisted shape.
func FromRouterUsage(u router.Usage) Usage {
	return Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens, Requests: u.Requests, CostUSD: u.CostUSD}
}

// FromMemoryItems renders a memory.Item slice into transcript entries.
func FromMemoryItems(items []memory.Item) []TranscriptItem {
	out := make([]TranscriptItem, len(items))
	for i, it := range items {
		out[i] = TranscriptItem{
			ID:        it.ID,
			Kind:      it.Kind,
			Content:   it.Content,
			TokenCost: it.TokenCost,
			Timestamp: it.Timestamp,
			TaskID:    it.TaskID,
		}
	}
	return out
}

// Store is the two-operation contract §4.9 specifies.
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
}

// MarshalJSON merges Unknown back in alongside the known fields so a
// round trip through an older or newer version of this struct preserves
// fields this build doesn't recognize.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	known, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Unknown) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Unknown {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes known fields normally and stashes anything else
// into Unknown.
func (s *Session) UnmarshalJSON(data []byte) error {
	type alias Session
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = Session(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]struct{}{
		"id": {}, "created_at": {}, "updated_at": {}, "mode": {}, "role": {},
		"current_task": {}, "transcript": {}, "usage": {},
	}
	s.Unknown = make(map[string]json.RawMessage)
	for k, v := range raw {
		if _, ok := known[k]; !ok {
			s.Unknown[k] = v
		}
	}
	return nil
}
