package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/agentcore/mode"
	"github.com/loomwork/agentcore/session"
)

func TestFileStore_RoundTripFidelity(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	original := &session.Session{
		ID:        "sess-1",
		CreatedAt: time.Now().Truncate(time.Second),
		UpdatedAt: time.Now().Truncate(time.Second),
		Mode:      mode.Build,
		Role:      mode.Builder,
		Transcript: []session.TranscriptItem{
			{ID: "item-1", Content: "hello", TokenCost: 3},
		},
		Usage: session.Usage{InputTokens: 10, OutputTokens: 5, Requests: 1, CostUSD: 0.01},
	}

	require.NoError(t, store.Save(original))
	loaded, err := store.Load("sess-1")
	require.NoError(t, err)

	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.Mode, loaded.Mode)
	assert.Equal(t, original.Role, loaded.Role)
	assert.Equal(t, original.Transcript, loaded.Transcript)
	assert.Equal(t, original.Usage, loaded.Usage)
}

func TestFileStore_LoadMissingReturnsNotFound(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("does-not-exist")
	assert.ErrorContains(t, err, "NotFound")
}

func TestSession_UnknownFieldsPreservedAcrossRoundTrip(t *testing.T) {
	raw := []byte(`{"id":"sess-2","created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z","mode":"build","role":"builder","transcript":[],"usage":{"input_tokens":0,"output_tokens":0,"requests":0,"cost_usd":0},"a_future_field":"keep me"}`)

	var s session.Session
	require.NoError(t, json.Unmarshal(raw, &s))

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var roundTripped map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, "keep me", roundTripped["a_future_field"])
}
