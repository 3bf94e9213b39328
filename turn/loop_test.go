package turn_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/agentcore/approval"
	"github.com/loomwork/agentcore/llms"
	"github.com/loomwork/agentcore/memory"
	"github.com/loomwork/agentcore/mode"
	"github.com/loomwork/agentcore/router"
	"github.com/loomwork/agentcore/tools"
	"github.com/loomwork/agentcore/turn"
)

// stubProvider returns a scripted sequence of responses, one per call.
type stubProvider struct {
	responses []llms.ChatResponse
	call      int
}

func (s *stubProvider) Name() string         { return "stub" }
func (s *stubProvider) SupportsTools() bool  { return true }
func (s *stubProvider) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	if s.call >= len(s.responses) {
		return llms.ChatResponse{Text: "done"}, nil
	}
	r := s.responses[s.call]
	s.call++
	return r, nil
}
func (s *stubProvider) ChatStream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, nil
}

func newSession(t *testing.T, provider llms.Provider, policy approval.Policy) *turn.Session {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, registry.RegisterBuiltins(t.TempDir()))

	return &turn.Session{
		Window:      memory.NewWindow(100_000, nil),
		Mode:        mode.Plan,
		Role:        mode.Explorer,
		Router:      router.NewTable(router.ModelSpec{Provider: "stub", Model: "stub-model"}),
		Approvals:   approval.NewQueue(policy, time.Minute, "/work"),
		Tools:       registry,
		Provider:    provider,
		ModelFamily: "gpt-4",
	}
}

// S1 — a read-only Plan-mode query with no tool calls completes normally.
func TestLoop_S1_SimpleReadNoToolCalls(t *testing.T) {
	provider := &stubProvider{responses: []llms.ChatResponse{
		{Text: "the auth module validates JWTs"},
	}}
	sess := newSession(t, provider, approval.Review)
	role, _ := mode.RoleByName(mode.Explorer)

	events := turn.Loop(context.Background(), sess, role, "what does module auth do?")

	var statuses []turn.CompletionStatus
	for ev := range events {
		if ev.Kind == turn.EventTurnComplete {
			statuses = append(statuses, ev.Status)
		}
	}
	require.Len(t, statuses, 1)
	assert.Equal(t, turn.StatusNormal, statuses[0])
}

// A mutating tool call proposed while in Plan mode produces a
// ModeViolation tool-result instead of executing.
func TestLoop_MutatingCallInPlanModeRefused(t *testing.T) {
	provider := &stubProvider{responses: []llms.ChatResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "write_file", Arguments: map[string]any{"path": "a.go", "content": "x"}}}},
		{Text: "ok, understood"},
	}}
	sess := newSession(t, provider, approval.Review)
	role, _ := mode.RoleByName(mode.Explorer)

	events := turn.Loop(context.Background(), sess, role, "what does module auth do?")

	var sawRefusal bool
	for ev := range events {
		if ev.Kind == turn.EventToolCallFinished && !ev.ToolOK {
			sawRefusal = true
		}
	}
	assert.True(t, sawRefusal)
}

// failingProvider always returns a transient error, so callers exhaust
// ChatWithRetry's three attempts and the loop must fall back.
type failingProvider struct{ name string }

func (f *failingProvider) Name() string        { return f.name }
func (f *failingProvider) SupportsTools() bool { return true }
func (f *failingProvider) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	return llms.ChatResponse{}, &llms.ProviderError{Kind: llms.ErrTransient, Provider: f.name, Err: assert.AnError}
}
func (f *failingProvider) ChatStream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, nil
}

// A transient failure on the primary provider falls back to the
// configured fallback chain instead of halting the turn.
func TestLoop_FallsBackToSecondaryProviderOnTransientFailure(t *testing.T) {
	primary := &failingProvider{name: "primary"}
	fallback := &stubProvider{responses: []llms.ChatResponse{{Text: "handled by fallback"}}}
	sess := newSession(t, primary, approval.Review)
	sess.Fallbacks = []llms.Provider{fallback}
	role, _ := mode.RoleByName(mode.Explorer)

	events := turn.Loop(context.Background(), sess, role, "what does module auth do?")

	var statuses []turn.CompletionStatus
	for ev := range events {
		if ev.Kind == turn.EventTurnComplete {
			statuses = append(statuses, ev.Status)
		}
	}
	require.Len(t, statuses, 1)
	assert.Equal(t, turn.StatusNormal, statuses[0])
}

// S6 — a Review-policy mutating call in Build mode suspends the turn
// awaiting approval.
func TestLoop_S6_ReviewPolicySuspendsOnMutatingCall(t *testing.T) {
	provider := &stubProvider{responses: []llms.ChatResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "write_file", Arguments: map[string]any{"path": "a.go", "content": "x"}}}},
	}}
	sess := newSession(t, provider, approval.Review)
	sess.Mode = mode.Build
	role, _ := mode.RoleByName(mode.Builder)

	events := turn.Loop(context.Background(), sess, role, "implement the fix")

	var status turn.CompletionStatus
	var sawApprovalRequest bool
	for ev := range events {
		if ev.Kind == turn.EventApprovalRequested {
			sawApprovalRequest = true
		}
		if ev.Kind == turn.EventTurnComplete {
			status = ev.Status
		}
	}
	assert.True(t, sawApprovalRequest)
	assert.Equal(t, turn.StatusSuspended, status)
}

// S6 continued — once the suspended call's PendingChange is approved,
// Resume dispatches it for real and the turn continues to its next step.
func TestLoop_S6_ResumeAfterApprovalDispatchesCallAndContinues(t *testing.T) {
	workDir := t.TempDir()
	registry := tools.NewRegistry()
	require.NoError(t, registry.RegisterBuiltins(workDir))

	provider := &stubProvider{responses: []llms.ChatResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "write_file", Arguments: map[string]any{"path": "a.go", "content": "package a"}}}},
		{Text: "done"},
	}}
	queue := approval.NewQueue(approval.Review, time.Minute, workDir)
	sess := &turn.Session{
		Window:      memory.NewWindow(100_000, nil),
		Mode:        mode.Build,
		Role:        mode.Builder,
		Router:      router.NewTable(router.ModelSpec{Provider: "stub", Model: "stub-model"}),
		Approvals:   queue,
		Tools:       registry,
		Provider:    provider,
		ModelFamily: "gpt-4",
	}
	role, _ := mode.RoleByName(mode.Builder)

	events := turn.Loop(context.Background(), sess, role, "implement the fix")

	var changeID string
	for ev := range events {
		if ev.Kind == turn.EventApprovalRequested {
			changeID = ev.Change.ID
		}
	}
	require.NotEmpty(t, changeID)

	_, err := queue.Approve(changeID)
	require.NoError(t, err)

	resumed := turn.Resume(context.Background(), sess, role, changeID)

	var status turn.CompletionStatus
	var sawDispatch bool
	for ev := range resumed {
		if ev.Kind == turn.EventToolCallFinished && ev.ToolName == "write_file" {
			sawDispatch = true
			assert.True(t, ev.ToolOK)
		}
		if ev.Kind == turn.EventTurnComplete {
			status = ev.Status
		}
	}
	assert.True(t, sawDispatch)
	assert.Equal(t, turn.StatusNormal, status)

	content, err := os.ReadFile(filepath.Join(workDir, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "package a", string(content))
}

// A rejected suspended call resumes with a synthetic "user rejected"
// tool-result instead of dispatching the tool, and the turn still
// continues.
func TestLoop_S6_ResumeAfterRejectionSynthesizesResultWithoutDispatch(t *testing.T) {
	workDir := t.TempDir()
	registry := tools.NewRegistry()
	require.NoError(t, registry.RegisterBuiltins(workDir))

	provider := &stubProvider{responses: []llms.ChatResponse{
		{ToolCalls: []llms.ToolCall{{ID: "1", Name: "write_file", Arguments: map[string]any{"path": "a.go", "content": "package a"}}}},
		{Text: "ok, skipping that change"},
	}}
	queue := approval.NewQueue(approval.Review, time.Minute, workDir)
	sess := &turn.Session{
		Window:      memory.NewWindow(100_000, nil),
		Mode:        mode.Build,
		Role:        mode.Builder,
		Router:      router.NewTable(router.ModelSpec{Provider: "stub", Model: "stub-model"}),
		Approvals:   queue,
		Tools:       registry,
		Provider:    provider,
		ModelFamily: "gpt-4",
	}
	role, _ := mode.RoleByName(mode.Builder)

	events := turn.Loop(context.Background(), sess, role, "implement the fix")

	var changeID string
	for ev := range events {
		if ev.Kind == turn.EventApprovalRequested {
			changeID = ev.Change.ID
		}
	}
	require.NotEmpty(t, changeID)

	_, err := queue.Reject(changeID, "not needed")
	require.NoError(t, err)

	resumed := turn.Resume(context.Background(), sess, role, changeID)

	var status turn.CompletionStatus
	var sawDispatch bool
	for ev := range resumed {
		if ev.Kind == turn.EventToolCallFinished {
			sawDispatch = true
		}
		if ev.Kind == turn.EventTurnComplete {
			status = ev.Status
		}
	}
	assert.False(t, sawDispatch)
	assert.Equal(t, turn.StatusNormal, status)

	_, statErr := os.Stat(filepath.Join(workDir, "a.go"))
	assert.True(t, os.IsNotExist(statErr))
}

// overflowRoutingProvider separates the turn loop's main chat calls from
// an LLMSummarizer's SummarizeContext call, which shares the same
// Provider: SummarizeContext's fixed system prompt always starts with
// "Summarize", so routing on that lets a test script each independently.
type overflowRoutingProvider struct {
	mainResponses []llms.ChatResponse
	mainCall      int
	summaryResp   llms.ChatResponse
	summaryErr    error
}

func (p *overflowRoutingProvider) Name() string        { return "overflow-stub" }
func (p *overflowRoutingProvider) SupportsTools() bool { return true }
func (p *overflowRoutingProvider) Chat(ctx context.Context, req llms.ChatRequest) (llms.ChatResponse, error) {
	if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "Summarize") {
		return p.summaryResp, p.summaryErr
	}
	if p.mainCall >= len(p.mainResponses) {
		return llms.ChatResponse{Text: "done"}, nil
	}
	r := p.mainResponses[p.mainCall]
	p.mainCall++
	return r, nil
}
func (p *overflowRoutingProvider) ChatStream(ctx context.Context, req llms.ChatRequest) (<-chan llms.StreamChunk, error) {
	return nil, nil
}

// ContextOverflow — a tool result too large for the window's budget is
// summarized and retried rather than halting the turn (§4.3).
func TestLoop_ContextOverflow_SummarizesOversizedToolResult(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "big.txt"), []byte(strings.Repeat("x", 200)), 0o644))

	registry := tools.NewRegistry()
	require.NoError(t, registry.RegisterBuiltins(workDir))

	provider := &overflowRoutingProvider{
		mainResponses: []llms.ChatResponse{
			{ToolCalls: []llms.ToolCall{{ID: "1", Name: "read_file", Arguments: map[string]any{"path": "big.txt"}}}},
			{Text: "done"},
		},
		summaryResp: llms.ChatResponse{Text: "big.txt holds repeated filler characters"},
	}
	sess := &turn.Session{
		Window:      memory.NewWindow(20, nil),
		Mode:        mode.Plan,
		Role:        mode.Explorer,
		Router:      router.NewTable(router.ModelSpec{Provider: "stub", Model: "stub-model"}),
		Approvals:   approval.NewQueue(approval.Review, time.Minute, workDir),
		Tools:       registry,
		Provider:    provider,
		ModelFamily: "unknown-family",
	}
	role, _ := mode.RoleByName(mode.Explorer)

	events := turn.Loop(context.Background(), sess, role, "hi")

	var sawSummarized bool
	var status turn.CompletionStatus
	for ev := range events {
		if ev.Kind == turn.EventAssistantDelta && strings.Contains(ev.Text, "summarized to fit") {
			sawSummarized = true
		}
		if ev.Kind == turn.EventTurnComplete {
			status = ev.Status
		}
	}
	assert.True(t, sawSummarized)
	assert.Equal(t, turn.StatusNormal, status)
}

// ContextOverflow continued — when summarization itself fails, the item
// is truncated with a structured marker instead, and the turn still
// never halts.
func TestLoop_ContextOverflow_TruncatesWhenSummarizationFails(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "big.txt"), []byte(strings.Repeat("y", 200)), 0o644))

	registry := tools.NewRegistry()
	require.NoError(t, registry.RegisterBuiltins(workDir))

	provider := &overflowRoutingProvider{
		mainResponses: []llms.ChatResponse{
			{ToolCalls: []llms.ToolCall{{ID: "1", Name: "read_file", Arguments: map[string]any{"path": "big.txt"}}}},
			{Text: "done"},
		},
		summaryErr: &llms.ProviderError{Kind: llms.ErrFatal, Provider: "overflow-stub", Err: assert.AnError},
	}
	sess := &turn.Session{
		Window:      memory.NewWindow(20, nil),
		Mode:        mode.Plan,
		Role:        mode.Explorer,
		Router:      router.NewTable(router.ModelSpec{Provider: "stub", Model: "stub-model"}),
		Approvals:   approval.NewQueue(approval.Review, time.Minute, workDir),
		Tools:       registry,
		Provider:    provider,
		ModelFamily: "unknown-family",
	}
	role, _ := mode.RoleByName(mode.Explorer)

	events := turn.Loop(context.Background(), sess, role, "hi")

	var sawTruncated bool
	var status turn.CompletionStatus
	for ev := range events {
		if ev.Kind == turn.EventAssistantDelta && strings.Contains(ev.Text, "truncated to fit") {
			sawTruncated = true
		}
		if ev.Kind == turn.EventTurnComplete {
			status = ev.Status
		}
	}
	assert.True(t, sawTruncated)
	assert.Equal(t, turn.StatusNormal, status)
}
