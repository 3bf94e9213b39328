// Package turn implements the turn loop (component H), the orchestrator
// tying together the mode/permission engine, model router, prompt
// composer, tool-call parser, tool registry, approval queue, and working
// memory into the ten-step procedure §4.7 specifies. Adapted from the
// upstream framework's goroutine+channel reasoning loop, generalized from
// its single pluggable-strategy shape into the spec's fixed procedure.
package turn

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loomwork/agentcore/approval"
	"github.com/loomwork/agentcore/llms"
	"github.com/loomwork/agentcore/memory"
	"github.com/loomwork/agentcore/mode"
	"github.com/loomwork/agentcore/prompt"
	"github.com/loomwork/agentcore/router"
	"github.com/loomwork/agentcore/tokens"
	"github.com/loomwork/agentcore/toolcall"
	"github.com/loomwork/agentcore/tools"
)

// EventKind enumerates the TurnEvent variants §6's Stream<TurnEvent>
// contract names.
type EventKind string

const (
	EventAssistantDelta    EventKind = "assistant-delta"
	EventToolCallStarted   EventKind = "tool-call-started"
	EventToolCallFinished  EventKind = "tool-call-finished"
	EventApprovalRequested EventKind = "approval-requested"
	EventTurnComplete      EventKind = "turn-complete"
)

// CompletionStatus is the terminal status carried by an EventTurnComplete.
type CompletionStatus string

const (
	StatusNormal       CompletionStatus = "Normal"
	StatusTruncated    CompletionStatus = "Truncated"
	StatusSuspended    CompletionStatus = "Suspended"
	StatusCancelled    CompletionStatus = "Cancelled"
	StatusBudgetHalt   CompletionStatus = "BudgetExceeded"
	StatusUnauthorized CompletionStatus = "Unauthorized"
)

// Event is one increment the turn loop emits to its caller.
type Event struct {
	Kind       EventKind
	Text       string
	ToolName   string
	ToolOK     bool
	Change     *approval.PendingChange
	Status     CompletionStatus
	StatusText string
}

// Session is the mutable state one turn loop call advances: working
// memory, mode/role, router, approval queue, and step counter. A Session
// belongs to exactly one Loop invocation at a time (§5's ownership rule).
type Session struct {
	Window      *memory.Window
	Mode        mode.Mode
	Role        mode.RoleName
	Router      *router.Table
	Approvals   *approval.Queue
	Tools       *tools.Registry
	Provider    llms.Provider
	// Fallbacks is the per-provider preference list §4.10 calls out:
	// after Provider exhausts its three retries on a ProviderTransient
	// failure, the loop tries each of these in order before halting.
	Fallbacks   []llms.Provider
	ModelFamily string

	stepCount int

	// mu guards suspended, which Resume mutates from whatever goroutine
	// handles an Approve/Reject call - a different one than the Loop
	// invocation that populated it, since the turn loop has already
	// returned by the time a suspended turn's decision arrives.
	mu        sync.Mutex
	suspended map[string]suspendedCall
}

// suspendedCall is the dispatch a mutating tool call was parked at when
// its PendingChange went to the approval queue, keyed by the change's ID
// so Resume can find it again once a decision is made.
type suspendedCall struct {
	call tools.Call
}

// chatWithFallback tries sess.Provider first, then each of sess.Fallbacks
// in order, each under the standard three-attempt retry policy.
func chatWithFallback(ctx context.Context, sess *Session, req llms.ChatRequest) (llms.ChatResponse, error) {
	providers := append([]llms.Provider{sess.Provider}, sess.Fallbacks...)
	var lastErr error
	for _, p := range providers {
		resp, err := llms.ChatWithRetry(ctx, p, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !llms.IsRetryable(err) {
			return llms.ChatResponse{}, err
		}
	}
	return llms.ChatResponse{}, lastErr
}

// Loop runs the turn-loop procedure for one user message, emitting
// Events on the returned channel and closing it when the turn reaches a
// terminal state (Normal, Truncated, Suspended, Cancelled, or a halt).
func Loop(ctx context.Context, sess *Session, role mode.Role, userText string) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)
		runLoop(ctx, sess, role, userText, out)
	}()

	return out
}

func runLoop(ctx context.Context, sess *Session, role mode.Role, userText string, out chan<- Event) {
	// Step 1: append user message to working memory.
	userItem := memory.NewItem(memory.KindUserMsg, userText, tokens.Estimate(userText, sess.ModelFamily))
	addToWindow(ctx, sess, userItem, out)

	// Step 2: mode/role engine may transition.
	sess.Mode = mode.ProposeTransition(sess.Mode, userText)

	iterate(ctx, sess, role, out)
}

// Resume re-dispatches a mutating call that was parked awaiting approval,
// once Approve/Reject has resolved its PendingChange, and continues the
// turn loop's remaining steps (§4.7 step 9's "approve -> the write runs and
// the turn resumes"). It runs on whatever goroutine the caller's
// Approve/Reject handler is on, not the original Loop goroutine, which has
// already returned.
func Resume(ctx context.Context, sess *Session, role mode.Role, changeID string) <-chan Event {
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		resumeApproval(ctx, sess, role, changeID, out)
	}()
	return out
}

func resumeApproval(ctx context.Context, sess *Session, role mode.Role, changeID string, out chan<- Event) {
	change, ok := sess.Approvals.Get(changeID)
	if !ok {
		emitHalt(out, StatusNormal, fmt.Sprintf("NotFound: no pending change %q", changeID))
		return
	}

	sess.mu.Lock()
	sc, parked := sess.suspended[changeID]
	if parked {
		delete(sess.suspended, changeID)
	}
	remaining := len(sess.suspended)
	sess.mu.Unlock()

	if !parked {
		emitHalt(out, StatusNormal, fmt.Sprintf("NotFound: change %q is not awaiting dispatch", changeID))
		return
	}

	var content string
	switch change.Status {
	case approval.Approved:
		out <- Event{Kind: EventToolCallStarted, ToolName: sc.call.Name}
		r := sess.Tools.Invoke(ctx, sc.call)
		content = r.Content
		out <- Event{Kind: EventToolCallFinished, ToolName: sc.call.Name, ToolOK: r.Success}
	case approval.Rejected:
		content = fmt.Sprintf("user rejected: %s", change.RejectedReason)
	default:
		emitHalt(out, StatusNormal, fmt.Sprintf("ApprovalExpired: change %q is %s, not resumable", changeID, change.Status))
		return
	}

	item := memory.NewItem(memory.KindToolResult, content, tokens.Estimate(content, sess.ModelFamily))
	addToWindow(ctx, sess, item, out)

	// Other calls from the same dispatch batch may still be parked; the
	// turn stays Suspended until every one of them has a decision.
	if remaining > 0 {
		out <- Event{Kind: EventTurnComplete, Status: StatusSuspended}
		return
	}

	// Step 10: loop, bounded by max_steps.
	sess.stepCount++
	if sess.stepCount >= role.MaxSteps {
		out <- Event{Kind: EventAssistantDelta, Text: "[turn truncated: max_steps reached]"}
		out <- Event{Kind: EventTurnComplete, Status: StatusTruncated}
		return
	}

	iterate(ctx, sess, role, out)
}

func iterate(ctx context.Context, sess *Session, role mode.Role, out chan<- Event) {
	for {
		select {
		case <-ctx.Done():
			emitHalt(out, StatusCancelled, ctx.Err().Error())
			return
		default:
		}

		if sess.Window.NeedsPruning() {
			sess.Window.Prune()
		}

		// Step 3: select model via the router.
		spec := sess.Router.Select(role.Name, router.Medium, nil)
		if err := sess.Router.CheckBudget(spec, estimateNextCallTokens(sess), defaultOutputBudget); err != nil {
			emitHalt(out, StatusBudgetHalt, "BudgetExceeded: projected cost exceeds configured limit")
			return
		}

		// Step 4: compose prompt, send to provider.
		req := prompt.Compose(role, sess.Mode, sess.Window.Snapshot(), sess.Tools, sess.Provider.SupportsTools(), prompt.SamplingParams{Temperature: 0.2, MaxTokens: defaultOutputBudget})
		resp, err := chatWithFallback(ctx, sess, req)
		if err != nil {
			emitProviderFailure(out, err)
			return
		}
		sess.Router.Record(spec, resp.Usage.InputTokens, resp.Usage.OutputTokens)

		// Step 5: parse the assistant response.
		cleanText, calls := toolcall.Parse(resp)
		out <- Event{Kind: EventAssistantDelta, Text: cleanText}

		// Step 6: no tool calls -> terminate normally.
		if len(calls) == 0 {
			assistantItem := memory.NewItem(memory.KindAssistantMsg, cleanText, tokens.Estimate(cleanText, sess.ModelFamily))
			addToWindow(ctx, sess, assistantItem, out)
			out <- Event{Kind: EventTurnComplete, Status: StatusNormal}
			return
		}

		// Step 7: append assistant-msg-with-tools marker, then dispatch.
		assistantItem := memory.NewItem(memory.KindAssistantMsg, cleanText, tokens.Estimate(cleanText, sess.ModelFamily))
		assistantItem.HasToolCalls = true
		addToWindow(ctx, sess, assistantItem, out)

		results, suspended := dispatchCalls(ctx, sess, role, calls, out)

		// Step 8: append each ToolResult to working memory.
		for _, r := range results {
			item := memory.NewItem(memory.KindToolResult, r.content, tokens.Estimate(r.content, sess.ModelFamily))
			addToWindow(ctx, sess, item, out)
		}

		// Step 9: outstanding approvals suspend the turn.
		if suspended {
			out <- Event{Kind: EventTurnComplete, Status: StatusSuspended}
			return
		}

		// Step 10: loop, bounded by max_steps.
		sess.stepCount++
		if sess.stepCount >= role.MaxSteps {
			out <- Event{Kind: EventAssistantDelta, Text: "[turn truncated: max_steps reached]"}
			out <- Event{Kind: EventTurnComplete, Status: StatusTruncated}
			return
		}
	}
}

// addToWindow inserts item into sess.Window, applying §4.3's ContextOverflow
// failure-mode procedure when a single item is too large to fit on its own:
// summarize the offending payload via the provider, retry once, and
// otherwise truncate with a structured marker. It never halts the turn -
// per §4.3, ContextOverflow is always resolved by insertion, not by
// surfacing a halt status.
func addToWindow(ctx context.Context, sess *Session, item memory.Item, out chan<- Event) {
	if err := sess.Window.Add(item); err == nil {
		return
	}

	summarizer := &memory.LLMSummarizer{Provider: sess.Provider}
	if summary, err := summarizer.SummarizeContext(ctx, []memory.Item{item}); err == nil {
		retryItem := memory.NewItem(item.Kind, summary, tokens.Estimate(summary, sess.ModelFamily))
		retryItem.Timestamp = item.Timestamp
		if err := sess.Window.Add(retryItem); err == nil {
			out <- Event{Kind: EventAssistantDelta, Text: fmt.Sprintf("[context overflow: %s summarized to fit]", item.Kind)}
			return
		}
	}

	truncated := truncateToFit(item.Content, sess.ModelFamily, sess.Window.MaxTokens())
	truncItem := memory.NewItem(item.Kind, truncated, tokens.Estimate(truncated, sess.ModelFamily))
	truncItem.Timestamp = item.Timestamp
	if err := sess.Window.Add(truncItem); err != nil {
		// The window's budget is too small even for the truncation marker
		// alone - a degenerate configuration, not a turn-time condition.
		// Surface a warning rather than silently dropping the payload.
		out <- Event{Kind: EventAssistantDelta, Text: fmt.Sprintf("[context overflow: %s dropped, window budget too small to hold any of it]", item.Kind)}
		return
	}
	out <- Event{Kind: EventAssistantDelta, Text: fmt.Sprintf("[context overflow: %s truncated to fit]", item.Kind)}
}

// truncateToFit binary-searches the longest byte-prefix of content that,
// together with the structured truncation marker, stays within budget
// tokens, so the caller never has to guess a chars-per-token ratio.
func truncateToFit(content, modelFamily string, budget int) string {
	const marker = "\n...[truncated: content exceeded context window budget]"
	if budget <= 0 {
		return marker
	}

	lo, hi, best := 0, len(content), ""
	for lo <= hi {
		mid := (lo + hi) / 2
		candidate := content[:mid] + marker
		if tokens.Estimate(candidate, modelFamily) <= budget {
			best = candidate
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == "" {
		return marker
	}
	return best
}

const defaultOutputBudget = 4096

func estimateNextCallTokens(sess *Session) int {
	return sess.Window.Stats().TotalTokens
}

type dispatchedResult struct {
	content string
}

// dispatchCalls runs the permission check and either refuses, enqueues
// for approval, or dispatches each call; independent calls run
// concurrently via errgroup per §5's S5 scenario, and results preserve
// emission order regardless of completion order.
func dispatchCalls(ctx context.Context, sess *Session, role mode.Role, calls []tools.Call, out chan<- Event) ([]dispatchedResult, bool) {
	results := make([]dispatchedResult, len(calls))
	suspendedFlags := make([]bool, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			mutating := sess.Tools.IsMutating(call.Name)

			// mode.Check alone decides allowlist membership and the
			// Plan-refuses-mutating rule; whether approval is additionally
			// required is resolved separately below via the queue's real
			// policy decision, since only it knows the Smart/DiffOnly
			// safe-list rules.
			outcome := mode.Check(role, sess.Mode, call.Name, mutating, nil)

			if outcome == mode.NotAllowlisted || outcome == mode.Refuse {
				out <- Event{Kind: EventToolCallStarted, ToolName: call.Name}
				msg := mode.ViolationMessage(outcome, role, sess.Mode, call.Name)
				results[i] = dispatchedResult{content: msg}
				out <- Event{Kind: EventToolCallFinished, ToolName: call.Name, ToolOK: false}
				return nil
			}

			out <- Event{Kind: EventToolCallStarted, ToolName: call.Name}

			if mutating {
				change, accepted := sess.Approvals.Decide(call.Name, call.Params, call.Name, "tool call requires confirmation")
				if !accepted {
					sess.mu.Lock()
					if sess.suspended == nil {
						sess.suspended = make(map[string]suspendedCall)
					}
					sess.suspended[change.ID] = suspendedCall{call: call}
					sess.mu.Unlock()

					out <- Event{Kind: EventApprovalRequested, Change: change}
					results[i] = dispatchedResult{content: "awaiting approval"}
					suspendedFlags[i] = true
					return nil
				}
			}

			r := sess.Tools.Invoke(gctx, call)
			results[i] = dispatchedResult{content: r.Content}
			out <- Event{Kind: EventToolCallFinished, ToolName: call.Name, ToolOK: r.Success}
			return nil
		})
	}
	_ = g.Wait()

	suspended := false
	for _, s := range suspendedFlags {
		if s {
			suspended = true
			break
		}
	}
	return results, suspended
}

func emitHalt(out chan<- Event, status CompletionStatus, text string) {
	out <- Event{Kind: EventAssistantDelta, Text: text}
	out <- Event{Kind: EventTurnComplete, Status: status, StatusText: text}
}

func emitProviderFailure(out chan<- Event, err error) {
	var pe *llms.ProviderError
	status := StatusNormal
	if ok := asProviderError(err, &pe); ok {
		switch pe.Kind {
		case llms.ErrUnauthorized:
			status = StatusUnauthorized
		default:
			status = StatusNormal
		}
	}
	emitHalt(out, status, err.Error())
}

func asProviderError(err error, target **llms.ProviderError) bool {
	pe, ok := err.(*llms.ProviderError)
	if ok {
		*target = pe
	}
	return ok
}
