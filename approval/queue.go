// Package approval implements the approval queue (component I): the
// confirm-before-mutate gate a turn loop consults for any mutating
// ToolCall, grounded on the upstream framework's filterToolCallsWithApproval
// decision pattern but generalized from its A2A-specific payload into the
// PendingChange shape §4.8 describes.
package approval

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Policy selects how aggressively mutating calls are auto-accepted.
type Policy string

const (
	Auto     Policy = "auto"
	Review   Policy = "review"
	Smart    Policy = "smart"
	DiffOnly Policy = "diff_only"
)

// Status is a PendingChange's place in its state machine.
type Status string

const (
	Queued   Status = "queued"
	Approved Status = "approved"
	Rejected Status = "rejected"
	Expired  Status = "expired"
)

// PendingChange is one mutating call awaiting a decision.
type PendingChange struct {
	ID             string
	ToolName       string
	Params         map[string]any
	RequestingTool string
	Rationale      string
	RiskTag        string
	Status         Status
	RejectedReason string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// safeShellVerbs are the non-destructive commands Smart's fixed safe
// list auto-accepts when the tool is run_command.
var safeShellVerbs = map[string]struct{}{
	"ls": {}, "cat": {}, "grep": {}, "find": {}, "pwd": {}, "echo": {},
	"git status": {}, "git log": {}, "git diff": {},
}

// Queue holds PendingChanges in FIFO insertion order, though decisions
// may resolve them out of order; each decision is addressed by the
// PendingChange's id.
type Queue struct {
	mu      sync.Mutex
	policy  Policy
	timeout time.Duration
	order   []string
	items   map[string]*PendingChange
	rootDir string
}

// NewQueue constructs a Queue under the given policy, approval timeout,
// and project root (used by Smart's path-inside-root rule).
func NewQueue(policy Policy, timeout time.Duration, rootDir string) *Queue {
	return &Queue{
		policy:  policy,
		timeout: timeout,
		items:   make(map[string]*PendingChange),
		rootDir: rootDir,
	}
}

// Decide evaluates the policy for one proposed call and either (a)
// returns (nil, true) meaning auto-accepted — dispatch immediately — or
// (b) enqueues a PendingChange and returns (&change, false) meaning the
// caller must block this call pending a decision.
func (q *Queue) Decide(toolName string, params map[string]any, requestingTool, rationale string) (*PendingChange, bool) {
	if q.autoAccepts(toolName, params) {
		return nil, true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	change := &PendingChange{
		ID:             uuid.NewString(),
		ToolName:       toolName,
		Params:         params,
		RequestingTool: requestingTool,
		Rationale:      rationale,
		RiskTag:        riskTag(toolName, params),
		Status:         Queued,
		CreatedAt:      now,
		ExpiresAt:      now.Add(q.timeout),
	}
	q.items[change.ID] = change
	q.order = append(q.order, change.ID)
	return change, false
}

func (q *Queue) autoAccepts(toolName string, params map[string]any) bool {
	switch q.policy {
	case Auto:
		return true
	case Review:
		return false
	case Smart:
		return smartSafe(toolName, params, q.rootDir)
	case DiffOnly:
		return toolName != "write_file"
	default:
		return false
	}
}

// smartSafe implements Smart's fixed safe list: read-only tools, paths
// that resolve inside the project root, and non-destructive shell verbs.
func smartSafe(toolName string, params map[string]any, rootDir string) bool {
	switch toolName {
	case "read_file", "search_code":
		return true
	case "write_file":
		path, _ := params["path"].(string)
		return pathInsideRoot(path, rootDir)
	case "run_command":
		command, _ := params["command"].(string)
		return isSafeShellVerb(command)
	default:
		return false
	}
}

func pathInsideRoot(path, rootDir string) bool {
	if path == "" || rootDir == "" {
		return false
	}
	abs := filepath.Join(rootDir, path)
	rel, err := filepath.Rel(rootDir, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isSafeShellVerb(command string) bool {
	trimmed := strings.TrimSpace(command)
	for verb := range safeShellVerbs {
		if trimmed == verb || strings.HasPrefix(trimmed, verb+" ") {
			return true
		}
	}
	return false
}

func riskTag(toolName string, params map[string]any) string {
	if toolName == "run_command" {
		return "shell-exec"
	}
	if toolName == "write_file" {
		return "filesystem-write"
	}
	return "unspecified"
}

// Approve transitions a Queued change to Approved, unblocking dispatch.
func (q *Queue) Approve(id string) (*PendingChange, error) {
	return q.resolve(id, Approved, "")
}

// Reject transitions a Queued change to Rejected with a reason; the turn
// loop synthesizes a "user rejected: <reason>" tool-result from this.
func (q *Queue) Reject(id, reason string) (*PendingChange, error) {
	return q.resolve(id, Rejected, reason)
}

func (q *Queue) resolve(id string, status Status, reason string) (*PendingChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	change, ok := q.items[id]
	if !ok {
		return nil, fmt.Errorf("NotFound: no pending change %q", id)
	}
	if change.Status != Queued {
		return nil, fmt.Errorf("ApprovalExpired: change %q is already %s", id, change.Status)
	}
	change.Status = status
	change.RejectedReason = reason
	return change, nil
}

// ExpireOverdue scans the queue and transitions any Queued change whose
// ExpiresAt has passed into Expired, returning the ones it expired.
func (q *Queue) ExpireOverdue(now time.Time) []*PendingChange {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*PendingChange
	for _, id := range q.order {
		change := q.items[id]
		if change.Status == Queued && now.After(change.ExpiresAt) {
			change.Status = Expired
			change.RejectedReason = "timeout"
			expired = append(expired, change)
		}
	}
	return expired
}

// Pending returns the still-Queued changes in FIFO insertion order.
func (q *Queue) Pending() []*PendingChange {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []*PendingChange
	for _, id := range q.order {
		if change := q.items[id]; change.Status == Queued {
			pending = append(pending, change)
		}
	}
	return pending
}

// Get returns a change by id.
func (q *Queue) Get(id string) (*PendingChange, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	change, ok := q.items[id]
	return change, ok
}
