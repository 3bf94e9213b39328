package approval_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/agentcore/approval"
)

// S6 — a Review policy queues a mutating call and the decision flow
// resolves it.
func TestQueue_S6_ReviewPolicyQueuesAndApproves(t *testing.T) {
	q := approval.NewQueue(approval.Review, time.Minute, "/work")

	change, accepted := q.Decide("write_file", map[string]any{"path": "a.go"}, "write_file", "user asked to edit a.go")
	require.False(t, accepted)
	require.NotNil(t, change)
	assert.Equal(t, approval.Queued, change.Status)

	resolved, err := q.Approve(change.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.Approved, resolved.Status)
}

func TestQueue_AutoPolicyAcceptsEverything(t *testing.T) {
	q := approval.NewQueue(approval.Auto, time.Minute, "/work")
	_, accepted := q.Decide("run_command", map[string]any{"command": "rm -rf /"}, "run_command", "")
	assert.True(t, accepted)
}

func TestQueue_SmartPolicyAutoAcceptsReadOnlyAndSafeShell(t *testing.T) {
	q := approval.NewQueue(approval.Smart, time.Minute, "/work")

	_, accepted := q.Decide("read_file", map[string]any{"path": "a.go"}, "read_file", "")
	assert.True(t, accepted)

	_, accepted = q.Decide("run_command", map[string]any{"command": "ls -la"}, "run_command", "")
	assert.True(t, accepted)

	_, accepted = q.Decide("run_command", map[string]any{"command": "rm -rf /"}, "run_command", "")
	assert.False(t, accepted)
}

func TestQueue_SmartPolicyAutoAcceptsPathsInsideRoot(t *testing.T) {
	q := approval.NewQueue(approval.Smart, time.Minute, "/work")

	_, accepted := q.Decide("write_file", map[string]any{"path": "subdir/a.go"}, "write_file", "")
	assert.True(t, accepted)

	_, accepted = q.Decide("write_file", map[string]any{"path": "../../etc/passwd"}, "write_file", "")
	assert.False(t, accepted)
}

func TestQueue_RejectProducesReason(t *testing.T) {
	q := approval.NewQueue(approval.Review, time.Minute, "/work")
	change, _ := q.Decide("write_file", nil, "write_file", "")

	resolved, err := q.Reject(change.ID, "not today")
	require.NoError(t, err)
	assert.Equal(t, approval.Rejected, resolved.Status)
	assert.Equal(t, "not today", resolved.RejectedReason)
}

func TestQueue_ExpireOverdue(t *testing.T) {
	q := approval.NewQueue(approval.Review, time.Millisecond, "/work")
	change, _ := q.Decide("write_file", nil, "write_file", "")

	expired := q.ExpireOverdue(time.Now().Add(time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, change.ID, expired[0].ID)
	assert.Equal(t, "timeout", expired[0].RejectedReason)
}

func TestQueue_PendingPreservesFIFOOrder(t *testing.T) {
	q := approval.NewQueue(approval.Review, time.Minute, "/work")
	first, _ := q.Decide("write_file", map[string]any{"path": "a.go"}, "", "")
	second, _ := q.Decide("write_file", map[string]any{"path": "b.go"}, "", "")

	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}
