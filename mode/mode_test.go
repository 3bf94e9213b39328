package mode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/agentcore/mode"
)

// S1 — read-only turn in Plan mode never permits a mutating call.
func TestCheck_S1_PlanRefusesMutatingTool(t *testing.T) {
	explorer, ok := mode.RoleByName(mode.Explorer)
	require.True(t, ok)

	outcome := mode.Check(explorer, mode.Plan, "write_file", true, nil)
	assert.Equal(t, mode.Refuse, outcome)

	outcome = mode.Check(explorer, mode.Plan, "read_file", false, nil)
	assert.Equal(t, mode.Allow, outcome)
}

// S2 — an intent keyword proposes a Plan -> Build transition.
func TestProposeTransition_S2_KeywordTriggersBuild(t *testing.T) {
	next := mode.ProposeTransition(mode.Plan, "implement retry in auth.rs")
	assert.Equal(t, mode.Build, next)

	unchanged := mode.ProposeTransition(mode.Plan, "what does module auth do?")
	assert.Equal(t, mode.Plan, unchanged)
}

func TestCheck_NotAllowlistedTool(t *testing.T) {
	fileSearcher, ok := mode.RoleByName(mode.FileSearcher)
	require.True(t, ok)

	outcome := mode.Check(fileSearcher, mode.Build, "run_command", true, nil)
	assert.Equal(t, mode.NotAllowlisted, outcome)
}

func TestCheck_NeedsApprovalWhenPolicyDemands(t *testing.T) {
	builder, ok := mode.RoleByName(mode.Builder)
	require.True(t, ok)

	always := func(string, bool) bool { return true }
	outcome := mode.Check(builder, mode.Build, "write_file", true, always)
	assert.Equal(t, mode.NeedsApproval, outcome)
}

func TestSelectRole_PriorityOrder(t *testing.T) {
	assert.Equal(t, mode.Explorer, mode.SelectRole("what does this module do?"))
	assert.Equal(t, mode.Builder, mode.SelectRole("implement a new endpoint"))
	assert.Equal(t, mode.Debugger, mode.SelectRole("fix the crash in the parser"))
	assert.Equal(t, mode.Refactorer, mode.SelectRole("refactor this file for clarity"))
}

func TestRoleByName_SubAgentRolesNotTopLevelSelectable(t *testing.T) {
	for _, name := range []mode.RoleName{mode.FileSearcher, mode.PatternFinder, mode.DependencyMapper} {
		r, ok := mode.RoleByName(name)
		require.True(t, ok)
		assert.False(t, r.TopLevelSelectable)
	}
}
