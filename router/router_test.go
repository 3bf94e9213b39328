package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomwork/agentcore/mode"
	"github.com/loomwork/agentcore/router"
)

func TestSelect_Precedence(t *testing.T) {
	defaultSpec := router.ModelSpec{Provider: "anthropic", Model: "claude-haiku"}
	tbl := router.NewTable(defaultSpec)

	tableSpec := router.ModelSpec{Provider: "anthropic", Model: "claude-sonnet"}
	tbl.SetRoute(mode.Builder, router.High, tableSpec)

	// Step 4: falls back to default on a miss.
	assert.Equal(t, defaultSpec, tbl.Select(mode.Builder, router.Low, nil))

	// Step 3: routing-table hit wins over the default.
	assert.Equal(t, tableSpec, tbl.Select(mode.Builder, router.High, nil))

	// Step 2: a per-turn override wins over the routing table.
	perTurn := router.ModelSpec{Provider: "openai", Model: "gpt-4o"}
	assert.Equal(t, perTurn, tbl.Select(mode.Builder, router.High, &perTurn))

	// Step 1: a single-model override wins over everything.
	single := router.ModelSpec{Provider: "ollama", Model: "llama3"}
	tbl.SetSingleModelOverride(&single)
	assert.Equal(t, single, tbl.Select(mode.Builder, router.High, &perTurn))
}

// S4 — budget check halts before any provider call is issued.
func TestCheckBudget_S4_HaltsBeforeCall(t *testing.T) {
	spec := router.ModelSpec{Provider: "anthropic", Model: "claude-opus", InputRatePerM: 15, OutputRatePerM: 75}
	tbl := router.NewTable(spec)
	limit := 0.01
	tbl.SetBudgetLimit(&limit)

	err := tbl.CheckBudget(spec, 100_000, 50_000)
	assert.ErrorIs(t, err, router.ErrBudgetExceeded)
}

func TestRecord_AccumulatesAggregateAndPerModel(t *testing.T) {
	spec := router.ModelSpec{Provider: "anthropic", Model: "claude-sonnet", InputRatePerM: 3, OutputRatePerM: 15}
	tbl := router.NewTable(spec)

	tbl.Record(spec, 1000, 500)
	tbl.Record(spec, 2000, 1000)

	agg := tbl.Aggregate()
	assert.Equal(t, 3000, agg.InputTokens)
	assert.Equal(t, 1500, agg.OutputTokens)
	assert.Equal(t, 2, agg.Requests)

	perModel := tbl.PerModel()
	assert.Len(t, perModel, 1)
	assert.Equal(t, 3000, perModel["anthropic/claude-sonnet"].InputTokens)
}

func TestSavings_ComparesAgainstBaseline(t *testing.T) {
	cheap := router.ModelSpec{Provider: "anthropic", Model: "claude-haiku", InputRatePerM: 1, OutputRatePerM: 5}
	expensive := router.ModelSpec{Provider: "anthropic", Model: "claude-opus", InputRatePerM: 15, OutputRatePerM: 75}

	tbl := router.NewTable(cheap)
	tbl.Record(cheap, 100_000, 50_000)

	absolute, percent := tbl.Savings(expensive)
	assert.Greater(t, absolute, 0.0)
	assert.Greater(t, percent, 0.0)
	assert.LessOrEqual(t, percent, 100.0)
}
