// Package router implements the model router (component E): precedence-
// based model selection, per-model usage accounting, and budget
// enforcement, grounded in the teacher's cost-tracking approach but
// narrowed to the routing table shape §4.5 describes.
package router

import (
	"errors"
	"sync"

	"github.com/loomwork/agentcore/mode"
)

// Complexity buckets a turn's estimated difficulty for routing purposes.
type Complexity string

const (
	Low    Complexity = "low"
	Medium Complexity = "medium"
	High   Complexity = "high"
)

// ModelSpec names a concrete model and its per-million-token rates, used
// both to issue requests and to account for cost.
type ModelSpec struct {
	Provider       string
	Model          string
	InputRatePerM  float64
	OutputRatePerM float64
}

// Cost computes the dollar cost of a call against this spec's rates.
func (m ModelSpec) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*m.InputRatePerM + float64(outputTokens)/1_000_000*m.OutputRatePerM
}

// ErrBudgetExceeded is returned by CheckBudget when a call's projected
// cost would breach the configured budget limit (§7's BudgetExceeded
// kind).
var ErrBudgetExceeded = errors.New("BudgetExceeded")

// routeKey indexes the routing table by (role, complexity).
type routeKey struct {
	role       mode.RoleName
	complexity Complexity
}

// Table is the total (role, complexity) -> ModelSpec routing function,
// plus the overrides and accounting state §4.5 requires.
type Table struct {
	mu sync.RWMutex

	table       map[routeKey]ModelSpec
	defaultSpec ModelSpec

	singleModelOverride *ModelSpec
	budgetLimit         *float64

	aggregateUsage Usage
	perModelUsage  map[string]Usage
}

// Usage is the running total for a model or the whole session.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Requests     int
	CostUSD      float64
}

// NewTable builds an empty routing table defaulting every (role,
// complexity) miss to defaultSpec, per precedence step 4.
func NewTable(defaultSpec ModelSpec) *Table {
	return &Table{
		table:         make(map[routeKey]ModelSpec),
		defaultSpec:   defaultSpec,
		perModelUsage: make(map[string]Usage),
	}
}

// SetRoute registers a (role, complexity) -> spec entry.
func (t *Table) SetRoute(role mode.RoleName, complexity Complexity, spec ModelSpec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table[routeKey{role, complexity}] = spec
}

// SetSingleModelOverride implements precedence step 1: when set, every
// Select call returns this spec regardless of role/complexity/override.
func (t *Table) SetSingleModelOverride(spec *ModelSpec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.singleModelOverride = spec
}

// SetBudgetLimit configures the dollar ceiling Select enforces before
// issuing a call; nil disables budget enforcement.
func (t *Table) SetBudgetLimit(limit *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budgetLimit = limit
}

// Select implements §4.5's four-step precedence. perTurnOverride is the
// caller-supplied per-turn spec (step 2), nil when absent.
func (t *Table) Select(role mode.RoleName, complexity Complexity, perTurnOverride *ModelSpec) ModelSpec {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.singleModelOverride != nil {
		return *t.singleModelOverride
	}
	if perTurnOverride != nil {
		return *perTurnOverride
	}
	if spec, ok := t.table[routeKey{role, complexity}]; ok {
		return spec
	}
	return t.defaultSpec
}

// CheckBudget projects the cost of a call at estimatedInputTokens and
// estimatedOutputTokens against spec's rates and the configured limit,
// returning ErrBudgetExceeded before any provider call is issued (§4.5,
// §7).
func (t *Table) CheckBudget(spec ModelSpec, estimatedInputTokens, estimatedOutputTokens int) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.budgetLimit == nil {
		return nil
	}
	projected := t.aggregateUsage.CostUSD + spec.Cost(estimatedInputTokens, estimatedOutputTokens)
	if projected > *t.budgetLimit {
		return ErrBudgetExceeded
	}
	return nil
}

// Record adds one provider response's authoritative usage to both the
// aggregate and per-model counters (§4.5).
func (t *Table) Record(spec ModelSpec, inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost := spec.Cost(inputTokens, outputTokens)
	t.aggregateUsage.InputTokens += inputTokens
	t.aggregateUsage.OutputTokens += outputTokens
	t.aggregateUsage.Requests++
	t.aggregateUsage.CostUSD += cost

	key := spec.Provider + "/" + spec.Model
	u := t.perModelUsage[key]
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.Requests++
	u.CostUSD += cost
	t.perModelUsage[key] = u
}

// Aggregate returns the running total across every model used so far.
func (t *Table) Aggregate() Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.aggregateUsage
}

// PerModel returns a copy of the per-model usage map.
func (t *Table) PerModel() map[string]Usage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Usage, len(t.perModelUsage))
	for k, v := range t.perModelUsage {
		out[k] = v
	}
	return out
}

// Savings reports the actual aggregate cost against the counterfactual
// cost of having routed every recorded request through baseline instead,
// as both an absolute dollar amount and a percentage (§4.5).
func (t *Table) Savings(baseline ModelSpec) (absoluteUSD float64, percent float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counterfactual := baseline.Cost(t.aggregateUsage.InputTokens, t.aggregateUsage.OutputTokens)
	absoluteUSD = counterfactual - t.aggregateUsage.CostUSD
	if counterfactual == 0 {
		return absoluteUSD, 0
	}
	return absoluteUSD, absoluteUSD / counterfactual * 100
}
