package memory

import (
	"math"
	"time"
)

// typeWeight returns the base weight for an item's kind per §4.3. The
// system-prompt weight is nominally infinite; it is never consulted
// because system-prompt items are always sticky and skip scoring
// entirely.
func typeWeight(item Item) float64 {
	switch item.Kind {
	case KindSystemPrompt:
		return math.Inf(1)
	case KindTaskState:
		return 2.0
	case KindUserMsg:
		return 1.5
	case KindAssistantMsg:
		if item.HasToolCalls {
			return 1.2
		}
		return 0.9
	case KindToolResult:
		return 0.8
	case KindCodeSnippet:
		return 0.7
	case KindKGQueryResult:
		return 0.6
	default:
		return 0.5
	}
}

// timeDecay implements exp(-Δ_minutes / 60), giving a half-life of
// roughly 42 minutes.
func timeDecay(age time.Duration) float64 {
	minutes := age.Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return math.Exp(-minutes / 60.0)
}

// taskBoost doubles relevance for items tied to the session's current
// task so a topic switch doesn't instantly bury in-flight context.
func taskBoost(item Item, currentTask string) float64 {
	if currentTask != "" && item.TaskID == currentTask {
		return 2.0
	}
	return 1.0
}

// dependencyBoost rewards items other live items depend on, by 0.2 per
// dependent, preventing a referenced code snippet from being orphaned
// out from under its explanation.
func dependencyBoost(dependentCount int) float64 {
	return 1.0 + 0.2*float64(dependentCount)
}

// score computes the relevance of a single non-sticky item at time now,
// given the current task id and how many live items depend on it.
// Clamped to [0, 100].
func score(item Item, now time.Time, currentTask string, dependentCount int) float64 {
	s := typeWeight(item) *
		timeDecay(now.Sub(item.Timestamp)) *
		taskBoost(item, currentTask) *
		dependencyBoost(dependentCount) *
		item.BaseRelevance

	if math.IsInf(s, 1) || s > 100 {
		return 100
	}
	if s < 0 {
		return 0
	}
	return s
}

// dependentCounts builds, for every item id, how many OTHER live items
// list it as a dependency. O(n + total-deps).
func dependentCounts(items []Item) map[string]int {
	counts := make(map[string]int, len(items))
	for _, it := range items {
		for dep := range it.Dependencies {
			counts[dep]++
		}
	}
	return counts
}
