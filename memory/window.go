package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// pruneThreshold and pruneTarget implement the hysteresis §4.3 calls for:
// pruning triggers at 80% utilization and removes at least 30% of the
// current token count (or every evictable item, whichever comes first),
// so a single prune buys real headroom without flapping back into
// pruning on the very next insertion.
const (
	pruneThreshold = 0.8
	pruneTarget    = 0.3
)

// Kind used for the error taxonomy's ContextOverflow case.
type OverflowError struct {
	ItemTokens int
	MaxTokens  int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("ContextOverflow: item costs %d tokens, window max is %d", e.ItemTokens, e.MaxTokens)
}

// Summarizer folds a run of evicted items of the same kind into a single
// condensed replacement. The zero-value (nil) working memory falls back
// to a deterministic truncating concatenation; a real implementation may
// call out to an LLM, which is why Prune's caller-visible contract treats
// this as a suspension point (§5).
type Summarizer interface {
	Summarize(items []Item) string
}

// Stats is the statistics snapshot §4.3 step 5 requires.
type Stats struct {
	TotalItems   int
	TotalTokens  int
	Utilization  float64
	PruningCount int
	StickyCount  int
}

// Window is the working memory: an ordered, bounded sequence of Items
// with relevance-based eviction. One Window belongs exclusively to one
// Session (§5's shared-resource policy) — it is never shared or mutated
// from outside its owning turn loop.
type Window struct {
	mu           sync.Mutex
	items        []Item
	maxTokens    int
	tokenCount   int
	currentTask  string
	pruningCount int
	summarizer   Summarizer
}

// NewWindow creates an empty working memory bounded at maxTokens.
func NewWindow(maxTokens int, summarizer Summarizer) *Window {
	if summarizer == nil {
		summarizer = concatSummarizer{}
	}
	return &Window{maxTokens: maxTokens, summarizer: summarizer}
}

// SetCurrentTask updates the task the task-boost term scores against.
func (w *Window) SetCurrentTask(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentTask = taskID
}

// Add appends an item in O(1) amortized time. A single item whose own
// token cost exceeds the window's budget is rejected outright with
// OverflowError, leaving the window untouched — oversized payloads are
// the turn loop's problem to pre-summarize, not this window's to corrupt
// itself over.
func (w *Window) Add(item Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if item.TokenCost > w.maxTokens {
		return &OverflowError{ItemTokens: item.TokenCost, MaxTokens: w.maxTokens}
	}

	w.items = append(w.items, item)
	w.tokenCount += item.TokenCost
	return nil
}

// MaxTokens returns the window's configured token budget.
func (w *Window) MaxTokens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxTokens
}

// NeedsPruning reports whether token_count has strictly exceeded the 80%
// threshold.
func (w *Window) NeedsPruning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.needsPruningLocked()
}

func (w *Window) needsPruningLocked() bool {
	return float64(w.tokenCount) > pruneThreshold*float64(w.maxTokens)
}

// Snapshot returns the items in original insertion order — the exact
// order the model sees them rendered into a prompt.
func (w *Window) Snapshot() []Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Item, len(w.items))
	copy(out, w.items)
	return out
}

// Stats returns the statistics snapshot.
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	sticky := 0
	for _, it := range w.items {
		if it.Sticky {
			sticky++
		}
	}
	utilization := 0.0
	if w.maxTokens > 0 {
		utilization = float64(w.tokenCount) / float64(w.maxTokens)
	}
	return Stats{
		TotalItems:   len(w.items),
		TotalTokens:  w.tokenCount,
		Utilization:  utilization,
		PruningCount: w.pruningCount,
		StickyCount:  sticky,
	}
}

// candidate pairs an item's position in w.items with its computed score,
// for sorting without disturbing insertion order.
type candidate struct {
	index int
	score float64
}

// Prune runs one eviction pass (§4.3 steps 1-5): score every non-sticky
// item, evict ascending by score (oldest-first tie-break) until at least
// 30% of tokens are freed, fold consecutive same-kind evictions into a
// single summary item reinserted at the oldest evicted member's position,
// and bump the pruning counter. O(n log n) in len(items).
func (w *Window) Prune() (evicted int, tokensFreed int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.pruningCount++

	deps := dependentCounts(w.items)

	candidates := make([]candidate, 0, len(w.items))
	for i, it := range w.items {
		if it.Sticky {
			continue
		}
		candidates = append(candidates, candidate{index: i, score: score(it, now, w.currentTask, deps[it.ID])})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score < cb.score
		}
		return w.items[ca.index].Timestamp.Before(w.items[cb.index].Timestamp)
	})

	target := pruneTarget * float64(w.tokenCount)
	toEvict := make(map[int]bool, len(candidates))
	freed := 0
	for _, c := range candidates {
		if float64(freed) >= target {
			break
		}
		toEvict[c.index] = true
		freed += w.items[c.index].TokenCost
	}

	if len(toEvict) == 0 {
		return 0, 0
	}

	w.items = w.foldEvicted(toEvict)
	w.tokenCount = 0
	for _, it := range w.items {
		w.tokenCount += it.TokenCost
	}

	return len(toEvict), freed
}

// foldEvicted rebuilds the item slice, replacing each maximal run of
// consecutively-evicted same-kind items with one summary item positioned
// where the run's oldest member stood.
func (w *Window) foldEvicted(toEvict map[int]bool) []Item {
	out := make([]Item, 0, len(w.items))
	var run []Item

	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(run) == 1 {
			// A lone evicted item simply disappears; summarization only
			// applies to runs worth condensing.
			run = nil
			return
		}
		out = append(out, w.summarize(run))
		run = nil
	}

	for i, it := range w.items {
		if !toEvict[i] {
			flush()
			out = append(out, it)
			continue
		}
		if len(run) > 0 && run[len(run)-1].Kind != it.Kind {
			flush()
		}
		run = append(run, it)
	}
	flush()

	return out
}

func (w *Window) summarize(run []Item) Item {
	content := w.summarizer.Summarize(run)
	origTokens := 0
	for _, it := range run {
		origTokens += it.TokenCost
	}
	reduced := origTokens / 3
	if reduced == 0 {
		reduced = 1
	}
	item := NewItem(KindAssistantMsg, content, reduced)
	item.Timestamp = run[0].Timestamp
	item.Sticky = false
	return item
}

// concatSummarizer is the default, LLM-free summarizer: a deterministic,
// truncating fold. Good enough to keep the window's invariants correct
// offline; a real deployment wires in an LLM-backed Summarizer instead.
type concatSummarizer struct{}

func (concatSummarizer) Summarize(items []Item) string {
	const maxPerItem = 120
	out := fmt.Sprintf("[summary of %d evicted %s items]", len(items), items[0].Kind)
	for _, it := range items {
		c := it.Content
		if len(c) > maxPerItem {
			c = c[:maxPerItem] + "..."
		}
		out += " " + c
	}
	return out
}
