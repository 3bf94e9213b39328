// Package tokens implements the token estimator (component A): a cheap,
// monotonic, stable approximation of how many tokens a string will cost a
// given model family. It is used only at context-item insertion and for
// pruning accounting; providers report authoritative usage separately and
// the session's counters are reconciled from that, never from this
// package's numbers.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the fallback ratio used when no encoding can be
// resolved for a model family (offline, unknown model, encoding fetch
// failure). 4 bytes per token is the conventional English-text average.
const charsPerToken = 4

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// familyEncodings maps a coarse model family to the tiktoken encoding
// that best approximates its tokenizer. Non-OpenAI families have no
// public BPE vocabulary; cl100k_base is the closest stable approximation
// the rest of the ecosystem converges on for rough accounting.
var familyEncodings = map[string]string{
	"gpt-4":   "cl100k_base",
	"gpt-4o":  "o200k_base",
	"gpt-3.5": "cl100k_base",
	"claude":  "cl100k_base",
	"gemini":  "cl100k_base",
	"ollama":  "cl100k_base",
}

// Estimate approximates the token cost of text for modelFamily. It is
// monotonic (longer text never yields fewer tokens) and stable (same
// input and family always produce the same output within a process).
func Estimate(text, modelFamily string) int {
	enc := encodingFor(modelFamily)
	if enc == nil {
		return (len(text) + charsPerToken - 1) / charsPerToken
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateMessage adds the per-message role/turn overhead OpenAI-style
// chat formats impose, so a running estimate of a whole conversation
// stays close to what the provider will actually bill.
func EstimateMessage(role, content, modelFamily string) int {
	const perMessageOverhead = 3
	return perMessageOverhead + Estimate(role, modelFamily) + Estimate(content, modelFamily)
}

func encodingFor(modelFamily string) *tiktoken.Tiktoken {
	encodingName, known := familyEncodings[modelFamily]
	if !known {
		return nil
	}

	cacheMu.RLock()
	enc, ok := encodingCache[encodingName]
	cacheMu.RUnlock()
	if ok {
		return enc
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil
	}

	cacheMu.Lock()
	encodingCache[encodingName] = enc
	cacheMu.Unlock()
	return enc
}
