package conversation

import (
	"sync"
	"unicode"

	"github.com/aicoder-go/aicoder/internal/api"
)

// TokenWeights are the per-character-class weights used by the local token
// estimator (§4.9), expressed as tokens-per-character so a letter run of
// length N contributes roughly N*LetterWeight tokens. Config.
// DEFAULT_TRUNCATION_LIMIT-style env overrides are wired in by the caller
// via SetTokenWeights; these defaults approximate a ~4-chars-per-token
// English-text ratio.
type TokenWeights struct {
	Letter     float64
	Digit      float64
	Punct      float64
	Whitespace float64
	Other      float64
}

// DefaultTokenWeights are the built-in weights, tunable via config (§4.2).
var DefaultTokenWeights = TokenWeights{
	Letter:     0.25, // ~4 letters per token
	Digit:      0.5,  // ~2 digits per token
	Punct:      0.5,
	Whitespace: 0.25,
	Other:      1.0,
}

var (
	weightsMu sync.RWMutex
	weights   = DefaultTokenWeights
)

// SetTokenWeights overrides the package-wide weights used by EstimateTokens,
// e.g. from config-sourced values at startup.
func SetTokenWeights(w TokenWeights) {
	weightsMu.Lock()
	defer weightsMu.Unlock()
	weights = w
}

func currentWeights() TokenWeights {
	weightsMu.RLock()
	defer weightsMu.RUnlock()
	return weights
}

// estimateCache memoizes per-string estimates by identity (string value),
// so repeated estimation of the unchanged prefix of a growing transcript
// costs O(new characters) rather than O(total characters). The estimator
// is only ever an upper-bound approximation used when the server response
// omits usage (§4.9).
var (
	cacheMu sync.Mutex
	cache   = make(map[string]int)
)

// EstimateTokens returns the estimated token count of s using the
// character-class weighted sum.
func EstimateTokens(s string) int {
	cacheMu.Lock()
	if n, ok := cache[s]; ok {
		cacheMu.Unlock()
		return n
	}
	cacheMu.Unlock()

	w := currentWeights()
	var total float64
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			total += w.Letter
		case unicode.IsDigit(r):
			total += w.Digit
		case unicode.IsSpace(r):
			total += w.Whitespace
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			total += w.Punct
		default:
			total += w.Other
		}
	}
	n := int(total + 0.5)

	cacheMu.Lock()
	// Bound cache growth: a long-running process shouldn't accumulate an
	// unbounded number of distinct message strings indefinitely, but the
	// common case (stable transcript prefix) benefits enormously from the
	// cache, so only clear on pathological growth.
	if len(cache) > 20000 {
		cache = make(map[string]int)
	}
	cache[s] = n
	cacheMu.Unlock()

	return n
}

// EstimateMessagesTokens estimates the total prompt-token cost of a full
// messages array, used as the current_prompt_size fallback when the
// endpoint's response carries no usage object.
func EstimateMessagesTokens(msgs []api.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
		for _, tc := range m.ToolCalls {
			total += EstimateTokens(tc.Function.Name)
			total += EstimateTokens(tc.Function.Arguments)
		}
	}
	return total
}

// EstimateToolDefinitionsTokens estimates the token cost of the tool
// definitions sent with every request, cached the same way message content
// is.
func EstimateToolDefinitionsTokens(defs []api.ToolDefinition) int {
	total := 0
	for _, d := range defs {
		total += EstimateTokens(d.Function.Name)
		total += EstimateTokens(d.Function.Description)
		total += EstimateTokens(string(d.Function.Parameters))
	}
	return total
}
