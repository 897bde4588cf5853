// Package stats implements the process-wide counters accumulator (spec.md
// §4.3 / §3): API request/tool-call counts, timings, token totals, and the
// current-prompt-size gauge used by the auto-compaction trigger.
package stats

import (
	"fmt"
	"sync"
	"time"
)

// Stats accumulates counters over the life of one process. All updates go
// through a single mutex; the control loop is single-threaded by design
// (§5) but background helpers (MCP clients, the streaming socket) may
// report from other goroutines, so the lock stays cheap insurance.
type Stats struct {
	mu sync.Mutex

	APIRequests  int
	APISuccess   int
	APIErrors    int
	APITimeSpent time.Duration

	ToolCalls    int
	ToolErrors   int
	ToolTimeSpent time.Duration

	Compactions int

	PromptTokens     int
	CompletionTokens int

	// CurrentPromptSize is the token count of the next outgoing request,
	// recomputed after every successful API response (§3 invariants).
	CurrentPromptSize int

	started time.Time
}

// New creates a Stats accumulator with its clock started.
func New() *Stats {
	return &Stats{started: time.Now()}
}

// Reset zeroes every counter and restarts the elapsed-time clock.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.APIRequests, s.APISuccess, s.APIErrors, s.APITimeSpent = 0, 0, 0, 0
	s.ToolCalls, s.ToolErrors, s.ToolTimeSpent = 0, 0, 0
	s.Compactions = 0
	s.PromptTokens, s.CompletionTokens, s.CurrentPromptSize = 0, 0, 0
	s.started = time.Now()
}

// RecordAPIRequest records the outcome and wall-clock duration of one
// chat-completions round trip.
func (s *Stats) RecordAPIRequest(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.APIRequests++
	s.APITimeSpent += d
	if err != nil {
		s.APIErrors++
	} else {
		s.APISuccess++
	}
}

// RecordUsage updates token totals and the current-prompt-size gauge from
// server-reported usage. Called only when the endpoint's response carries
// a usage object; otherwise the caller falls back to the token estimator
// and calls SetCurrentPromptSize directly.
func (s *Stats) RecordUsage(promptTokens, completionTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PromptTokens += promptTokens
	s.CompletionTokens += completionTokens
	s.CurrentPromptSize = promptTokens
}

// SetCurrentPromptSize sets the prompt-size gauge from the local token
// estimator, used when the endpoint's response omitted usage.
func (s *Stats) SetCurrentPromptSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentPromptSize = n
}

// RecordToolCall records the outcome and duration of one tool execution.
func (s *Stats) RecordToolCall(d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolCalls++
	s.ToolTimeSpent += d
	if err != nil {
		s.ToolErrors++
	}
}

// RecordCompaction increments the compaction counter.
func (s *Stats) RecordCompaction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Compactions++
}

// Snapshot is an immutable copy of the counters, safe to format or
// serialize without holding the Stats lock.
type Snapshot struct {
	Elapsed           time.Duration
	APIRequests       int
	APISuccess        int
	APIErrors         int
	APITimeSpent      time.Duration
	ToolCalls         int
	ToolErrors        int
	ToolTimeSpent     time.Duration
	Compactions       int
	PromptTokens      int
	CompletionTokens  int
	CurrentPromptSize int
}

// Snapshot takes a consistent copy of every counter.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Elapsed:           time.Since(s.started),
		APIRequests:       s.APIRequests,
		APISuccess:        s.APISuccess,
		APIErrors:         s.APIErrors,
		APITimeSpent:      s.APITimeSpent,
		ToolCalls:         s.ToolCalls,
		ToolErrors:        s.ToolErrors,
		ToolTimeSpent:     s.ToolTimeSpent,
		Compactions:       s.Compactions,
		PromptTokens:      s.PromptTokens,
		CompletionTokens:  s.CompletionTokens,
		CurrentPromptSize: s.CurrentPromptSize,
	}
}

// TokensPerSecond reports completion_tokens / api_time_spent, 0 if no API
// time has been recorded yet.
func (sn Snapshot) TokensPerSecond() float64 {
	secs := sn.APITimeSpent.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(sn.CompletionTokens) / secs
}

// Format renders a human-readable stats block, as printed by the /stats
// command and on exit. contextSize, when > 0, adds a context-usage bar
// showing CurrentPromptSize as a fraction of the window.
func (sn Snapshot) Format(contextSize int) string {
	out := fmt.Sprintf(
		"Session stats:\n"+
			"  elapsed:        %s\n"+
			"  API requests:   %d (%d ok, %d errors), %s spent\n"+
			"  tool calls:     %d (%d errors), %s spent\n"+
			"  tokens:         %d prompt, %d completion (%.1f tok/s)\n"+
			"  compactions:    %d\n",
		sn.Elapsed.Round(time.Second),
		sn.APIRequests, sn.APISuccess, sn.APIErrors, sn.APITimeSpent.Round(time.Millisecond),
		sn.ToolCalls, sn.ToolErrors, sn.ToolTimeSpent.Round(time.Millisecond),
		sn.PromptTokens, sn.CompletionTokens, sn.TokensPerSecond(),
		sn.Compactions,
	)
	if contextSize > 0 {
		pct := float64(sn.CurrentPromptSize) / float64(contextSize) * 100
		if pct > 100 {
			pct = 100
		}
		const barWidth = 20
		filled := int(pct / 100 * barWidth)
		bar := ""
		for i := 0; i < barWidth; i++ {
			if i < filled {
				bar += "#"
			} else {
				bar += "-"
			}
		}
		out += fmt.Sprintf("  context:        [%s] %d/%d tokens (%.1f%%)\n", bar, sn.CurrentPromptSize, contextSize, pct)
	}
	return out
}
