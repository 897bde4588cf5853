// Package approval implements the tool-call approval pipeline: rule-file
// based auto-approve/auto-deny policy, dangerous-shell-command detection,
// session-scoped approval caching, and the interactive prompt fallback.
package approval

import (
	"encoding/json"
	"sync"
)

// Behavior is the outcome of a permission check.
type Behavior string

const (
	BehaviorAllow       Behavior = "allow"
	BehaviorDeny        Behavior = "deny"
	BehaviorAsk         Behavior = "ask"
	BehaviorPassthrough Behavior = "passthrough"
)

// ReasonType classifies why a decision was reached.
type ReasonType string

const (
	ReasonRuleFile ReasonType = "rule_file"
	ReasonYOLO     ReasonType = "yolo_mode"
	ReasonSession  ReasonType = "session_cache"
	ReasonDanger   ReasonType = "dangerous_pattern"
	ReasonOther    ReasonType = "other"
)

// DecisionReason explains a Result, primarily for logging/testing.
type DecisionReason struct {
	Type ReasonType `json:"type"`
	Rule string     `json:"rule,omitempty"` // the rule-file pattern that matched, if any
	Note string     `json:"note,omitempty"`
}

// Result is the rich outcome of a permission check.
type Result struct {
	Behavior Behavior        `json:"behavior"`
	Message  string          `json:"message,omitempty"`
	Reason   *DecisionReason `json:"decisionReason,omitempty"`
}

// Context holds session-scoped approval state: the running cache of
// ApprovalKeys approved for the remainder of the process, and the YOLO
// mode toggle. It is safe for concurrent use, though the control loop is
// single-threaded by design.
type Context struct {
	mu       sync.RWMutex
	approved map[string]bool
	yolo     bool
}

// NewContext creates an empty session approval context.
func NewContext() *Context {
	return &Context{approved: make(map[string]bool)}
}

// YOLO returns whether YOLO_MODE is currently enabled for this session.
func (c *Context) YOLO() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.yolo
}

// SetYOLO enables or disables YOLO_MODE for the remainder of the session.
func (c *Context) SetYOLO(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yolo = on
}

// Approve adds a key to the session-approval cache, as if the user had
// answered "s" (allow for session) to a prompt bearing this key.
func (c *Context) Approve(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved[key] = true
}

// IsApproved reports whether key was previously approved for the session.
func (c *Context) IsApproved(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.approved[key]
}

// Revoke empties the session-approval cache. Backs the /revoke_approvals
// command.
func (c *Context) Revoke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved = make(map[string]bool)
}

// toolInput is a loosely-typed view over a tool call's JSON arguments,
// used by ApprovalKey derivation and dangerous-pattern detection.
type toolInput map[string]json.RawMessage

func parseInput(input json.RawMessage) toolInput {
	var m toolInput
	if err := json.Unmarshal(input, &m); err != nil {
		return nil
	}
	return m
}

func (t toolInput) str(key string) string {
	raw, ok := t[key]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}
