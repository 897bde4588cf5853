package approval

import "strings"

// ToolPolicy mirrors the subset of ToolDefinition flags that drive
// approval decisions: whether the tool is auto-approved outright, and how
// its ApprovalKey should be derived.
type ToolPolicy struct {
	AutoApproved         bool
	ApprovalExcludesArgs bool // approval_key_exclude_arguments == all args
	ExcludeArgKeys       []string
}

// Engine evaluates the approval algorithm from the data model: rule-file
// precedence, dangerous-pattern detection, YOLO_MODE, and the session
// approval cache. It does not itself perform the interactive prompt —
// callers use Decide to find out whether a prompt is needed, and Approve /
// the Context to record the outcome.
type Engine struct {
	Rules   *RuleSet
	Session *Context
}

// NewEngine creates an approval engine backed by the given rule set and
// session context.
func NewEngine(rules *RuleSet, session *Context) *Engine {
	if session == nil {
		session = NewContext()
	}
	return &Engine{Rules: rules, Session: session}
}

// Decide runs steps 1-4 of the approval algorithm and returns a Result.
// Behavior is BehaviorAsk when the caller must fall back to the
// interactive prompt (step 5); any other Behavior is final.
func (e *Engine) Decide(toolName string, input []byte, policy ToolPolicy, promptMessage string) Result {
	if strings.HasPrefix(promptMessage, "Error:") {
		return Result{Behavior: BehaviorDeny, Message: promptMessage, Reason: &DecisionReason{Type: ReasonOther, Note: "validation error"}}
	}

	if e.Session.YOLO() {
		if toolName == "run_shell_command" {
			cmd := parseInput(input).str("command")
			if ok, rule := e.Rules.AutoDeny.Matches(cmd); ok {
				return Result{Behavior: BehaviorDeny, Message: "denied by run_shell_command.auto_deny under YOLO_MODE", Reason: &DecisionReason{Type: ReasonRuleFile, Rule: rule}}
			}
		}
		return Result{Behavior: BehaviorAllow, Reason: &DecisionReason{Type: ReasonYOLO}}
	}

	if policy.AutoApproved {
		return Result{Behavior: BehaviorAllow, Reason: &DecisionReason{Type: ReasonOther, Note: "auto_approved tool"}}
	}

	key := ApprovalKey(toolName, input, policy.ExcludeArgKeys, policy.ApprovalExcludesArgs)
	if e.Session.IsApproved(key) {
		if toolName == "run_shell_command" {
			cmd := parseInput(input).str("command")
			if ok, rule := e.Rules.AutoDeny.Matches(cmd); ok {
				return Result{Behavior: BehaviorDeny, Message: "denied by run_shell_command.auto_deny (overrides prior session approval)", Reason: &DecisionReason{Type: ReasonRuleFile, Rule: rule}}
			}
			if dangerous, reason := DangerousPattern(cmd); dangerous {
				return Result{Behavior: BehaviorAsk, Message: reason, Reason: &DecisionReason{Type: ReasonDanger, Note: reason}}
			}
		}
		return Result{Behavior: BehaviorAllow, Reason: &DecisionReason{Type: ReasonSession}}
	}

	if toolName == "run_shell_command" {
		cmd := parseInput(input).str("command")
		result := e.Rules.Evaluate(cmd)
		if result.Behavior == BehaviorDeny {
			return result
		}
		if dangerous, reason := DangerousPattern(cmd); dangerous {
			return Result{Behavior: BehaviorAsk, Message: reason, Reason: &DecisionReason{Type: ReasonDanger, Note: reason}}
		}
		return result
	}

	return Result{Behavior: BehaviorAsk}
}

// Key exposes ApprovalKey derivation using this engine's policy
// conventions, for callers (e.g. the "s" session-approval prompt answer)
// that need to record a decision after Decide already returned Ask.
func (e *Engine) Key(toolName string, input []byte, policy ToolPolicy) string {
	return ApprovalKey(toolName, input, policy.ExcludeArgKeys, policy.ApprovalExcludesArgs)
}
