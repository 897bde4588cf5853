package approval

import "strings"

// Action is the decision encoded by a single answer line at the
// interactive approval prompt.
type Action string

const (
	ActionAllowOnce   Action = "allow_once"   // "a"
	ActionAllowSession Action = "allow_session" // "s"
	ActionDeny        Action = "deny"         // "d"
	ActionCancelAll   Action = "cancel_all"   // "c"
	ActionYOLO        Action = "yolo"         // "yolo"
	ActionHelp        Action = "help"         // "help"
	ActionDiff        Action = "diff"         // "diff"
	ActionDiffEdit    Action = "diff_edit"    // "diff-edit"
	ActionUnknown     Action = "unknown"
)

// Answer is the parsed form of one line of user input at an approval
// prompt: the chosen Action, plus whether a trailing "+" requested
// free-form guidance to be appended to the conversation afterward.
type Answer struct {
	Action        Action
	WantsGuidance bool
}

// ParseAnswer interprets a single-line answer to the approval prompt.
// Accepted tokens (case-insensitive, surrounding whitespace trimmed): a
// trailing "+" on any letter token requests guidance and is stripped
// before matching.
func ParseAnswer(line string) Answer {
	token := strings.ToLower(strings.TrimSpace(line))
	// A trailing ')' from a rendered menu item ("a) allow") is tolerated.
	if idx := strings.IndexByte(token, ')'); idx > 0 {
		token = token[:idx]
	}

	guidance := false
	if strings.HasSuffix(token, "+") {
		guidance = true
		token = strings.TrimSuffix(token, "+")
	}

	var action Action
	switch token {
	case "a", "allow":
		action = ActionAllowOnce
	case "s", "session":
		action = ActionAllowSession
	case "d", "deny":
		action = ActionDeny
	case "c", "cancel":
		action = ActionCancelAll
	case "yolo":
		action = ActionYOLO
	case "help", "h", "?":
		action = ActionHelp
	case "diff":
		action = ActionDiff
	case "diff-edit", "diffedit":
		action = ActionDiffEdit
	default:
		action = ActionUnknown
	}

	return Answer{Action: action, WantsGuidance: guidance}
}

// HelpText is printed when the user answers "help" at an approval prompt.
const HelpText = `Approval prompt commands:
  a        allow this one call
  s        allow for the rest of this session
  d        deny this call
  c        cancel all pending tool calls
  yolo     enable YOLO_MODE (auto-approve, still subject to auto_deny) and approve this call
  diff     show a diff of the proposed file change
  diff-edit  open the proposed change in $EDITOR, apply your edits instead
  help     show this message
Append "+" to any letter (e.g. "a+") to add a free-form guidance note afterward.`
