package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aicoder-go/aicoder/internal/approval"
)

// TerminalPermissionHandler is the interactive C6 approval prompt: it backs
// tool-call approval with the approval.Engine's rule-file precedence,
// dangerous-pattern detection, YOLO_MODE and session-approval cache, and
// only drops to a line-based terminal prompt when the engine itself can't
// decide (Behavior == approval.BehaviorAsk).
type TerminalPermissionHandler struct {
	engine   *approval.Engine
	reader   *bufio.Reader
	policies map[string]approval.ToolPolicy

	// guidance accumulates free-form notes the user attached via a
	// trailing "+" on an approval answer, to be folded into the next
	// user-visible turn by the control loop.
	guidance []string
}

// NewTerminalPermissionHandler creates a permission handler backed by
// engine, reading prompt answers from stdin.
func NewTerminalPermissionHandler(engine *approval.Engine) *TerminalPermissionHandler {
	return &TerminalPermissionHandler{
		engine:   engine,
		reader:   bufio.NewReader(os.Stdin),
		policies: make(map[string]approval.ToolPolicy),
	}
}

// SetToolPolicy registers the approval policy (auto_approved flag, approval
// key argument exclusions) for a tool name.
func (h *TerminalPermissionHandler) SetToolPolicy(toolName string, policy approval.ToolPolicy) {
	h.policies[toolName] = policy
}

func (h *TerminalPermissionHandler) policyFor(toolName string) approval.ToolPolicy {
	if p, ok := h.policies[toolName]; ok {
		return p
	}
	return approval.ToolPolicy{}
}

// CheckPermission runs the non-interactive part of the approval algorithm
// (steps 1-4). Returning approval.BehaviorAsk tells the registry to fall
// back to RequestPermission.
func (h *TerminalPermissionHandler) CheckPermission(toolName string, input json.RawMessage) approval.Result {
	return h.engine.Decide(toolName, input, h.policyFor(toolName), "")
}

// GetPermissionContext exposes the session approval context, e.g. for the
// /revoke_approvals and /yolo commands.
func (h *TerminalPermissionHandler) GetPermissionContext() *approval.Context {
	return h.engine.Session
}

// TakeGuidance drains and returns any guidance notes queued by "+" answers
// since the last call.
func (h *TerminalPermissionHandler) TakeGuidance() []string {
	if len(h.guidance) == 0 {
		return nil
	}
	g := h.guidance
	h.guidance = nil
	return g
}

// RequestPermission runs the interactive prompt (step 5 of the approval
// algorithm): a/s/d/c/yolo/help/diff/diff-edit, with an optional trailing
// "+" for guidance.
func (h *TerminalPermissionHandler) RequestPermission(ctx context.Context, toolName string, input json.RawMessage) (bool, error) {
	summary := summarizeToolInput(toolName, input)
	fmt.Printf("\n--- Approval required: %s ---\n", toolName)
	if summary != "" {
		fmt.Printf("  %s\n", summary)
	}

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		fmt.Print("[a]llow once, [s]ession, [d]eny, [c]ancel all, [yolo], [diff], [diff-edit], [help]: ")
		line, err := h.reader.ReadString('\n')
		if err != nil {
			return false, fmt.Errorf("reading approval answer: %w", err)
		}

		answer := approval.ParseAnswer(line)
		if answer.WantsGuidance {
			fmt.Print("guidance: ")
			note, _ := h.reader.ReadString('\n')
			note = strings.TrimSpace(note)
			if note != "" {
				h.guidance = append(h.guidance, note)
			}
		}

		switch answer.Action {
		case approval.ActionAllowOnce:
			return true, nil
		case approval.ActionAllowSession:
			key := h.engine.Key(toolName, input, h.policyFor(toolName))
			h.engine.Session.Approve(key)
			return true, nil
		case approval.ActionDeny:
			return false, nil
		case approval.ActionCancelAll:
			return false, errCancelAll
		case approval.ActionYOLO:
			h.engine.Session.SetYOLO(true)
			return true, nil
		case approval.ActionHelp:
			fmt.Println(approval.HelpText)
			continue
		case approval.ActionDiff:
			showDiff(toolName, input)
			continue
		case approval.ActionDiffEdit:
			edited, ok := openDiffEdit(toolName, input)
			if !ok {
				continue
			}
			fmt.Println(edited)
			return true, nil
		default:
			fmt.Println(`unrecognized answer, type "help" for the list of commands`)
			continue
		}
	}
}

// errCancelAll signals that the user asked to cancel every pending tool
// call in the current turn, not just this one.
var errCancelAll = fmt.Errorf("cancelled by user")

// IsCancelAll reports whether err is (or wraps) the sentinel returned when
// the user answers "c" at an approval prompt. The registry wraps it with
// fmt.Errorf("...: %w", ...) on its way back to the executor, so identity
// comparison alone would miss it.
func IsCancelAll(err error) bool {
	return errors.Is(err, errCancelAll)
}

// summarizeToolInput produces a short description of what the tool will do,
// for display above the approval prompt.
func summarizeToolInput(toolName string, input json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(input, &m); err != nil {
		return ""
	}
	str := func(key string) string {
		raw, ok := m[key]
		if !ok {
			return ""
		}
		var s string
		json.Unmarshal(raw, &s)
		return s
	}

	switch toolName {
	case "run_shell_command":
		cmd := str("command")
		if len(cmd) > 160 {
			cmd = cmd[:157] + "..."
		}
		return fmt.Sprintf("$ %s", cmd)
	case "write_file":
		return fmt.Sprintf("write: %s", str("file_path"))
	case "edit_file":
		return fmt.Sprintf("edit: %s", str("file_path"))
	case "memory":
		return fmt.Sprintf("memory %s", str("action"))
	}
	return ""
}

// showDiff prints a unified diff of a write_file/edit_file call against the
// file's current contents on disk, using the external diff tool (falls
// back to a plain before/after dump if diff isn't available).
func showDiff(toolName string, input json.RawMessage) {
	before, after, path, ok := proposedChange(toolName, input)
	if !ok {
		fmt.Println("(no diff available for this tool)")
		return
	}
	fmt.Println(renderDiff(path, before, after))
}

// openDiffEdit opens the proposed change in $EDITOR against the current
// file contents, returning the user's edited version if they saved changes.
func openDiffEdit(toolName string, input json.RawMessage) (string, bool) {
	_, after, path, ok := proposedChange(toolName, input)
	if !ok {
		fmt.Println("(diff-edit not available for this tool)")
		return "", false
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		fmt.Println("EDITOR is not set")
		return "", false
	}

	tmp, err := os.CreateTemp("", filepath.Base(path)+".*.edit")
	if err != nil {
		fmt.Printf("diff-edit: %v\n", err)
		return "", false
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(after); err != nil {
		tmp.Close()
		fmt.Printf("diff-edit: %v\n", err)
		return "", false
	}
	tmp.Close()

	cmd := exec.Command(editor, tmp.Name())
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Printf("diff-edit: editor exited with error: %v\n", err)
		return "", false
	}

	edited, err := os.ReadFile(tmp.Name())
	if err != nil {
		fmt.Printf("diff-edit: %v\n", err)
		return "", false
	}
	return string(edited), true
}

// proposedChange extracts the before/after content for a file-mutating
// tool call, to drive diff/diff-edit. ok is false for tools with no
// meaningful diff (e.g. run_shell_command).
func proposedChange(toolName string, input json.RawMessage) (before, after, path string, ok bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(input, &m); err != nil {
		return "", "", "", false
	}
	str := func(key string) string {
		raw, present := m[key]
		if !present {
			return ""
		}
		var s string
		json.Unmarshal(raw, &s)
		return s
	}

	switch toolName {
	case "write_file":
		path = str("file_path")
		after = str("content")
		if existing, err := os.ReadFile(path); err == nil {
			before = string(existing)
		}
		return before, after, path, true
	case "edit_file":
		path = str("file_path")
		oldStr, newStr := str("old_string"), str("new_string")
		existing, err := os.ReadFile(path)
		if err != nil {
			return "", newStr, path, true
		}
		before = string(existing)
		after = strings.Replace(before, oldStr, newStr, 1)
		return before, after, path, true
	}
	return "", "", "", false
}

// renderDiff shells out to the system diff tool when available, falling
// back to a plain before/after dump.
func renderDiff(path, before, after string) string {
	if _, err := exec.LookPath("diff"); err == nil {
		beforeFile, err1 := os.CreateTemp("", "before-*")
		afterFile, err2 := os.CreateTemp("", "after-*")
		if err1 == nil && err2 == nil {
			defer os.Remove(beforeFile.Name())
			defer os.Remove(afterFile.Name())
			beforeFile.WriteString(before)
			afterFile.WriteString(after)
			beforeFile.Close()
			afterFile.Close()
			out, _ := exec.Command("diff", "-u", beforeFile.Name(), afterFile.Name()).CombinedOutput()
			if len(out) > 0 {
				return fmt.Sprintf("--- %s\n+++ %s\n%s", path, path, out)
			}
			return "(no changes)"
		}
	}
	return fmt.Sprintf("--- %s (before)\n%s\n+++ %s (after)\n%s", path, before, path, after)
}

// AlwaysAllowPermissionHandler approves all tool calls without prompting.
// Used for YOLO-from-launch / non-interactive modes.
type AlwaysAllowPermissionHandler struct{}

// RequestPermission always returns true.
func (h *AlwaysAllowPermissionHandler) RequestPermission(_ context.Context, _ string, _ json.RawMessage) (bool, error) {
	return true, nil
}
