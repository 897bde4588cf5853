package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/aicoder-go/aicoder/internal/conversation"
)

// Runner executes hooks based on a HookConfig. It implements
// conversation.HookRunner.
type Runner struct {
	config            HookConfig
	pendingInjections []string // prompt-hook content awaiting injection into the next turn
}

// NewRunner creates a new hook runner from the given config.
func NewRunner(config HookConfig) *Runner {
	return &Runner{config: config}
}

// PendingInjections returns and clears any prompt content accumulated from
// "prompt"-type hooks since the last call.
func (r *Runner) PendingInjections() []string {
	if len(r.pendingInjections) == 0 {
		return nil
	}
	result := r.pendingInjections
	r.pendingInjections = nil
	return result
}

// RunOnInit fires all onInit hooks, once at session startup.
func (r *Runner) RunOnInit(ctx context.Context) error {
	return r.runAll(ctx, EventInit, r.config.OnInit, nil)
}

// RunOnBeforeUserPrompt fires all onBeforeUserPrompt hooks. A hook can
// modify the message (via stdout) or reject it outright (non-zero exit).
func (r *Runner) RunOnBeforeUserPrompt(ctx context.Context, message string) (conversation.HookSubmitResult, error) {
	if len(r.config.OnBeforeUserPrompt) == 0 {
		return conversation.HookSubmitResult{Message: message}, nil
	}

	env := []string{
		"HOOK_EVENT=" + EventBeforeUserPrompt,
		"USER_MESSAGE=" + message,
	}

	currentMsg := message
	for _, hook := range r.config.OnBeforeUserPrompt {
		result := r.executeHook(ctx, hook, env)
		if result.Error != nil {
			return conversation.HookSubmitResult{Block: true, Message: currentMsg}, result.Error
		}
		if result.PromptInject != "" {
			r.pendingInjections = append(r.pendingInjections, result.PromptInject)
			continue
		}
		if trimmed := strings.TrimSpace(result.Output); trimmed != "" {
			currentMsg = trimmed
		}
	}
	return conversation.HookSubmitResult{Message: currentMsg}, nil
}

// RunOnBeforeAiPrompt fires all onBeforeAiPrompt hooks, once before every
// request sent to the model.
func (r *Runner) RunOnBeforeAiPrompt(ctx context.Context) error {
	return r.runAll(ctx, EventBeforeAiPrompt, r.config.OnBeforeAiPrompt, nil)
}

// RunOnBeforeApprovalPrompt fires all onBeforeApprovalPrompt hooks before a
// tool call that isn't auto-approved would be shown to the user.
func (r *Runner) RunOnBeforeApprovalPrompt(ctx context.Context, toolName string, input json.RawMessage) error {
	env := []string{
		"TOOL_NAME=" + toolName,
		"TOOL_INPUT=" + string(input),
	}
	return r.runAll(ctx, EventBeforeApprovalPrompt, r.config.OnBeforeApprovalPrompt, env)
}

// RunOnWriteFile fires all onWriteFile hooks before write_file applies its
// content.
func (r *Runner) RunOnWriteFile(ctx context.Context, path, content string) error {
	env := []string{
		"FILE_PATH=" + path,
		"FILE_CONTENT=" + truncate(content, 10000),
	}
	return r.runAll(ctx, EventWriteFile, r.config.OnWriteFile, env)
}

// RunOnEditFile fires all onEditFile hooks before edit_file applies its
// replacement.
func (r *Runner) RunOnEditFile(ctx context.Context, path, oldString, newString string) error {
	env := []string{
		"FILE_PATH=" + path,
		"OLD_STRING=" + truncate(oldString, 10000),
		"NEW_STRING=" + truncate(newString, 10000),
	}
	return r.runAll(ctx, EventEditFile, r.config.OnEditFile, env)
}

// runAll runs every hook in defs in order, stopping at the first one that
// blocks (non-zero exit).
func (r *Runner) runAll(ctx context.Context, event string, defs []HookDef, extraEnv []string) error {
	if len(defs) == 0 {
		return nil
	}
	env := append([]string{"HOOK_EVENT=" + event}, extraEnv...)
	for _, hook := range defs {
		result := r.executeHook(ctx, hook, env)
		if result.Error != nil {
			return fmt.Errorf("%s hook: %w", event, result.Error)
		}
		if result.PromptInject != "" {
			r.pendingInjections = append(r.pendingInjections, result.PromptInject)
		}
	}
	return nil
}

// executeHook runs a single hook definition and returns the result.
func (r *Runner) executeHook(ctx context.Context, hook HookDef, extraEnv []string) HookResult {
	switch hook.Type {
	case "command":
		return r.runCommand(ctx, hook.Command, extraEnv)
	case "prompt":
		return HookResult{Output: hook.Prompt, PromptInject: hook.Prompt}
	default:
		return HookResult{Error: fmt.Errorf("unknown hook type: %s", hook.Type)}
	}
}

// runCommand executes a shell command with the given extra environment variables.
func (r *Runner) runCommand(ctx context.Context, command string, extraEnv []string) HookResult {
	if command == "" {
		return HookResult{}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), extraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = err.Error()
		}
		return HookResult{
			Output: stdout.String(),
			Error:  fmt.Errorf("%s", strings.TrimSpace(errMsg)),
		}
	}

	return HookResult{Output: stdout.String()}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
