package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/aicoder-go/aicoder/internal/api"
)

// ToolExecutor executes a single tool call by name and returns its textual
// result. Implemented by tools.Registry.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, input []byte) (string, error)
	HasTool(name string) bool
}

// CancelAllChecker is implemented by a ToolExecutor's error values when the
// user answered "c" (cancel all) at an approval prompt. tools.IsCancelAll
// satisfies this shape; kept as a function value so this package doesn't
// need to import internal/tools.
type CancelAllChecker func(err error) bool

// HookRunner fires the lifecycle hooks the loop drives: onInit,
// onBeforeUserPrompt and onBeforeAiPrompt, plus draining prompt-hook
// injections. The onBeforeApprovalPrompt, onWriteFile and onEditFile hooks
// are not part of this interface. A nil HookRunner means no hooks are
// configured. Implemented by hooks.Runner.
type HookRunner interface {
	RunOnInit(ctx context.Context) error
	RunOnBeforeUserPrompt(ctx context.Context, message string) (HookSubmitResult, error)
	RunOnBeforeAiPrompt(ctx context.Context) error
	PendingInjections() []string
}

// HookSubmitResult is the outcome of an onBeforeUserPrompt hook.
type HookSubmitResult struct {
	Block   bool   // true = reject the message
	Message string // possibly modified message
}

// GuidanceSource drains free-form guidance notes the user attached to
// approval answers via a trailing "+", per the "guidance" glossary entry.
// Implemented by tools.TerminalPermissionHandler.
type GuidanceSource interface {
	TakeGuidance() []string
}

// UsageReporter receives token accounting after each API round trip, so
// the caller's C3 Stats Accumulator stays current without this package
// depending on it directly.
type UsageReporter interface {
	RecordAPIRequest(d time.Duration, err error)
	RecordUsage(promptTokens, completionTokens int)
	SetCurrentPromptSize(n int)
	RecordToolCall(d time.Duration, err error)
	RecordCompaction()
}

// Loop is the agentic control loop (C10): it orchestrates the
// APIREQ/TOOLEXEC round trip described in spec.md §4.10. A single
// SendMessage call runs until the model produces a response with no tool
// calls, cancellation occurs, or an unrecoverable error is hit.
type Loop struct {
	client    *api.Client
	history   *History
	tools     []api.ToolDefinition
	toolExec  ToolExecutor
	isCancel  CancelAllChecker
	handler   api.StreamHandler
	compactor *Compactor
	hooks     HookRunner
	guidance  GuidanceSource
	stats     UsageReporter

	onTurnComplete func(history *History)

	// pendingMessages is not read or written by the loop: guidance notes
	// are appended directly after the tool batch in executeToolCalls, and
	// hook injections are appended before each API request in run.
	pendingMessages []string
}

// LoopConfig configures the agentic loop.
type LoopConfig struct {
	Client         *api.Client
	Tools          []api.ToolDefinition
	ToolExec       ToolExecutor
	IsCancelAll    CancelAllChecker
	Handler        api.StreamHandler
	History        *History
	Compactor      *Compactor
	Hooks          HookRunner
	Guidance       GuidanceSource
	Stats          UsageReporter
	OnTurnComplete func(history *History)
}

// NewLoop creates a new agentic conversation loop.
func NewLoop(cfg LoopConfig) *Loop {
	history := cfg.History
	if history == nil {
		history = NewHistory("")
	}
	return &Loop{
		client:         cfg.Client,
		history:        history,
		tools:          cfg.Tools,
		toolExec:       cfg.ToolExec,
		isCancel:       cfg.IsCancelAll,
		handler:        cfg.Handler,
		compactor:      cfg.Compactor,
		hooks:          cfg.Hooks,
		guidance:       cfg.Guidance,
		stats:          cfg.Stats,
		onTurnComplete: cfg.OnTurnComplete,
	}
}

// History returns the loop's conversation history.
func (l *Loop) History() *History {
	return l.history
}

// SetHandler replaces the stream handler.
func (l *Loop) SetHandler(h api.StreamHandler) {
	l.handler = h
}

// SetModel changes the model used for subsequent API calls.
func (l *Loop) SetModel(model string) {
	l.client.SetModel(model)
}

// Clear resets the conversation history down to just the system message.
func (l *Loop) Clear() {
	l.history.Clear()
}

// SetOnTurnComplete replaces the turn-complete callback, e.g. so autosave
// points at a freshly-reset session after /new.
func (l *Loop) SetOnTurnComplete(fn func(history *History)) {
	l.onTurnComplete = fn
}

// Cancelled is returned by SendMessage when the API stream was cancelled
// by the user (ESC/Ctrl-C) or the server dropped the connection with no
// retryable error; per §7, no transcript change occurs.
type Cancelled struct{}

func (Cancelled) Error() string { return "request cancelled" }

// CancelAll is returned by SendMessage when the user answered "c" at an
// approval prompt; unexecuted tool calls in the batch still get synthetic
// denial tool messages so the transcript stays well-formed (§4.7 step 5).
type CancelAll struct{}

func (CancelAll) Error() string { return "all pending tool calls cancelled" }

// SendMessage sends a user message and drives the APIREQ/TOOLEXEC round
// trip (§4.10) until the assistant produces a response with no tool calls.
func (l *Loop) SendMessage(ctx context.Context, userMessage string) error {
	if l.hooks != nil {
		result, err := l.hooks.RunOnBeforeUserPrompt(ctx, userMessage)
		if err != nil {
			return fmt.Errorf("onBeforeUserPrompt hook: %w", err)
		}
		if result.Block {
			return nil
		}
		userMessage = result.Message
	}
	l.history.AddUserMessage(userMessage)
	return l.run(ctx)
}

// Compact triggers manual context compaction (the /compact command).
func (l *Loop) Compact(ctx context.Context) error {
	if l.compactor == nil {
		return fmt.Errorf("compaction not configured")
	}
	err := l.compactor.Compact(ctx, l.history)
	if err == nil && l.stats != nil {
		l.stats.RecordCompaction()
	}
	return err
}

func (l *Loop) run(ctx context.Context) error {
	for {
		if l.hooks != nil {
			if err := l.hooks.RunOnBeforeAiPrompt(ctx); err != nil {
				return fmt.Errorf("onBeforeAiPrompt hook: %w", err)
			}
			for _, inject := range l.hooks.PendingInjections() {
				l.history.AddUserMessage(inject)
			}
		}

		req := &api.ChatCompletionRequest{
			Messages: l.history.Messages(),
			Tools:    l.tools,
		}

		start := time.Now()
		result, err := l.client.CreateChatCompletionStream(ctx, req, l.handler)
		elapsed := time.Since(start)

		if err != nil {
			if l.stats != nil {
				l.stats.RecordAPIRequest(elapsed, err)
			}
			if ctx.Err() != nil {
				return Cancelled{}
			}
			return fmt.Errorf("API call: %w", err)
		}
		if l.stats != nil {
			l.stats.RecordAPIRequest(elapsed, nil)
		}
		if result == nil {
			// The adapter returns nil only on user cancellation or an
			// exhausted-retry transport failure (§4.8 contract); either
			// way no partial assistant content is kept in the transcript.
			return Cancelled{}
		}

		if result.Usage.PromptTokens > 0 || result.Usage.CompletionTokens > 0 {
			if l.stats != nil {
				l.stats.RecordUsage(result.Usage.PromptTokens, result.Usage.CompletionTokens)
			}
		} else if l.stats != nil {
			l.stats.SetCurrentPromptSize(EstimateMessagesTokens(l.history.Messages()))
		}

		if result.Message.Content == "" && len(result.Message.ToolCalls) == 0 {
			return fmt.Errorf("empty response: no content and no tool calls")
		}

		l.history.AddAssistantMessage(result.Message)

		if l.compactor != nil && l.compactor.ShouldCompact(result.Usage) {
			if err := l.compactor.Compact(ctx, l.history); err == nil {
				if l.stats != nil {
					l.stats.RecordCompaction()
				}
			}
		}

		if len(result.Message.ToolCalls) == 0 {
			l.notifyTurnComplete()
			return nil
		}

		cancelled, err := l.executeToolCalls(ctx, result.Message.ToolCalls)
		l.notifyTurnComplete()
		if err != nil {
			return err
		}
		if cancelled {
			return CancelAll{}
		}
		// Loop back into APIREQ with the tool results appended.
	}
}

// executeToolCalls implements C7 (§4.7): dispatch each tool call in
// order, append one tool message per call, and stop early (but still
// synthesize denial messages for the remaining calls) if the user cancels
// the whole batch.
func (l *Loop) executeToolCalls(ctx context.Context, calls []api.ToolCall) (cancelledAll bool, err error) {
	for i, call := range calls {
		if cancelledAll {
			l.history.AddToolResult(call.ID, "EXECUTION DENIED BY THE USER", true)
			continue
		}

		if l.toolExec == nil || !l.toolExec.HasTool(call.Function.Name) {
			l.history.AddToolResult(call.ID, fmt.Sprintf("Error: unknown tool %q", call.Function.Name), true)
			continue
		}

		args := normalizeToolArguments(call.Function.Arguments)

		start := time.Now()
		output, execErr := l.toolExec.Execute(ctx, call.Function.Name, args)
		elapsed := time.Since(start)
		if l.stats != nil {
			l.stats.RecordToolCall(elapsed, execErr)
		}

		if execErr != nil && l.isCancel != nil && l.isCancel(execErr) {
			cancelledAll = true
			l.history.AddToolResult(call.ID, "EXECUTION DENIED BY THE USER", true)
			// Remaining calls in this batch (i+1..) are handled by the
			// cancelledAll branch above on subsequent iterations.
			_ = i
			continue
		}

		if execErr != nil {
			msg := output
			if msg == "" {
				msg = fmt.Sprintf("Error executing tool: %v", execErr)
			}
			l.history.AddToolResult(call.ID, msg, true)
			continue
		}

		l.history.AddToolResult(call.ID, output, false)
	}

	// Guidance notes attached to approval answers are folded in after the
	// entire tool batch completes, per the guidance-then-denial ordering
	// decision recorded in SPEC_FULL.md/DESIGN.md.
	if l.guidance != nil {
		for _, note := range l.guidance.TakeGuidance() {
			l.history.AddUserMessage(note)
		}
	}

	return cancelledAll, nil
}

// normalizeToolArguments parses a tool call's (possibly multiply-encoded)
// argument string per the data model: up to five rounds of re-decoding
// tolerate providers that double-JSON-encode the arguments payload.
func normalizeToolArguments(raw string) []byte {
	if raw == "" {
		return []byte("{}")
	}
	cur := []byte(raw)
	for i := 0; i < 5; i++ {
		var inner string
		if err := tryUnmarshalString(cur, &inner); err != nil {
			break
		}
		cur = []byte(inner)
	}
	return normalizeToolPayload(cur)
}

func (l *Loop) notifyTurnComplete() {
	if l.onTurnComplete != nil {
		l.onTurnComplete(l.history)
	}
}

// PrintStreamHandler is a minimal StreamHandler that prints text deltas to
// stdout as they arrive and a newline at the end of each turn.
type PrintStreamHandler struct{}

func (h *PrintStreamHandler) OnRoleStart(role string) {}

func (h *PrintStreamHandler) OnTextDelta(text string) {
	fmt.Print(text)
}

func (h *PrintStreamHandler) OnToolCallDelta(delta api.ToolCallDelta) {}

func (h *PrintStreamHandler) OnFinish(reason string) {
	fmt.Println()
}

func (h *PrintStreamHandler) OnUsage(usage api.Usage) {}

func (h *PrintStreamHandler) OnError(err error) {
	fmt.Println("stream error:", err)
}
