package conversation

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aicoder-go/aicoder/internal/api"
)

// JSONStreamHandler collects a full turn and emits a single JSON object
// once it completes. Used with --output-format json.
type JSONStreamHandler struct {
	writer io.Writer

	role         string
	text         string
	finishReason string
	usage        api.Usage

	toolCalls map[int]*api.ToolCall
	toolOrder []int
}

// NewJSONStreamHandler creates a handler that writes a single JSON message
// once the turn finishes.
func NewJSONStreamHandler(w io.Writer) *JSONStreamHandler {
	return &JSONStreamHandler{
		writer:    w,
		toolCalls: make(map[int]*api.ToolCall),
	}
}

func (h *JSONStreamHandler) OnRoleStart(role string) { h.role = role }

func (h *JSONStreamHandler) OnTextDelta(text string) { h.text += text }

func (h *JSONStreamHandler) OnToolCallDelta(delta api.ToolCallDelta) {
	tc, ok := h.toolCalls[delta.Index]
	if !ok {
		tc = &api.ToolCall{Index: delta.Index, Type: "function"}
		h.toolCalls[delta.Index] = tc
		h.toolOrder = append(h.toolOrder, delta.Index)
	}
	if delta.ID != "" {
		tc.ID = delta.ID
	}
	if delta.Function.Name != "" {
		tc.Function.Name += delta.Function.Name
	}
	if delta.Function.Arguments != "" {
		tc.Function.Arguments += delta.Function.Arguments
	}
}

func (h *JSONStreamHandler) OnFinish(reason string) {
	h.finishReason = reason

	calls := make([]api.ToolCall, 0, len(h.toolOrder))
	for _, idx := range h.toolOrder {
		calls = append(calls, *h.toolCalls[idx])
	}

	role := h.role
	if role == "" {
		role = api.RoleAssistant
	}

	msg := map[string]interface{}{
		"type":          "message",
		"role":          role,
		"content":       h.text,
		"tool_calls":    calls,
		"finish_reason": h.finishReason,
		"usage": map[string]interface{}{
			"prompt_tokens":     h.usage.PromptTokens,
			"completion_tokens": h.usage.CompletionTokens,
			"total_tokens":      h.usage.TotalTokens,
		},
	}
	data, _ := json.Marshal(msg)
	fmt.Fprintln(h.writer, string(data))
}

func (h *JSONStreamHandler) OnUsage(usage api.Usage) { h.usage = usage }

func (h *JSONStreamHandler) OnError(err error) {
	errMsg := map[string]interface{}{
		"type":  "error",
		"error": err.Error(),
	}
	data, _ := json.Marshal(errMsg)
	fmt.Fprintln(h.writer, string(data))
}

// StreamJSONStreamHandler emits one JSON line per streaming event as it
// arrives. Used with --output-format stream-json.
type StreamJSONStreamHandler struct {
	writer io.Writer
}

// NewStreamJSONStreamHandler creates a handler that writes one JSON line
// per event.
func NewStreamJSONStreamHandler(w io.Writer) *StreamJSONStreamHandler {
	return &StreamJSONStreamHandler{writer: w}
}

func (h *StreamJSONStreamHandler) emit(v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintln(h.writer, string(data))
}

func (h *StreamJSONStreamHandler) OnRoleStart(role string) {
	h.emit(map[string]interface{}{
		"type": "role_start",
		"role": role,
	})
}

func (h *StreamJSONStreamHandler) OnTextDelta(text string) {
	h.emit(map[string]interface{}{
		"type": "text_delta",
		"text": text,
	})
}

func (h *StreamJSONStreamHandler) OnToolCallDelta(delta api.ToolCallDelta) {
	h.emit(map[string]interface{}{
		"type":  "tool_call_delta",
		"delta": delta,
	})
}

func (h *StreamJSONStreamHandler) OnFinish(reason string) {
	h.emit(map[string]interface{}{
		"type":   "finish",
		"reason": reason,
	})
}

func (h *StreamJSONStreamHandler) OnUsage(usage api.Usage) {
	h.emit(map[string]interface{}{
		"type":  "usage",
		"usage": usage,
	})
}

func (h *StreamJSONStreamHandler) OnError(err error) {
	h.emit(map[string]interface{}{
		"type":  "error",
		"error": err.Error(),
	})
}
