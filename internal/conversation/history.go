package conversation

import (
	"github.com/aicoder-go/aicoder/internal/api"
)

// History holds the linear message log sent to the model on every turn.
// Message[0] is always the system message; it is never removed, including
// during compaction.
type History struct {
	messages []api.Message
}

// NewHistory creates a history seeded with a system message.
func NewHistory(systemPrompt string) *History {
	return &History{messages: []api.Message{api.NewSystemMessage(systemPrompt)}}
}

// Messages returns the full message slice, in wire order. Callers must not
// mutate the returned slice.
func (h *History) Messages() []api.Message {
	return h.messages
}

// Len returns the number of messages in the history.
func (h *History) Len() int {
	return len(h.messages)
}

// AddUserMessage appends a user-role message.
func (h *History) AddUserMessage(text string) {
	h.messages = append(h.messages, api.NewUserMessage(text))
}

// AddAssistantMessage appends an assistant-role message, typically the
// result of a completed API turn (text and/or tool calls).
func (h *History) AddAssistantMessage(msg api.Message) {
	msg.Role = api.RoleAssistant
	h.messages = append(h.messages, msg)
}

// AddToolResult appends a tool-role message reporting the outcome of a
// single tool call back to the model.
func (h *History) AddToolResult(toolCallID, content string, isError bool) {
	if isError && content == "" {
		content = "Error: tool call failed"
	}
	h.messages = append(h.messages, api.NewToolMessage(toolCallID, content))
}

// ReplaceRange replaces messages[start:end] with a single summary message,
// used by the compactor to collapse the oldest portion of the history.
// Callers must keep start >= 1 so the system message at index 0 survives.
func (h *History) ReplaceRange(start, end int, summary api.Message) {
	if start < 0 || end > len(h.messages) || start > end {
		return
	}
	rest := make([]api.Message, 0, len(h.messages)-(end-start)+1)
	rest = append(rest, h.messages[:start]...)
	rest = append(rest, summary)
	rest = append(rest, h.messages[end:]...)
	h.messages = rest
}

// Clear resets the history back to just the system message.
func (h *History) Clear() {
	if len(h.messages) == 0 {
		return
	}
	h.messages = h.messages[:1]
}

// Snapshot returns a defensive copy of the message slice, suitable for
// persisting to a session file.
func (h *History) Snapshot() []api.Message {
	out := make([]api.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Restore replaces the entire message log, e.g. when loading a saved
// session.
func (h *History) Restore(messages []api.Message) {
	h.messages = append([]api.Message(nil), messages...)
}
