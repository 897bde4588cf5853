// Package api implements the streaming chat-completions client that talks
// to the configured (OpenAI-compatible) model endpoint.
package api

import "encoding/json"

// Role constants for messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants, as reported in choices[].finish_reason.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
	FinishReasonLength    = "length"
)

// Message is a single conversation message in the OpenAI chat-completions
// wire shape: plain-text content, optional tool calls on assistant
// messages, and a required ToolCallID on tool-role messages.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// NewSystemMessage builds a system-role message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// NewUserMessage builds a user-role message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// NewAssistantMessage builds an assistant-role message, optionally
// carrying tool calls.
func NewAssistantMessage(text string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: toolCalls}
}

// NewToolMessage builds a tool-result message referencing the originating
// tool call by ID.
func NewToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolCall is a single tool invocation requested by the model. ID is
// stable and unique within the response that produced it; Function.Name
// identifies the tool; Function.Arguments is the raw (possibly
// multiply-encoded) JSON argument string.
type ToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc holds the name/arguments payload of a ToolCall.
type ToolCallFunc struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is sent to the API to describe an available tool, using
// the OpenAI "function" tool wrapper.
type ToolDefinition struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function body of a ToolDefinition.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// NewToolDefinition wraps a name/description/JSON-schema triple in the
// OpenAI function-tool envelope.
func NewToolDefinition(name, description string, parameters json.RawMessage) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  interface{}      `json:"tool_choice,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
}

// ChatCompletionResponse is the full (non-streaming) response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice in a non-streaming response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage tracks token consumption, using the field names the spec's stats
// accumulator reports under (prompt_tokens / completion_tokens).
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError represents an error response from the endpoint.
type APIError struct {
	Body APIErrorBody `json:"error"`
}

// APIErrorBody is the error detail.
type APIErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Body.Message != "" {
		return e.Body.Message
	}
	return "api error"
}
