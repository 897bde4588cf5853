package mock

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aicoder-go/aicoder/internal/api"
)

// Responder decides what the mock backend returns for a given API request.
type Responder interface {
	// Respond returns the ChatCompletionResponse for the given request. It
	// may inspect the request messages, tools, etc. to decide.
	Respond(req *api.ChatCompletionRequest) *api.ChatCompletionResponse
}

// ResponderFunc adapts a plain function to the Responder interface.
type ResponderFunc func(req *api.ChatCompletionRequest) *api.ChatCompletionResponse

func (f ResponderFunc) Respond(req *api.ChatCompletionRequest) *api.ChatCompletionResponse {
	return f(req)
}

// --- Built-in responders ---

// StaticResponder always returns the same response.
type StaticResponder struct {
	Response *api.ChatCompletionResponse
}

func (r *StaticResponder) Respond(_ *api.ChatCompletionRequest) *api.ChatCompletionResponse {
	return r.Response
}

// ScriptedResponder returns responses from a pre-defined sequence. After the
// sequence is exhausted, it returns the last response for all subsequent calls.
// This is useful for testing multi-turn conversations.
type ScriptedResponder struct {
	mu        sync.Mutex
	responses []*api.ChatCompletionResponse
	index     int
	calls     int
}

// NewScriptedResponder creates a responder that plays back the given responses
// in order. The responses slice must have at least one entry.
func NewScriptedResponder(responses []*api.ChatCompletionResponse) *ScriptedResponder {
	if len(responses) == 0 {
		panic("ScriptedResponder requires at least one response")
	}
	return &ScriptedResponder{responses: responses}
}

func (r *ScriptedResponder) Respond(_ *api.ChatCompletionRequest) *api.ChatCompletionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	resp := r.responses[r.index]
	if r.index < len(r.responses)-1 {
		r.index++
	}
	return resp
}

// CallCount returns the number of times Respond has been called.
func (r *ScriptedResponder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// EchoResponder returns a text response that echoes the last user message.
// Useful for basic connectivity/integration tests.
type EchoResponder struct {
	callCount atomic.Int32
}

func (r *EchoResponder) Respond(req *api.ChatCompletionRequest) *api.ChatCompletionResponse {
	n := r.callCount.Add(1)

	text := "(no message)"
	for i := len(req.Messages) - 1; i >= 0; i-- {
		msg := req.Messages[i]
		if msg.Role != api.RoleUser {
			continue
		}
		text = msg.Content
		break
	}

	return TextResponse(fmt.Sprintf("Echo: %s", text), int(n))
}

// CallCount returns the number of requests handled.
func (r *EchoResponder) CallCount() int32 {
	return r.callCount.Load()
}

// --- Response builder helpers ---

// TextResponse creates a simple text-only ChatCompletionResponse with
// finish_reason "stop".
func TextResponse(text string, seqNum int) *api.ChatCompletionResponse {
	return &api.ChatCompletionResponse{
		ID:    fmt.Sprintf("chatcmpl-mock-%d", seqNum),
		Model: api.DefaultModel,
		Choices: []api.Choice{
			{
				Index:        0,
				Message:      api.NewAssistantMessage(text, nil),
				FinishReason: api.FinishReasonStop,
			},
		},
		Usage: api.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

// ToolUseResponse creates a ChatCompletionResponse that requests one tool
// call, with finish_reason "tool_calls".
func ToolUseResponse(toolID, toolName, arguments string, seqNum int) *api.ChatCompletionResponse {
	return toolCallsResponse("", []ToolCall{{ID: toolID, Name: toolName, Arguments: arguments}}, seqNum, 30)
}

// ToolUseWithTextResponse creates a response that contains both assistant
// text and a tool call (the model "thinks aloud" before calling a tool).
func ToolUseWithTextResponse(text, toolID, toolName, arguments string, seqNum int) *api.ChatCompletionResponse {
	return toolCallsResponse(text, []ToolCall{{ID: toolID, Name: toolName, Arguments: arguments}}, seqNum, 40)
}

// MultiToolUseResponse creates a response that requests multiple tool calls.
func MultiToolUseResponse(calls []ToolCall, seqNum int) *api.ChatCompletionResponse {
	return toolCallsResponse("", calls, seqNum, 50)
}

func toolCallsResponse(text string, calls []ToolCall, seqNum, completionTokens int) *api.ChatCompletionResponse {
	toolCalls := make([]api.ToolCall, len(calls))
	for i, call := range calls {
		toolCalls[i] = api.ToolCall{
			Index: i,
			ID:    call.ID,
			Type:  "function",
			Function: api.ToolCallFunc{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}
	}
	return &api.ChatCompletionResponse{
		ID:    fmt.Sprintf("chatcmpl-mock-%d", seqNum),
		Model: api.DefaultModel,
		Choices: []api.Choice{
			{
				Index:        0,
				Message:      api.NewAssistantMessage(text, toolCalls),
				FinishReason: api.FinishReasonToolCalls,
			},
		},
		Usage: api.Usage{PromptTokens: 10, CompletionTokens: completionTokens, TotalTokens: 10 + completionTokens},
	}
}

// ToolCall describes a single tool invocation for MultiToolUseResponse and
// its single-call siblings. Arguments is the raw JSON arguments string.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}
