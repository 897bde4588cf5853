package mock

import (
	"context"
	"testing"

	"github.com/aicoder-go/aicoder/internal/api"
)

// testHandler records stream events for assertions.
type testHandler struct {
	roles     []string
	textParts []string
	toolCalls []api.ToolCallDelta
	finished  string
	usage     api.Usage
	errCount  int
}

func (h *testHandler) OnRoleStart(role string) {
	h.roles = append(h.roles, role)
}

func (h *testHandler) OnTextDelta(text string) {
	h.textParts = append(h.textParts, text)
}

func (h *testHandler) OnToolCallDelta(delta api.ToolCallDelta) {
	h.toolCalls = append(h.toolCalls, delta)
}

func (h *testHandler) OnFinish(reason string) {
	h.finished = reason
}

func (h *testHandler) OnUsage(usage api.Usage) {
	h.usage = usage
}

func (h *testHandler) OnError(_ error) {
	h.errCount++
}

func (h *testHandler) fullText() string {
	var s string
	for _, p := range h.textParts {
		s += p
	}
	return s
}

// --- StaticTokenSource ---

func TestStaticTokenSource(t *testing.T) {
	ts := &StaticTokenSource{Token: "test-token"}
	tok, err := ts.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "test-token" {
		t.Errorf("got %q, want %q", tok, "test-token")
	}
	// InvalidateToken should be a no-op.
	ts.InvalidateToken()
	tok, _ = ts.GetAccessToken(context.Background())
	if tok != "test-token" {
		t.Errorf("after invalidate: got %q, want %q", tok, "test-token")
	}
}

// --- Response builder helpers ---

func TestTextResponse(t *testing.T) {
	resp := TextResponse("hello world", 1)
	if resp.Choices[0].FinishReason != api.FinishReasonStop {
		t.Errorf("finish_reason = %q, want %q", resp.Choices[0].FinishReason, api.FinishReasonStop)
	}
	if resp.Choices[0].Message.Content != "hello world" {
		t.Errorf("content = %q, want %q", resp.Choices[0].Message.Content, "hello world")
	}
}

func TestToolUseResponse(t *testing.T) {
	resp := ToolUseResponse("tool_1", "run_shell_command", `{"command":"ls"}`, 1)
	if resp.Choices[0].FinishReason != api.FinishReasonToolCalls {
		t.Errorf("finish_reason = %q, want %q", resp.Choices[0].FinishReason, api.FinishReasonToolCalls)
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(calls))
	}
	if calls[0].Function.Name != "run_shell_command" {
		t.Errorf("name = %q", calls[0].Function.Name)
	}
	if calls[0].ID != "tool_1" {
		t.Errorf("id = %q", calls[0].ID)
	}
	if calls[0].Function.Arguments != `{"command":"ls"}` {
		t.Errorf("arguments = %q", calls[0].Function.Arguments)
	}
}

func TestToolUseWithTextResponse(t *testing.T) {
	resp := ToolUseWithTextResponse("Let me read that file.", "tool_2", "read_file", `{"path":"/tmp/x"}`, 1)
	msg := resp.Choices[0].Message
	if msg.Content != "Let me read that file." {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "read_file" {
		t.Errorf("tool calls = %+v", msg.ToolCalls)
	}
}

func TestMultiToolUseResponse(t *testing.T) {
	calls := []ToolCall{
		{ID: "t1", Name: "glob", Arguments: `{"pattern":"*.go"}`},
		{ID: "t2", Name: "grep", Arguments: `{"pattern":"TODO"}`},
	}
	resp := MultiToolUseResponse(calls, 1)
	got := resp.Choices[0].Message.ToolCalls
	if len(got) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(got))
	}
	if got[0].Function.Name != "glob" {
		t.Errorf("first tool name = %q", got[0].Function.Name)
	}
	if got[1].Function.Name != "grep" {
		t.Errorf("second tool name = %q", got[1].Function.Name)
	}
}

// --- Responders ---

func TestStaticResponder(t *testing.T) {
	expected := TextResponse("static", 1)
	r := &StaticResponder{Response: expected}

	got := r.Respond(&api.ChatCompletionRequest{})
	if got.Choices[0].Message.Content != "static" {
		t.Errorf("content = %q", got.Choices[0].Message.Content)
	}

	got2 := r.Respond(&api.ChatCompletionRequest{})
	if got2.Choices[0].Message.Content != "static" {
		t.Errorf("second call content = %q", got2.Choices[0].Message.Content)
	}
}

func TestScriptedResponder(t *testing.T) {
	r := NewScriptedResponder([]*api.ChatCompletionResponse{
		TextResponse("first", 1),
		TextResponse("second", 2),
		TextResponse("third", 3),
	})

	if got := r.Respond(&api.ChatCompletionRequest{}); got.Choices[0].Message.Content != "first" {
		t.Errorf("call 1: %q", got.Choices[0].Message.Content)
	}
	if got := r.Respond(&api.ChatCompletionRequest{}); got.Choices[0].Message.Content != "second" {
		t.Errorf("call 2: %q", got.Choices[0].Message.Content)
	}
	if got := r.Respond(&api.ChatCompletionRequest{}); got.Choices[0].Message.Content != "third" {
		t.Errorf("call 3: %q", got.Choices[0].Message.Content)
	}

	// Beyond the script, repeats the last response.
	if got := r.Respond(&api.ChatCompletionRequest{}); got.Choices[0].Message.Content != "third" {
		t.Errorf("call 4 (overflow): %q", got.Choices[0].Message.Content)
	}
}

func TestScriptedResponder_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for empty responses")
		}
	}()
	NewScriptedResponder(nil)
}

func TestEchoResponder(t *testing.T) {
	r := &EchoResponder{}
	req := &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("hello there")},
	}
	resp := r.Respond(req)
	if resp.Choices[0].Message.Content != "Echo: hello there" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if r.CallCount() != 1 {
		t.Errorf("call count = %d", r.CallCount())
	}
}

func TestResponderFunc(t *testing.T) {
	called := false
	r := ResponderFunc(func(req *api.ChatCompletionRequest) *api.ChatCompletionResponse {
		called = true
		return TextResponse("func", 1)
	})
	resp := r.Respond(&api.ChatCompletionRequest{})
	if !called {
		t.Error("function was not called")
	}
	if resp.Choices[0].Message.Content != "func" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
}

// --- Backend: text response round-trip ---

func TestBackend_TextResponse(t *testing.T) {
	b := NewBackend(&StaticResponder{
		Response: TextResponse("Hello from mock!", 1),
	})
	defer b.Close()

	client := b.Client()
	handler := &testHandler{}

	result, err := client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("hi")},
	}, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinishReason != api.FinishReasonStop {
		t.Errorf("finish_reason = %q", result.FinishReason)
	}
	if handler.fullText() != "Hello from mock!" {
		t.Errorf("streamed text = %q", handler.fullText())
	}
	if handler.finished != api.FinishReasonStop {
		t.Error("OnFinish was not called with stop")
	}
	if b.RequestCount() != 1 {
		t.Errorf("request count = %d", b.RequestCount())
	}
}

// --- Backend: tool use round-trip ---

func TestBackend_ToolUseResponse(t *testing.T) {
	b := NewBackend(&StaticResponder{
		Response: ToolUseResponse("toolu_123", "run_shell_command", `{"command":"echo hello"}`, 1),
	})
	defer b.Close()

	client := b.Client()
	handler := &testHandler{}

	result, err := client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("run a command")},
	}, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinishReason != api.FinishReasonToolCalls {
		t.Errorf("finish_reason = %q", result.FinishReason)
	}
	if len(result.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(result.Message.ToolCalls))
	}
	call := result.Message.ToolCalls[0]
	if call.Function.Name != "run_shell_command" {
		t.Errorf("tool name = %q", call.Function.Name)
	}
	if call.Function.Arguments != `{"command":"echo hello"}` {
		t.Errorf("tool arguments = %s", call.Function.Arguments)
	}
}

// --- Backend: request capture ---

func TestBackend_CapturesHeaders(t *testing.T) {
	b := NewBackend(&StaticResponder{Response: TextResponse("ok", 1)})
	defer b.Close()

	client := b.Client(api.WithVersion("9.9.9"))
	client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("hi")},
	}, &testHandler{})

	req := b.LastRequest()
	if req == nil {
		t.Fatal("no request captured")
	}
	if req.Headers.Get("Authorization") != "Bearer mock-token" {
		t.Errorf("auth header = %q", req.Headers.Get("Authorization"))
	}
	if req.Headers.Get("User-Agent") != "aicoder/9.9.9" {
		t.Errorf("user-agent = %q", req.Headers.Get("User-Agent"))
	}
}

func TestBackend_CapturesRequestBody(t *testing.T) {
	b := NewBackend(&StaticResponder{Response: TextResponse("ok", 1)})
	defer b.Close()

	client := b.Client()
	client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("what is 2+2?")},
	}, &testHandler{})

	req := b.LastRequest()
	if req == nil {
		t.Fatal("no request captured")
	}
	if req.Body == nil {
		t.Fatal("body not parsed")
	}
	if len(req.Body.Messages) != 1 {
		t.Errorf("messages count = %d", len(req.Body.Messages))
	}
}

// --- Backend: echo responder ---

func TestBackend_EchoResponder(t *testing.T) {
	b := NewBackend(&EchoResponder{})
	defer b.Close()

	client := b.Client()
	handler := &testHandler{}

	result, err := client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("ping")},
	}, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.fullText() != "Echo: ping" {
		t.Errorf("streamed text = %q", handler.fullText())
	}
	if result.FinishReason != api.FinishReasonStop {
		t.Errorf("finish_reason = %q", result.FinishReason)
	}
}

// --- Backend: SetResponder ---

func TestBackend_SetResponder(t *testing.T) {
	b := NewBackend(&StaticResponder{Response: TextResponse("first", 1)})
	defer b.Close()

	client := b.Client()

	h1 := &testHandler{}
	client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("hi")},
	}, h1)
	if h1.fullText() != "first" {
		t.Errorf("first response = %q", h1.fullText())
	}

	b.SetResponder(&StaticResponder{Response: TextResponse("second", 2)})

	h2 := &testHandler{}
	client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("hi again")},
	}, h2)
	if h2.fullText() != "second" {
		t.Errorf("second response = %q", h2.fullText())
	}
}

// --- Backend: scripted multi-turn ---

func TestBackend_ScriptedMultiTurn(t *testing.T) {
	r := NewScriptedResponder([]*api.ChatCompletionResponse{
		TextResponse("response 1", 1),
		TextResponse("response 2", 2),
	})
	b := NewBackend(r)
	defer b.Close()

	client := b.Client()

	h1 := &testHandler{}
	client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("first")},
	}, h1)
	if h1.fullText() != "response 1" {
		t.Errorf("turn 1: %q", h1.fullText())
	}

	h2 := &testHandler{}
	client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{
			api.NewUserMessage("first"),
			api.NewAssistantMessage("response 1", nil),
			api.NewUserMessage("second"),
		},
	}, h2)
	if h2.fullText() != "response 2" {
		t.Errorf("turn 2: %q", h2.fullText())
	}

	if b.RequestCount() != 2 {
		t.Errorf("total requests = %d", b.RequestCount())
	}
}

// --- Backend: mixed text + tool call ---

func TestBackend_TextAndToolUseBlocks(t *testing.T) {
	b := NewBackend(&StaticResponder{
		Response: ToolUseWithTextResponse(
			"Let me read the file.", "toolu_abc", "read_file", `{"path":"/tmp/test.go"}`, 1,
		),
	})
	defer b.Close()

	client := b.Client()
	handler := &testHandler{}

	result, err := client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("read /tmp/test.go")},
	}, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.fullText() != "Let me read the file." {
		t.Errorf("text = %q", handler.fullText())
	}
	if len(result.Message.ToolCalls) != 1 || result.Message.ToolCalls[0].Function.Name != "read_file" {
		t.Errorf("tool calls = %+v", result.Message.ToolCalls)
	}
}

// --- Backend: multi tool use ---

func TestBackend_MultiToolUse(t *testing.T) {
	calls := []ToolCall{
		{ID: "t1", Name: "glob", Arguments: `{"pattern":"*.go"}`},
		{ID: "t2", Name: "grep", Arguments: `{"pattern":"func main"}`},
	}
	b := NewBackend(&StaticResponder{
		Response: MultiToolUseResponse(calls, 1),
	})
	defer b.Close()

	client := b.Client()
	handler := &testHandler{}

	result, err := client.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{
		Messages: []api.Message{api.NewUserMessage("find go files")},
	}, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinishReason != api.FinishReasonToolCalls {
		t.Errorf("finish_reason = %q", result.FinishReason)
	}
	if len(result.Message.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d", len(result.Message.ToolCalls))
	}
	if result.Message.ToolCalls[0].Function.Name != "glob" {
		t.Errorf("call 0 name = %q", result.Message.ToolCalls[0].Function.Name)
	}
	if result.Message.ToolCalls[1].Function.Name != "grep" {
		t.Errorf("call 1 name = %q", result.Message.ToolCalls[1].Function.Name)
	}
}
