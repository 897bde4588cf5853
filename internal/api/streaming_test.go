package api

import (
	"strings"
	"testing"
)

type recordingHandler struct {
	roles   []string
	text    strings.Builder
	calls   []ToolCallDelta
	finish  string
	usage   Usage
	errs    []error
}

func (h *recordingHandler) OnRoleStart(role string)          { h.roles = append(h.roles, role) }
func (h *recordingHandler) OnTextDelta(text string)          { h.text.WriteString(text) }
func (h *recordingHandler) OnToolCallDelta(d ToolCallDelta)  { h.calls = append(h.calls, d) }
func (h *recordingHandler) OnFinish(reason string)           { h.finish = reason }
func (h *recordingHandler) OnUsage(u Usage)                  { h.usage = u }
func (h *recordingHandler) OnError(err error)                { h.errs = append(h.errs, err) }

func TestParseSSEStream_TextOnly(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"id":"1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`data: {"id":"1","choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
		`data: {"id":"1","choices":[{"index":0,"delta":{"content":", world"}}]}`,
		`data: {"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	h := &recordingHandler{}
	if err := ParseSSEStream(strings.NewReader(stream), h); err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if h.text.String() != "Hello, world" {
		t.Fatalf("expected accumulated text %q, got %q", "Hello, world", h.text.String())
	}
	if h.finish != "stop" {
		t.Fatalf("expected finish reason stop, got %q", h.finish)
	}
	if len(h.errs) != 0 {
		t.Fatalf("unexpected errors: %v", h.errs)
	}
}

func TestParseSSEStream_ToolCallDeltas(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"glob","arguments":""}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"pattern\""}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"*.go\"}"}}]}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	h := &recordingHandler{}
	if err := ParseSSEStream(strings.NewReader(stream), h); err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if len(h.calls) != 3 {
		t.Fatalf("expected 3 tool call delta fragments, got %d", len(h.calls))
	}
	if h.finish != "tool_calls" {
		t.Fatalf("expected finish reason tool_calls, got %q", h.finish)
	}
}

func TestParseSSEStream_Usage(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`,
		`data: [DONE]`,
		"",
	}, "\n")

	h := &recordingHandler{}
	if err := ParseSSEStream(strings.NewReader(stream), h); err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if h.usage.PromptTokens != 10 || h.usage.CompletionTokens != 2 {
		t.Fatalf("unexpected usage: %+v", h.usage)
	}
}

func TestParseSSEStream_IgnoresNonDataLines(t *testing.T) {
	stream := strings.Join([]string{
		": this is a comment",
		`data: {"choices":[{"index":0,"delta":{"content":"ok"}}]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	h := &recordingHandler{}
	if err := ParseSSEStream(strings.NewReader(stream), h); err != nil {
		t.Fatalf("ParseSSEStream: %v", err)
	}
	if h.text.String() != "ok" {
		t.Fatalf("expected text 'ok', got %q", h.text.String())
	}
}
