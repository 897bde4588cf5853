package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// doneSentinel is the literal payload that terminates an OpenAI-compatible
// chat-completions SSE stream.
const doneSentinel = "[DONE]"

// StreamChunk is a single `data: {...}` frame of a chat-completions stream.
type StreamChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ChunkChoice is one choice within a StreamChunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// ChunkDelta is the incremental content of a ChunkChoice: either a text
// fragment or one or more tool-call fragments, index-keyed so that
// arguments accumulate across chunks.
type ChunkDelta struct {
	Role      string            `json:"role,omitempty"`
	Content   string            `json:"content,omitempty"`
	ToolCalls []ToolCallDelta   `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a single tool-call fragment within a ChunkDelta. Name
// and ID typically arrive only on the first fragment for a given index;
// Arguments arrives incrementally across subsequent fragments.
type ToolCallDelta struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFuncDelta `json:"function,omitempty"`
}

// ToolCallFuncDelta is the function fragment of a ToolCallDelta.
type ToolCallFuncDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamHandler processes streaming events from the chat-completions
// endpoint. Callers implement this interface to handle events as they
// arrive; the same handler-callback shape the teacher's Messages-API
// client used, adapted to the OpenAI delta shape.
type StreamHandler interface {
	OnRoleStart(role string)
	OnTextDelta(text string)
	OnToolCallDelta(delta ToolCallDelta)
	OnFinish(reason string)
	OnUsage(usage Usage)
	OnError(err error)
}

// ParseSSEStream reads an OpenAI-compatible chat-completions SSE stream
// from r and dispatches events to handler. It blocks until the stream
// ends (a `data: [DONE]` frame), the reader is exhausted, or an error
// occurs.
func ParseSSEStream(r io.Reader, handler StreamHandler) error {
	scanner := bufio.NewScanner(r)
	// Tool-call argument JSON can span many KB per chunk in pathological
	// cases; keep the generous buffer the teacher's Messages-API scanner used.
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			// Ignore comments and any other SSE fields.
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			return nil
		}
		if payload == "" {
			continue
		}
		if err := dispatchChunk([]byte(payload), handler); err != nil {
			handler.OnError(fmt.Errorf("dispatching chunk: %w", err))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading SSE stream: %w", err)
	}
	return nil
}

func dispatchChunk(data []byte, handler StreamHandler) error {
	var chunk StreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		var apiErr APIError
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Body.Message != "" {
			handler.OnError(fmt.Errorf("api error: %s: %s", apiErr.Body.Type, apiErr.Body.Message))
			return nil
		}
		return err
	}

	if chunk.Usage != nil {
		handler.OnUsage(*chunk.Usage)
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Role != "" {
			handler.OnRoleStart(choice.Delta.Role)
		}
		if choice.Delta.Content != "" {
			handler.OnTextDelta(choice.Delta.Content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			handler.OnToolCallDelta(tc)
		}
		if choice.FinishReason != "" {
			handler.OnFinish(choice.FinishReason)
		}
	}
	return nil
}
