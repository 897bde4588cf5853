package mock

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aicoder-go/aicoder/internal/api"
)

// textChunkSize and argsChunkSize bound how finely WriteSSEResponse slices
// content/argument strings across chunks, so tests exercise the client's
// incremental-accumulation path instead of always seeing whole fragments.
const (
	textChunkSize = 50
	argsChunkSize = 80
)

// WriteSSEResponse writes a complete ChatCompletionResponse as a properly
// formatted OpenAI-compatible SSE stream: a role-announcing chunk, chunked
// content/tool-call-argument deltas, a finish_reason chunk, a usage chunk,
// and a terminating "data: [DONE]" frame.
func WriteSSEResponse(w io.Writer, resp *api.ChatCompletionResponse) error {
	if len(resp.Choices) == 0 {
		return fmt.Errorf("response has no choices")
	}
	choice := resp.Choices[0]
	msg := choice.Message

	if err := writeChunk(w, resp, api.ChunkChoice{
		Index: 0,
		Delta: api.ChunkDelta{Role: api.RoleAssistant},
	}); err != nil {
		return err
	}

	text := msg.Content
	for len(text) > 0 {
		chunk := text
		if len(chunk) > textChunkSize {
			chunk = text[:textChunkSize]
		}
		text = text[len(chunk):]
		if err := writeChunk(w, resp, api.ChunkChoice{
			Index: 0,
			Delta: api.ChunkDelta{Content: chunk},
		}); err != nil {
			return err
		}
	}

	for _, tc := range msg.ToolCalls {
		if err := writeToolCallDeltas(w, resp, tc); err != nil {
			return err
		}
	}

	if err := writeChunk(w, resp, api.ChunkChoice{
		Index:        0,
		FinishReason: choice.FinishReason,
	}); err != nil {
		return err
	}

	if err := writeUsageChunk(w, resp); err != nil {
		return err
	}

	_, err := fmt.Fprint(w, "data: [DONE]\n\n")
	return err
}

func writeToolCallDeltas(w io.Writer, resp *api.ChatCompletionResponse, tc api.ToolCall) error {
	// First fragment carries id/type/name with no arguments.
	if err := writeChunk(w, resp, api.ChunkChoice{
		Index: 0,
		Delta: api.ChunkDelta{
			ToolCalls: []api.ToolCallDelta{
				{
					Index: tc.Index,
					ID:    tc.ID,
					Type:  tc.Type,
					Function: api.ToolCallFuncDelta{
						Name: tc.Function.Name,
					},
				},
			},
		},
	}); err != nil {
		return err
	}

	args := tc.Function.Arguments
	for len(args) > 0 {
		chunk := args
		if len(chunk) > argsChunkSize {
			chunk = args[:argsChunkSize]
		}
		args = args[len(chunk):]
		if err := writeChunk(w, resp, api.ChunkChoice{
			Index: 0,
			Delta: api.ChunkDelta{
				ToolCalls: []api.ToolCallDelta{
					{
						Index:    tc.Index,
						Function: api.ToolCallFuncDelta{Arguments: chunk},
					},
				},
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeChunk(w io.Writer, resp *api.ChatCompletionResponse, choice api.ChunkChoice) error {
	chunk := api.StreamChunk{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: []api.ChunkChoice{choice},
	}
	return writeSSEFrame(w, chunk)
}

func writeUsageChunk(w io.Writer, resp *api.ChatCompletionResponse) error {
	usage := resp.Usage
	chunk := api.StreamChunk{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: &usage,
	}
	return writeSSEFrame(w, chunk)
}

func writeSSEFrame(w io.Writer, chunk api.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshaling SSE chunk: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
