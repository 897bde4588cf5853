package conversation

import (
	"context"
	"fmt"

	"github.com/aicoder-go/aicoder/internal/api"
)

// Default context-window limits.
const (
	// DefaultMaxInputTokens is the prompt-token threshold at which
	// compaction triggers, set conservatively below the endpoint's actual
	// context limit to leave room for the next response.
	DefaultMaxInputTokens = 150_000

	// DefaultPreserveRecent is the number of most recent messages kept
	// untouched during compaction.
	DefaultPreserveRecent = 4
)

// NoMessagesToCompactError is returned when Compact is called on a history
// too short to have anything worth summarizing.
type NoMessagesToCompactError struct{}

func (NoMessagesToCompactError) Error() string { return "no messages to compact" }

// Compactor shrinks the conversation history by summarizing its older
// portion into a single message when the prompt grows too large, keeping
// the system message and a tail window of recent turns untouched.
type Compactor struct {
	Client         *api.Client
	MaxInputTokens int // trigger threshold
	PreserveRecent int // number of trailing messages to keep verbatim
}

// NewCompactor creates a compactor with the default thresholds.
func NewCompactor(client *api.Client) *Compactor {
	return &Compactor{
		Client:         client,
		MaxInputTokens: DefaultMaxInputTokens,
		PreserveRecent: DefaultPreserveRecent,
	}
}

// ShouldCompact reports whether the conversation should be compacted given
// the prompt-token usage reported by the most recent API response.
func (c *Compactor) ShouldCompact(usage api.Usage) bool {
	return usage.PromptTokens >= c.MaxInputTokens
}

// Compact summarizes the older portion of the history (everything between
// the system message and the preserved tail) into a single synthesized
// message. The system message at index 0 is never touched. On error the
// history is left unmodified.
func (c *Compactor) Compact(ctx context.Context, history *History) error {
	msgs := history.Messages()
	// Index 0 is the system message; compaction ranges over [1, splitPoint).
	splitPoint := len(msgs) - c.PreserveRecent
	if splitPoint <= 1 {
		return NoMessagesToCompactError{}
	}

	toSummarize := msgs[1:splitPoint]
	summary, err := c.summarize(ctx, toSummarize)
	if err != nil {
		return fmt.Errorf("summarizing messages: %w", err)
	}

	history.ReplaceRange(1, splitPoint, api.NewUserMessage(summary))
	return nil
}

const summarizerSystemPrompt = `You are a conversation summarizer. Produce a concise summary of the conversation so far that preserves all important context for continuing it without loss: key decisions and their rationale, files read/created/modified (with paths), important command outputs or errors, the current state of any in-progress task, and any constraints the user stated.`

// summarize issues a single non-streaming, tool-free completion request
// asking the model to summarize messages, per the compaction step that
// disables both streaming and tool definitions.
func (c *Compactor) summarize(ctx context.Context, messages []api.Message) (string, error) {
	allMsgs := make([]api.Message, 0, len(messages)+2)
	allMsgs = append(allMsgs, api.NewSystemMessage(summarizerSystemPrompt))
	allMsgs = append(allMsgs, messages...)
	allMsgs = append(allMsgs, api.NewUserMessage("Summarize the above conversation concisely, preserving all important context for continuation."))

	req := &api.ChatCompletionRequest{
		Messages: allMsgs,
		Stream:   false,
	}

	resp, err := c.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarization request: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty summarization response")
	}

	summary := resp.Choices[0].Message.Content
	if summary == "" {
		return "", fmt.Errorf("no text in summarization response")
	}

	return "[Conversation Summary]\n" + summary, nil
}
