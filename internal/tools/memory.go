package tools

import (
	"context"
	"encoding/json"

	"github.com/aicoder-go/aicoder/internal/config"
)

// MemoryTool surfaces the AICODER.md / rules memory currently in effect for
// the working directory, the same content injected into the system prompt
// at session start. Lets the assistant re-check project instructions
// mid-conversation without asking the user to repeat them.
type MemoryTool struct {
	workDir string
}

// NewMemoryTool creates a new memory tool rooted at workDir.
func NewMemoryTool(workDir string) *MemoryTool {
	return &MemoryTool{workDir: workDir}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return `Returns the AICODER.md and rules-directory content currently in effect for the working directory (user-level, ancestor-directory, and project-level instructions, in that order).`
}

func (t *MemoryTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}, "additionalProperties": false}`)
}

func (t *MemoryTool) RequiresPermission(_ json.RawMessage) bool {
	return false
}

func (t *MemoryTool) Execute(_ context.Context, _ json.RawMessage) (string, error) {
	entries := config.LoadMemoryEntries(t.workDir)
	formatted := config.FormatMemoryForContext(entries)
	if formatted == "" {
		return "No AICODER.md or rules files found for this directory.", nil
	}
	return formatted, nil
}
