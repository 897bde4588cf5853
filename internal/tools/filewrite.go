package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileWriteInput is the input schema for the write_file tool.
type FileWriteInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// FileWriteTool creates or overwrites files, refusing to clobber a file
// that was modified on disk since this process last read it.
type FileWriteTool struct {
	tracker *FileTracker
}

// NewFileWriteTool creates a new write_file tool backed by tracker.
func NewFileWriteTool(tracker *FileTracker) *FileWriteTool {
	return &FileWriteTool{tracker: tracker}
}

func (t *FileWriteTool) Name() string { return "write_file" }

func (t *FileWriteTool) Description() string {
	return `Creates or overwrites a file with the given content. file_path must be an absolute path. Parent directories are created if they don't exist. Refuses to overwrite a file that was modified on disk since it was last read by read_file in this session.`
}

func (t *FileWriteTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "file_path": {"type": "string", "description": "Absolute path to the file to write"},
    "content": {"type": "string", "description": "The content to write to the file"}
  },
  "required": ["file_path", "content"],
  "additionalProperties": false
}`)
}

func (t *FileWriteTool) RequiresPermission(_ json.RawMessage) bool {
	return true
}

func (t *FileWriteTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var in FileWriteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing write_file input: %w", err)
	}
	if in.FilePath == "" {
		return "Error: file_path is required", nil
	}
	if !filepath.IsAbs(in.FilePath) {
		return "Error: file_path must be an absolute path", nil
	}

	if info, err := os.Stat(in.FilePath); err == nil {
		lastRead, everRead := t.tracker.LastRead(in.FilePath)
		if everRead && info.ModTime().After(lastRead) {
			return fmt.Sprintf("Error: %s was modified on disk since it was last read. Read it again before overwriting.", in.FilePath), nil
		}
	}

	dir := filepath.Dir(in.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Sprintf("Error creating directories: %v", err), nil
	}

	if err := os.WriteFile(in.FilePath, []byte(in.Content), 0644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}

	t.tracker.RecordRead(in.FilePath)

	return fmt.Sprintf("Successfully wrote to %s (%d bytes).", in.FilePath, len(in.Content)), nil
}
