package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileEditInput is the input schema for the edit_file tool.
type FileEditInput struct {
	FilePath  string `json:"file_path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

// FileEditTool performs an exact single-occurrence string replacement in a
// file, or creates a new file when old_string is empty.
type FileEditTool struct {
	tracker *FileTracker
}

// NewFileEditTool creates a new edit_file tool backed by tracker.
func NewFileEditTool(tracker *FileTracker) *FileEditTool {
	return &FileEditTool{tracker: tracker}
}

func (t *FileEditTool) Name() string { return "edit_file" }

func (t *FileEditTool) Description() string {
	return `Replaces exactly one occurrence of old_string with new_string in a file. old_string must be unique in the file and different from new_string. The file must have been read with read_file first, and must not have changed on disk since. Pass an empty old_string to create a new file at file_path (fails if the file already exists).`
}

func (t *FileEditTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "file_path": {"type": "string", "description": "Absolute path to the file to modify"},
    "old_string": {"type": "string", "description": "The text to replace; empty to create a new file"},
    "new_string": {"type": "string", "description": "The text to replace it with (must differ from old_string)"}
  },
  "required": ["file_path", "old_string", "new_string"],
  "additionalProperties": false
}`)
}

func (t *FileEditTool) RequiresPermission(_ json.RawMessage) bool {
	return true
}

func (t *FileEditTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var in FileEditInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing edit_file input: %w", err)
	}

	if in.FilePath == "" {
		return "Error: file_path is required", nil
	}
	if in.OldString == in.NewString {
		return "Error: new_string must be different from old_string", nil
	}

	if in.OldString == "" {
		return t.createFile(in.FilePath, in.NewString)
	}

	lastRead, everRead := t.tracker.LastRead(in.FilePath)
	if !everRead {
		return fmt.Sprintf("Error: %s must be read with read_file before it can be edited.", in.FilePath), nil
	}

	info, err := os.Stat(in.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", in.FilePath), nil
		}
		return fmt.Sprintf("Error: %v", err), nil
	}
	if info.ModTime().After(lastRead) {
		return fmt.Sprintf("Error: %s was modified on disk since it was last read. Read it again before editing.", in.FilePath), nil
	}

	data, err := os.ReadFile(in.FilePath)
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err), nil
	}
	content := string(data)

	count := strings.Count(content, in.OldString)
	if count == 0 {
		return fmt.Sprintf("Error: old_string not found in %s. Make sure the string matches exactly, including whitespace and indentation.", in.FilePath), nil
	}
	if count > 1 {
		return fmt.Sprintf("Error: old_string appears %d times in %s. Provide more surrounding context to make it unique.", count, in.FilePath), nil
	}

	newContent := strings.Replace(content, in.OldString, in.NewString, 1)

	if err := os.WriteFile(in.FilePath, []byte(newContent), info.Mode().Perm()); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	t.tracker.RecordRead(in.FilePath)

	return fmt.Sprintf("Successfully edited %s.", in.FilePath), nil
}

func (t *FileEditTool) createFile(path, content string) (string, error) {
	if !filepath.IsAbs(path) {
		return "Error: file_path must be an absolute path", nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Sprintf("Error: %s already exists; cannot create with an empty old_string.", path), nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Sprintf("Error creating directories: %v", err), nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	t.tracker.RecordRead(path)
	return fmt.Sprintf("Successfully created %s.", path), nil
}
