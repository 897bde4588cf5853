package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	fileReadDefaultLimit = 2000
	fileReadMaxLineLen   = 2000
)

// FileReadInput is the input schema for the read_file tool.
type FileReadInput struct {
	FilePath string `json:"file_path"`
	Offset   *int   `json:"offset,omitempty"` // 1-based line number
	Limit    *int   `json:"limit,omitempty"`
	Metadata bool   `json:"metadata,omitempty"`
}

// FileReadTool reads text files from the local filesystem, recording each
// successful read in a FileTracker so write_file/edit_file can enforce
// the read-before-modify invariant.
type FileReadTool struct {
	tracker *FileTracker
}

// NewFileReadTool creates a new read_file tool backed by tracker.
func NewFileReadTool(tracker *FileTracker) *FileReadTool {
	return &FileReadTool{tracker: tracker}
}

func (t *FileReadTool) Name() string { return "read_file" }

func (t *FileReadTool) Description() string {
	return `Reads a text file from the local filesystem. file_path must be an absolute path. By default reads up to 2000 lines from the beginning; use offset/limit for large files. Lines longer than 2000 characters are truncated. Results are returned with line numbers (cat -n format).`
}

func (t *FileReadTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "file_path": {"type": "string", "description": "Absolute path to the file to read"},
    "offset": {"type": "number", "description": "1-based line number to start reading from"},
    "limit": {"type": "number", "description": "Maximum number of lines to read"},
    "metadata": {"type": "boolean", "description": "If true, include a next-offset hint when the file was truncated"}
  },
  "required": ["file_path"],
  "additionalProperties": false
}`)
}

func (t *FileReadTool) RequiresPermission(_ json.RawMessage) bool {
	return false // Read-only, no permission needed.
}

func (t *FileReadTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var in FileReadInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing read_file input: %w", err)
	}
	if in.FilePath == "" {
		return "Error: file_path is required", nil
	}

	info, err := os.Stat(in.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", in.FilePath), nil
		}
		return fmt.Sprintf("Error: %v", err), nil
	}
	if info.IsDir() {
		return fmt.Sprintf("Error: %s is a directory, not a file. Use list_directory instead.", in.FilePath), nil
	}

	f, err := os.Open(in.FilePath)
	if err != nil {
		return fmt.Sprintf("Error opening file: %v", err), nil
	}
	defer f.Close()

	offset := 1
	if in.Offset != nil && *in.Offset > 0 {
		offset = *in.Offset
	}
	limit := fileReadDefaultLimit
	if in.Limit != nil && *in.Limit > 0 {
		limit = *in.Limit
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var result strings.Builder
	lineNum := 0
	linesRead := 0
	truncatedLines := 0
	fileTruncated := false

	for scanner.Scan() {
		lineNum++
		if lineNum < offset {
			continue
		}
		if linesRead >= limit {
			fileTruncated = true // there is another line beyond the limit
			break
		}

		line := scanner.Text()
		if len(line) > fileReadMaxLineLen {
			line = line[:fileReadMaxLineLen] + " …[line truncated]"
			truncatedLines++
		}

		fmt.Fprintf(&result, "%6d\t%s\n", lineNum, line)
		linesRead++
	}
	nextOffset := offset + linesRead

	if err := scanner.Err(); err != nil {
		return fmt.Sprintf("Error reading file: %v", err), nil
	}

	t.tracker.RecordRead(in.FilePath)

	output := result.String()
	if output == "" {
		if lineNum == 0 {
			return "(empty file)", nil
		}
		return fmt.Sprintf("(no lines in range: offset=%d, total lines read=%d)", offset, lineNum), nil
	}

	var notices []string
	if truncatedLines > 0 {
		notices = append(notices, fmt.Sprintf("%d line(s) were truncated to %d characters", truncatedLines, fileReadMaxLineLen))
	}
	if fileTruncated {
		notices = append(notices, fmt.Sprintf("file has more lines beyond offset %d; re-read with a higher offset to continue", nextOffset-1))
	}
	for _, n := range notices {
		output += "\n[notice] " + n
	}
	if in.Metadata && fileTruncated {
		output += fmt.Sprintf("\n[metadata] next_offset=%d", nextOffset)
	}

	return output, nil
}
