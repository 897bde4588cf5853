package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const listDirectoryResultCap = 2000

// ListDirectoryInput is the input schema for the list_directory tool.
type ListDirectoryInput struct {
	Path string `json:"path,omitempty"`
}

// ListDirectoryTool lists the immediate contents of a directory.
type ListDirectoryTool struct {
	workDir string
}

// NewListDirectoryTool creates a new list_directory tool.
func NewListDirectoryTool(workDir string) *ListDirectoryTool {
	return &ListDirectoryTool{workDir: workDir}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return `Lists the immediate entries of a directory (files and subdirectories), with a trailing "/" marking directories. Defaults to the working directory.`
}

func (t *ListDirectoryTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "Directory to list. Defaults to the working directory."}
  },
  "additionalProperties": false
}`)
}

func (t *ListDirectoryTool) RequiresPermission(_ json.RawMessage) bool {
	return false
}

func (t *ListDirectoryTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var in ListDirectoryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parsing list_directory input: %w", err)
	}

	dir := t.workDir
	if in.Path != "" {
		if filepath.IsAbs(in.Path) {
			dir = in.Path
		} else {
			dir = filepath.Join(t.workDir, in.Path)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("Error listing %s: %v", dir, err), nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	truncated := false
	if len(entries) > listDirectoryResultCap {
		entries = entries[:listDirectoryResultCap]
		truncated = true
	}

	var out strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		out.WriteString(name)
		out.WriteString("\n")
	}
	if truncated {
		fmt.Fprintf(&out, "... (result capped at %d entries)\n", listDirectoryResultCap)
	}

	result := strings.TrimRight(out.String(), "\n")
	if result == "" {
		return "(empty directory)", nil
	}
	return result, nil
}
