package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MCPToolWrapper bridges a single MCP server tool into the tool registry's
// Tool interface, so the model sees it alongside every built-in and
// manifest-declared tool with no special-casing in the agentic loop. This
// is the entire MCP-stdio tool surface per §4.5: tools/list discovery,
// tools/call dispatch — no resource or subscription protocol extensions.
type MCPToolWrapper struct {
	serverName  string
	toolName    string
	displayName string // "mcp__<server>__<tool>"
	description string
	inputSchema json.RawMessage
	client      *MCPClient
}

// NewMCPToolWrapper creates a wrapper for a tool discovered via tools/list
// on the given server's client.
func NewMCPToolWrapper(serverName string, def MCPToolDef, client *MCPClient) *MCPToolWrapper {
	return &MCPToolWrapper{
		serverName:  serverName,
		toolName:    def.Name,
		displayName: fmt.Sprintf("mcp__%s__%s", serverName, def.Name),
		description: def.Description,
		inputSchema: def.InputSchema,
		client:      client,
	}
}

func (w *MCPToolWrapper) Name() string                { return w.displayName }
func (w *MCPToolWrapper) Description() string         { return w.description }
func (w *MCPToolWrapper) InputSchema() json.RawMessage { return w.inputSchema }

// RequiresPermission is always true: the approval engine has no way to
// reason about what a given MCP server's tool actually does, so every
// call goes through the C6 approval gate.
func (w *MCPToolWrapper) RequiresPermission(_ json.RawMessage) bool {
	return true
}

// Execute issues a tools/call request and flattens the result's text
// content blocks into the single string the tool registry expects.
func (w *MCPToolWrapper) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	result, err := w.client.CallTool(ctx, w.toolName, input)
	if err != nil {
		return "", err
	}

	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		// Not a structured tools/call result — return the raw JSON as-is.
		return string(result), nil
	}

	if callResult.IsError {
		texts := extractTexts(callResult.Content)
		return texts, fmt.Errorf("MCP tool %s: %s", w.toolName, texts)
	}

	return extractTexts(callResult.Content), nil
}

// extractTexts concatenates all text content blocks into a single string.
func extractTexts(content []ToolResultContent) string {
	var parts []string
	for _, c := range content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
