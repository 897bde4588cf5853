package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExternalManifestFilename is the default manifest filename looked up in the
// working directory when MCP_TOOLS_CONF_PATH is unset.
const ExternalManifestFilename = "mcp_tools.json"

// ExternalToolType enumerates the kinds of tool an external manifest entry
// can describe. MCP-stdio servers are handled separately by mcp.Manager;
// this manifest covers the two simpler out-of-process shapes.
type ExternalToolType string

const (
	ExternalToolCommand ExternalToolType = "command"
	ExternalToolJSONRPC ExternalToolType = "jsonrpc"
)

// ExternalToolDef describes one tool entry in the manifest.
type ExternalToolDef struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Type        ExternalToolType `json:"type"`
	InputSchema json.RawMessage  `json:"inputSchema"`

	// Command-type fields: Command is run with Args in the working
	// directory, and the JSON input is written to its stdin.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// JSONRPC-type fields: the tool is invoked as a JSON-RPC 2.0 request
	// POSTed to URL, with Method as the method and the tool input as params.
	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"` // defaults to Name if empty
}

// ExternalManifest is the top-level mcp_tools.json structure.
type ExternalManifest struct {
	Tools []ExternalToolDef `json:"tools"`
}

// ResolveManifestPath resolves the manifest path per spec: explicit
// MCP_TOOLS_CONF_PATH env var, or ExternalManifestFilename in cwd.
func ResolveManifestPath(cwd, envPath string) string {
	if envPath != "" {
		return envPath
	}
	return filepath.Join(cwd, ExternalManifestFilename)
}

// LoadExternalManifest reads and validates an external tool manifest. A
// missing file is not an error — it returns an empty manifest, matching the
// optional nature of mcp_tools.json.
func LoadExternalManifest(path string) (*ExternalManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ExternalManifest{}, nil
		}
		return nil, fmt.Errorf("reading external tool manifest: %w", err)
	}

	var m ExternalManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing external tool manifest: %w", err)
	}

	for i, def := range m.Tools {
		if len(def.InputSchema) == 0 {
			continue
		}
		if err := validateSchema(def.InputSchema); err != nil {
			return nil, fmt.Errorf("tool %q (entry %d): invalid inputSchema: %w", def.Name, i, err)
		}
	}
	return &m, nil
}

func validateSchema(schema json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return err
	}
	_, err := compiler.Compile("schema.json")
	return err
}

// RegisterExternalTools wraps every entry in the manifest as a tools.Tool
// and registers it. Unknown tool types are skipped with no error, since a
// newer manifest format might describe kinds this build doesn't know yet.
func RegisterExternalTools(registry *Registry, manifest *ExternalManifest, workDir string, timeout time.Duration) {
	for _, def := range manifest.Tools {
		switch def.Type {
		case ExternalToolCommand:
			registry.Register(NewCommandTool(def, workDir, timeout))
		case ExternalToolJSONRPC:
			registry.Register(NewJSONRPCTool(def, timeout))
		}
	}
}

// CommandTool invokes a fixed external command, passing the tool-call input
// as JSON on stdin and returning its stdout as the result. It runs a
// manifest-declared command rather than an LLM-authored shell string and,
// unlike RunShellCommandTool, does not start it in its own process group.
type CommandTool struct {
	def     ExternalToolDef
	workDir string
	timeout time.Duration
}

// NewCommandTool creates a command-type external tool.
func NewCommandTool(def ExternalToolDef, workDir string, timeout time.Duration) *CommandTool {
	return &CommandTool{def: def, workDir: workDir, timeout: timeout}
}

func (t *CommandTool) Name() string               { return t.def.Name }
func (t *CommandTool) Description() string        { return t.def.Description }
func (t *CommandTool) InputSchema() json.RawMessage { return t.def.InputSchema }
func (t *CommandTool) RequiresPermission(_ json.RawMessage) bool { return true }

func (t *CommandTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	timeout := t.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.def.Command, t.def.Args...)
	cmd.Dir = t.workDir
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return "", fmt.Errorf("external tool %q timed out after %s", t.def.Name, timeout)
		}
		return "", fmt.Errorf("external tool %q failed: %w\nstderr: %s", t.def.Name, err, stderr.String())
	}
	return stdout.String(), nil
}

// JSONRPCTool invokes an external tool by POSTing a JSON-RPC 2.0 request to
// a configured URL — the "command over HTTP" shape named in the manifest,
// distinct from MCP's stdio transport.
type JSONRPCTool struct {
	def     ExternalToolDef
	client  *http.Client
	timeout time.Duration
}

// NewJSONRPCTool creates a jsonrpc-type external tool.
func NewJSONRPCTool(def ExternalToolDef, timeout time.Duration) *JSONRPCTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JSONRPCTool{
		def:     def,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (t *JSONRPCTool) Name() string               { return t.def.Name }
func (t *JSONRPCTool) Description() string        { return t.def.Description }
func (t *JSONRPCTool) InputSchema() json.RawMessage { return t.def.InputSchema }
func (t *JSONRPCTool) RequiresPermission(_ json.RawMessage) bool { return true }

type jsonRPCToolRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCToolResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCToolErr `json:"error,omitempty"`
}

type jsonRPCToolErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (t *JSONRPCTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	method := t.def.Method
	if method == "" {
		method = t.def.Name
	}
	reqBody, err := json.Marshal(jsonRPCToolRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  input,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling jsonrpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.def.URL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("building jsonrpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("external tool %q request failed: %w", t.def.Name, err)
	}
	defer resp.Body.Close()

	var rpcResp jsonRPCToolResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("decoding jsonrpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("external tool %q error: %s", t.def.Name, rpcResp.Error.Message)
	}
	return string(rpcResp.Result), nil
}
