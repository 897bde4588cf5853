package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "http://localhost:8080/v1"
	DefaultModel      = "gpt-4o"
	DefaultMaxTokens  = 8192
	DefaultHTTPTimeout = 120 * time.Second
)

// TokenSource provides access tokens (API keys) for request authentication.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// RefreshableTokenSource extends TokenSource with the ability to invalidate
// a cached token, forcing a re-fetch on the next call. Used for 401
// auto-retry.
type RefreshableTokenSource interface {
	TokenSource
	InvalidateToken()
}

// StaticTokenSource is a TokenSource that always returns the same API key,
// read once at construction (the common case: a bearer key from config/env).
type StaticTokenSource struct {
	Key string
}

// GetAccessToken implements TokenSource.
func (s StaticTokenSource) GetAccessToken(context.Context) (string, error) {
	if s.Key == "" {
		return "", fmt.Errorf("no API key configured")
	}
	return s.Key, nil
}

// Client is the chat-completions HTTP client.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenSource   TokenSource
	model         string
	maxTokens     int
	userAgent     string
	customHeaders map[string]string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithModel sets the default model.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithVersion sets the CLI version used in the User-Agent header.
func WithVersion(version string) ClientOption {
	return func(c *Client) { c.userAgent = "aicoder/" + version }
}

// WithCustomHeaders sets additional HTTP headers, normally parsed from an
// env var via ParseCustomHeaders.
func WithCustomHeaders(headers map[string]string) ClientOption {
	return func(c *Client) { c.customHeaders = headers }
}

// NewClient creates a new chat-completions client.
func NewClient(tokenSource TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		tokenSource: tokenSource,
		model:       DefaultModel,
		maxTokens:   DefaultMaxTokens,
		userAgent:   "aicoder/dev",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.customHeaders == nil {
		c.customHeaders = ParseCustomHeaders(os.Getenv("AICODER_CUSTOM_HEADERS"))
	}

	return c
}

// ParseCustomHeaders parses the AICODER_CUSTOM_HEADERS env var format.
// Format: "header1:value1,header2:value2".
func ParseCustomHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if idx := strings.Index(pair, ":"); idx > 0 {
			key := strings.TrimSpace(pair[:idx])
			val := strings.TrimSpace(pair[idx+1:])
			if key != "" {
				headers[key] = val
			}
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// Model returns the current default model.
func (c *Client) Model() string {
	return c.model
}

// SetModel changes the model used for subsequent requests.
func (c *Client) SetModel(model string) {
	c.model = model
}

// StreamResult is the final assembled state of a streamed chat-completion.
type StreamResult struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

// CreateChatCompletionStream sends a streaming chat-completions request and
// dispatches events to handler as they arrive. It returns the final
// assembled message (content + accumulated tool calls).
func (c *Client) CreateChatCompletionStream(
	ctx context.Context,
	req *ChatCompletionRequest,
	handler StreamHandler,
) (*StreamResult, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.doAPIRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, string(respBody))
	}

	assembler := newResponseAssembler(handler)
	if err := ParseSSEStream(resp.Body, assembler); err != nil {
		return nil, err
	}

	return assembler.Result(), nil
}

// doAPIRequest sends the chat-completions request with auth headers. On a
// 401 response, it invalidates the token (if refreshable) and retries once.
func (c *Client) doAPIRequest(ctx context.Context, body []byte) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokenSource.GetAccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting access token: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(
			ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body),
		)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", c.userAgent)

		for k, v := range c.customHeaders {
			httpReq.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("sending request: %w", err)
		}

		if resp.StatusCode == 401 && attempt == 0 {
			resp.Body.Close()
			if rts, ok := c.tokenSource.(RefreshableTokenSource); ok {
				rts.InvalidateToken()
				continue
			}
		}

		return resp, nil
	}

	return nil, fmt.Errorf("api request failed after retry")
}

// CreateChatCompletion sends a non-streaming chat-completions request and
// returns the response. Used for lightweight calls such as the compaction
// summarization sub-call, where streaming adds no value.
func (c *Client) CreateChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.doAPIRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, string(respBody))
	}

	var completion ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &completion, nil
}

// responseAssembler collects streaming chunks into a final StreamResult,
// accumulating tool-call argument fragments by index the way the teacher's
// Messages-API assembler accumulated content blocks by index.
type responseAssembler struct {
	handler      StreamHandler
	textBuf      bytes.Buffer
	toolCalls    map[int]*ToolCall
	toolOrder    []int
	finishReason string
	usage        Usage
}

func newResponseAssembler(handler StreamHandler) *responseAssembler {
	return &responseAssembler{
		handler:   handler,
		toolCalls: make(map[int]*ToolCall),
	}
}

func (a *responseAssembler) Result() *StreamResult {
	calls := make([]ToolCall, 0, len(a.toolOrder))
	for _, idx := range a.toolOrder {
		calls = append(calls, *a.toolCalls[idx])
	}
	role := RoleAssistant
	msg := Message{Role: role, Content: a.textBuf.String(), ToolCalls: calls}
	return &StreamResult{Message: msg, FinishReason: a.finishReason, Usage: a.usage}
}

func (a *responseAssembler) OnRoleStart(role string) {
	a.handler.OnRoleStart(role)
}

func (a *responseAssembler) OnTextDelta(text string) {
	a.textBuf.WriteString(text)
	a.handler.OnTextDelta(text)
}

func (a *responseAssembler) OnToolCallDelta(delta ToolCallDelta) {
	tc, ok := a.toolCalls[delta.Index]
	if !ok {
		tc = &ToolCall{Index: delta.Index, Type: "function"}
		a.toolCalls[delta.Index] = tc
		a.toolOrder = append(a.toolOrder, delta.Index)
	}
	if delta.ID != "" {
		tc.ID = delta.ID
	}
	if delta.Type != "" {
		tc.Type = delta.Type
	}
	if delta.Function.Name != "" {
		tc.Function.Name += delta.Function.Name
	}
	if delta.Function.Arguments != "" {
		tc.Function.Arguments += delta.Function.Arguments
	}
	a.handler.OnToolCallDelta(delta)
}

func (a *responseAssembler) OnFinish(reason string) {
	a.finishReason = reason
	a.handler.OnFinish(reason)
}

func (a *responseAssembler) OnUsage(usage Usage) {
	a.usage = usage
	a.handler.OnUsage(usage)
}

func (a *responseAssembler) OnError(err error) {
	a.handler.OnError(err)
}
