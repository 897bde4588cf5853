package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aicoder-go/aicoder/internal/conversation"
)

// Default values for environment-driven knobs. The model and HTTP timeout
// match api.Client's defaults; the base URL does not (api.Client defaults to
// a localhost endpoint). The compaction/timeout/truncation knobs are added
// on top.
const (
	DefaultAPIBaseURL   = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o"
	DefaultHTTPTimeout  = 120 * time.Second
	DefaultStreamTimeout = 180 * time.Second
	DefaultReadTimeout   = 30 * time.Second

	DefaultAutoCompactThreshold    = 150_000
	DefaultContextSize             = 200_000
	DefaultContextCompactPercentage = 92

	DefaultShellCommandTimeout = 30 * time.Second
	DefaultTruncationLimit     = 200
)

// Env holds the process-wide configuration resolved from environment
// variables at startup. It is read once in main and threaded through to the
// components that need it (api.Client, Compactor, Registry, tools).
type Env struct {
	APIBaseURL string
	APIKey     string
	Model      string

	EnableStreaming bool
	HTTPTimeout     time.Duration
	StreamTimeout   time.Duration
	ReadTimeout     time.Duration

	YOLOMode bool

	AutoCompactEnabled      bool
	AutoCompactThreshold    int
	ContextSize             int
	ContextCompactPercentage int

	Debug         bool
	StreamLogFile string

	ShellCommandTimeout time.Duration
	TruncationLimit     int

	MCPToolsConfPath string

	PromptMain         string
	PromptPlan         string
	PromptBuildSwitch  string
	PromptCompaction   string
	PromptProject      string
}

// LoadEnv resolves configuration from the environment, applying defaults for
// anything unset or malformed. It never returns an error: a malformed numeric
// or duration env var falls back to its default rather than aborting
// startup, matching the teacher's permissive env handling.
func LoadEnv() *Env {
	e := &Env{
		APIBaseURL: envString("AICODER_API_BASE_URL", DefaultAPIBaseURL),
		APIKey:     envString("AICODER_API_KEY", os.Getenv("OPENAI_API_KEY")),
		Model:      envString("AICODER_MODEL", DefaultModel),

		EnableStreaming: envBool("ENABLE_STREAMING", true),
		HTTPTimeout:     envDuration("HTTP_TIMEOUT", DefaultHTTPTimeout),
		StreamTimeout:   envDuration("STREAMING_TIMEOUT", DefaultStreamTimeout),
		ReadTimeout:     envDuration("STREAMING_READ_TIMEOUT", DefaultReadTimeout),

		YOLOMode: envBool("YOLO_MODE", false),

		AutoCompactEnabled:       envBool("AUTO_COMPACT_ENABLED", true),
		AutoCompactThreshold:     envInt("AUTO_COMPACT_THRESHOLD", DefaultAutoCompactThreshold),
		ContextSize:              envInt("CONTEXT_SIZE", DefaultContextSize),
		ContextCompactPercentage: envInt("CONTEXT_COMPACT_PERCENTAGE", DefaultContextCompactPercentage),

		Debug:         envBool("DEBUG", false),
		StreamLogFile: envString("STREAM_LOG_FILE", ""),

		ShellCommandTimeout: envDuration("SHELL_COMMAND_TIMEOUT", DefaultShellCommandTimeout),
		TruncationLimit:     envInt("DEFAULT_TRUNCATION_LIMIT", DefaultTruncationLimit),

		MCPToolsConfPath: envString("MCP_TOOLS_CONF_PATH", ""),

		PromptMain:        envString("AICODER_PROMPT_MAIN", ""),
		PromptPlan:        envString("AICODER_PROMPT_PLAN", ""),
		PromptBuildSwitch: envString("AICODER_PROMPT_BUILD_SWITCH", ""),
		PromptCompaction:  envString("AICODER_PROMPT_COMPACTION", ""),
		PromptProject:     envString("AICODER_PROMPT_PROJECT", ""),
	}
	return e
}

// CompactPercentageThreshold returns the prompt-token count at which context
// usage crosses ContextCompactPercentage of ContextSize.
func (e *Env) CompactPercentageThreshold() int {
	if e.ContextSize <= 0 {
		return e.AutoCompactThreshold
	}
	return e.ContextSize * e.ContextCompactPercentage / 100
}

// EffectiveTruncationLimit resolves the display-truncation limit for tool
// argument summaries, honoring the persistent store over the environment
// default per spec.md's precedence (persistent store > env > built-in
// default).
func (e *Env) EffectiveTruncationLimit(store *PersistentStore) int {
	if store != nil {
		if v, ok := store.GetInt("truncation_limit"); ok {
			return v
		}
	}
	return e.TruncationLimit
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	// Bare integers are treated as seconds, matching how the spec's env
	// vars (STREAMING_TIMEOUT etc.) are conventionally set.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ApplyTokenWeights wires any env-supplied token-weight overrides into the
// conversation package's estimator. Absent overrides leave
// conversation.DefaultTokenWeights in effect.
func (e *Env) ApplyTokenWeights() {
	w := conversation.DefaultTokenWeights
	changed := false
	if v, ok := floatEnv("AICODER_TOKEN_WEIGHT_LETTER"); ok {
		w.Letter = v
		changed = true
	}
	if v, ok := floatEnv("AICODER_TOKEN_WEIGHT_DIGIT"); ok {
		w.Digit = v
		changed = true
	}
	if v, ok := floatEnv("AICODER_TOKEN_WEIGHT_PUNCT"); ok {
		w.Punct = v
		changed = true
	}
	if v, ok := floatEnv("AICODER_TOKEN_WEIGHT_WHITESPACE"); ok {
		w.Whitespace = v
		changed = true
	}
	if v, ok := floatEnv("AICODER_TOKEN_WEIGHT_OTHER"); ok {
		w.Other = v
		changed = true
	}
	if changed {
		conversation.SetTokenWeights(w)
	}
}

func floatEnv(key string) (float64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String renders a compact summary for /debug and startup logging.
func (e *Env) String() string {
	return fmt.Sprintf(
		"model=%s base=%s stream=%v yolo=%v auto_compact=%v(threshold=%d) context_size=%d debug=%v",
		e.Model, e.APIBaseURL, e.EnableStreaming, e.YOLOMode, e.AutoCompactEnabled,
		e.AutoCompactThreshold, e.ContextSize, e.Debug,
	)
}
