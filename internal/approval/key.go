package approval

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ApprovalKey derives the canonical session-cache key for a tool call, per
// the data model: run_shell_command keys off the basename of the command's
// first token; every other tool keys off the tool name plus its sorted
// "k1=v1&k2=v2" argument string, with excludeArgs removed before sorting.
// Non-scalar argument values are JSON-encoded before being folded in.
func ApprovalKey(toolName string, input []byte, excludeArgs []string, excludeAllArgs bool) string {
	parsed := parseInput(input)

	if toolName == "run_shell_command" {
		cmd := parsed.str("command")
		first := firstToken(cmd)
		return "run_shell_command:" + filepath.Base(first)
	}

	if excludeAllArgs {
		return toolName
	}

	exclude := make(map[string]bool, len(excludeArgs))
	for _, a := range excludeArgs {
		exclude[a] = true
	}

	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		if !exclude[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(toolName)
	b.WriteByte(':')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		val := strings.TrimSpace(string(parsed[k]))
		var s string
		if json.Unmarshal(parsed[k], &s) == nil {
			val = s
		}
		fmt.Fprintf(&b, "%s=%s", k, val)
	}
	return b.String()
}

// firstToken returns the first whitespace-delimited token of a shell
// command, ignoring leading whitespace.
func firstToken(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return ""
	}
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
