package approval

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// RuleFile is an ordered sequence of regex patterns loaded from one of the
// three rule files under the user config directory. Blank lines and
// `#`-prefixed comments are skipped; in the auto_approve file a leading
// `!` negates the pattern (matches commands that do NOT match it). A bare
// `!` (empty pattern after negation) is skipped to avoid a match-everything
// footgun.
type RuleFile struct {
	patterns []rulePattern
}

type rulePattern struct {
	re      *regexp.Regexp
	negate  bool
	literal string // original source line, for diagnostics/tests
}

// The three rule files read from the config directory, in
// fixed precedence order: auto_deny beats ask_approval beats auto_approve.
const (
	AutoDenyFile    = "run_shell_command.auto_deny"
	AskApprovalFile = "run_shell_command.ask_approval"
	AutoApproveFile = "run_shell_command.auto_approve"
)

// LoadRuleFile reads and parses a single rule file. A missing file yields
// an empty RuleFile, not an error.
func LoadRuleFile(path string) (*RuleFile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RuleFile{}, nil
		}
		return nil, err
	}
	defer f.Close()

	rf := &RuleFile{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		negate := false
		if strings.HasPrefix(line, "!") {
			negate = true
			line = strings.TrimSpace(line[1:])
		}
		if line == "" {
			continue // bare "!" — skip to avoid match-everything
		}
		re, err := regexp.Compile(line)
		if err != nil {
			continue // malformed pattern — skip rather than fail the whole file
		}
		rf.patterns = append(rf.patterns, rulePattern{re: re, negate: negate, literal: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Matches reports whether cmd matches this rule file. For non-negated
// patterns, a match means the regex found in cmd. For negated patterns
// (only meaningful in the auto_approve file), the pattern matches when the
// regex does NOT find in cmd.
func (rf *RuleFile) Matches(cmd string) (bool, string) {
	if rf == nil {
		return false, ""
	}
	for _, p := range rf.patterns {
		found := p.re.MatchString(cmd)
		if p.negate {
			if !found {
				return true, "!" + p.literal
			}
			continue
		}
		if found {
			return true, p.literal
		}
	}
	return false, ""
}

// RuleSet bundles the three loaded rule files for one config directory.
type RuleSet struct {
	AutoDeny    *RuleFile
	AskApproval *RuleFile
	AutoApprove *RuleFile
}

// LoadRuleSet loads all three rule files from dir (cmd/aicoder passes
// ~/.aicoder/).
func LoadRuleSet(dir string) (*RuleSet, error) {
	deny, err := LoadRuleFile(filepath.Join(dir, AutoDenyFile))
	if err != nil {
		return nil, err
	}
	ask, err := LoadRuleFile(filepath.Join(dir, AskApprovalFile))
	if err != nil {
		return nil, err
	}
	approve, err := LoadRuleFile(filepath.Join(dir, AutoApproveFile))
	if err != nil {
		return nil, err
	}
	return &RuleSet{AutoDeny: deny, AskApproval: ask, AutoApprove: approve}, nil
}

// Evaluate runs the fixed precedence order (auto_deny → ask_approval →
// auto_approve → default-ask) against cmd.
func (rs *RuleSet) Evaluate(cmd string) Result {
	if rs == nil {
		return Result{Behavior: BehaviorAsk}
	}
	if ok, rule := rs.AutoDeny.Matches(cmd); ok {
		return Result{
			Behavior: BehaviorDeny,
			Message:  "command matches a run_shell_command.auto_deny rule",
			Reason:   &DecisionReason{Type: ReasonRuleFile, Rule: rule},
		}
	}
	if ok, rule := rs.AskApproval.Matches(cmd); ok {
		return Result{
			Behavior: BehaviorAsk,
			Reason:   &DecisionReason{Type: ReasonRuleFile, Rule: rule},
		}
	}
	if ok, rule := rs.AutoApprove.Matches(cmd); ok {
		return Result{
			Behavior: BehaviorAllow,
			Reason:   &DecisionReason{Type: ReasonRuleFile, Rule: rule},
		}
	}
	return Result{Behavior: BehaviorAsk}
}
