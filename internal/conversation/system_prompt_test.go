package conversation

import (
	"runtime"
	"strings"
	"testing"
)

func TestSectionIdentity(t *testing.T) {
	ctx := &PromptContext{CWD: "/test"}
	text := sectionIdentity(ctx)
	if !strings.Contains(text, "tools") {
		t.Error("identity section should mention tools")
	}
	for _, want := range []string{"authorized security testing", "CTF challenges", "DoS attacks"} {
		if !strings.Contains(text, want) {
			t.Errorf("identity section should contain %q", want)
		}
	}
}

func TestSectionDoingTasks(t *testing.T) {
	ctx := &PromptContext{}
	text := sectionDoingTasks(ctx)
	if !strings.HasPrefix(text, "# Doing tasks") {
		t.Error("doing tasks section should start with header")
	}
	for _, want := range []string{"premature abstraction", "backwards-compatibility hacks"} {
		if !strings.Contains(text, want) {
			t.Errorf("doing tasks should contain %q", want)
		}
	}
}

func TestSectionActionCare(t *testing.T) {
	ctx := &PromptContext{}
	text := sectionActionCare(ctx)
	if !strings.HasPrefix(text, "# Executing actions with care") {
		t.Error("action care should start with header")
	}
	for _, want := range []string{"reversibility and blast radius", "Destructive operations", "force-pushing"} {
		if !strings.Contains(text, want) {
			t.Errorf("action care should contain %q", want)
		}
	}
}

func TestSectionEnvironment(t *testing.T) {
	ctx := &PromptContext{CWD: "/my/project", Model: "gpt-4o"}
	text := sectionEnvironment(ctx)
	if !strings.Contains(text, "/my/project") {
		t.Errorf("should include CWD, got: %s", text)
	}
	if !strings.Contains(text, runtime.GOOS) {
		t.Errorf("should include OS, got: %s", text)
	}
	if !strings.Contains(text, "gpt-4o") {
		t.Errorf("should include model, got: %s", text)
	}
}

func TestSectionSkills_Empty(t *testing.T) {
	ctx := &PromptContext{}
	if text := sectionSkills(ctx); text != "" {
		t.Errorf("empty skill content should produce empty string, got: %q", text)
	}
}

func TestSectionSkills_NonEmpty(t *testing.T) {
	ctx := &PromptContext{SkillContent: "some skill instructions"}
	text := sectionSkills(ctx)
	if !strings.HasPrefix(text, "# Active Skills") {
		t.Error("skills section should start with header")
	}
	if !strings.Contains(text, "some skill instructions") {
		t.Error("skills section should include content")
	}
}

func TestSectionApprovalRules_Empty(t *testing.T) {
	ctx := &PromptContext{}
	if text := sectionApprovalRules(ctx); text != "" {
		t.Errorf("empty rule dir should produce empty string, got: %q", text)
	}
}

func TestSectionApprovalRules_WithDir(t *testing.T) {
	ctx := &PromptContext{RuleFileDir: "/home/user/.config/aicoder"}
	text := sectionApprovalRules(ctx)
	if !strings.HasPrefix(text, "# Approval rules") {
		t.Error("approval rules section should start with header")
	}
	if !strings.Contains(text, "/home/user/.config/aicoder") {
		t.Error("approval rules section should mention the rule directory")
	}
}

func TestRenderSections(t *testing.T) {
	ctx := &PromptContext{}
	sections := []PromptSection{
		func(_ *PromptContext) string { return "alpha" },
		func(_ *PromptContext) string { return "" }, // skipped
		func(_ *PromptContext) string { return "beta" },
	}
	got := renderSections(sections, ctx)
	want := "alpha\n\nbeta"
	if got != want {
		t.Errorf("renderSections = %q, want %q", got, want)
	}
}

func TestRenderSections_AllEmpty(t *testing.T) {
	ctx := &PromptContext{}
	sections := []PromptSection{
		func(_ *PromptContext) string { return "" },
	}
	if got := renderSections(sections, ctx); got != "" {
		t.Errorf("all-empty sections should return empty string, got: %q", got)
	}
}

func TestRenderSections_Nil(t *testing.T) {
	if got := renderSections(nil, &PromptContext{}); got != "" {
		t.Errorf("nil sections should return empty string, got: %q", got)
	}
}

func TestBuildSystemPrompt_CoreSections(t *testing.T) {
	text := BuildSystemPrompt(&PromptContext{CWD: "/test", Model: "gpt-4o"})
	if !strings.Contains(text, "/test") {
		t.Error("prompt should contain CWD")
	}
	if !strings.Contains(text, "# Doing tasks") {
		t.Error("prompt should contain core sections")
	}
}

func TestBuildSystemPrompt_WithSkills(t *testing.T) {
	text := BuildSystemPrompt(&PromptContext{CWD: "/nonexistent", SkillContent: "test skill"})
	if !strings.Contains(text, "Active Skills") {
		t.Error("prompt should contain skills section")
	}
}

func TestBuildSystemPrompt_WithGitStatus(t *testing.T) {
	text := BuildSystemPrompt(&PromptContext{CWD: "/nonexistent", GitStatus: "clean"})
	if !strings.Contains(text, "gitStatus: clean") {
		t.Error("prompt should append git status")
	}
}

func TestRegisterCoreSection(t *testing.T) {
	orig := make([]PromptSection, len(coreSections))
	copy(orig, coreSections)
	defer func() { coreSections = orig }()

	RegisterCoreSection(func(_ *PromptContext) string {
		return "custom core"
	})

	text := BuildSystemPrompt(&PromptContext{CWD: "/test"})
	if !strings.Contains(text, "custom core") {
		t.Error("registered core section should appear in the prompt")
	}
}

func TestRegisterProjectSection(t *testing.T) {
	orig := make([]PromptSection, len(projectSections))
	copy(orig, projectSections)
	defer func() { projectSections = orig }()

	RegisterProjectSection(func(_ *PromptContext) string {
		return "custom project"
	})

	text := BuildSystemPrompt(&PromptContext{CWD: "/nonexistent"})
	if !strings.Contains(text, "custom project") {
		t.Error("registered project section should appear in the prompt")
	}
}
