package conversation

import (
	"strings"
	"testing"
)

func TestBuildContextMessage_Empty(t *testing.T) {
	ctx := UserContext{}
	got := BuildContextMessage(ctx)
	if got != "" {
		t.Errorf("empty context should return empty string, got: %q", got)
	}
}

func TestBuildContextMessage_WithMemoryContent(t *testing.T) {
	ctx := UserContext{
		MemoryContent: "Some project instructions",
	}
	got := BuildContextMessage(ctx)
	if !strings.Contains(got, "<system-reminder>") {
		t.Error("should contain system-reminder tag")
	}
	if !strings.Contains(got, "# memory") {
		t.Error("should contain memory section header")
	}
	if !strings.Contains(got, "Some project instructions") {
		t.Error("should contain memory file content")
	}
	if !strings.Contains(got, "IMPORTANT: this context may or may not be relevant") {
		t.Error("should contain importance note")
	}
}

func TestBuildContextMessage_WithCurrentDate(t *testing.T) {
	ctx := UserContext{
		CurrentDate: "Today's date is 2026-02-26.",
	}
	got := BuildContextMessage(ctx)
	if !strings.Contains(got, "# currentDate") {
		t.Error("should contain currentDate section header")
	}
	if !strings.Contains(got, "2026-02-26") {
		t.Error("should contain date")
	}
}

func TestBuildContextMessage_AllFields(t *testing.T) {
	ctx := UserContext{
		MemoryContent: "# Project\nSome instructions",
		CurrentDate:   "Today's date is 2026-02-26.",
	}
	got := BuildContextMessage(ctx)

	if !strings.HasPrefix(got, "<system-reminder>") {
		t.Error("should start with <system-reminder>")
	}
	if !strings.Contains(got, "</system-reminder>") {
		t.Error("should contain closing </system-reminder>")
	}

	memIdx := strings.Index(got, "# memory")
	dateIdx := strings.Index(got, "# currentDate")
	if memIdx == -1 || dateIdx == -1 {
		t.Fatal("all sections should be present")
	}
	if memIdx >= dateIdx {
		t.Error("sections should appear in order: memory, currentDate")
	}
}

func TestFormatCurrentDate(t *testing.T) {
	date := FormatCurrentDate()
	if !strings.HasPrefix(date, "Today's date is ") {
		t.Errorf("should start with 'Today's date is', got: %q", date)
	}
	if !strings.HasSuffix(date, ".") {
		t.Errorf("should end with period, got: %q", date)
	}
}
