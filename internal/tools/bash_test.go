package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunShellCommandTool_SimpleCommand(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())

	input, _ := json.Marshal(RunShellCommandInput{Command: "echo hello"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "hello") {
		t.Errorf("expected 'hello' in result, got %q", result)
	}
	if !strings.Contains(result, "[exit_code] 0") {
		t.Errorf("expected exit code 0, got %q", result)
	}
}

func TestRunShellCommandTool_EmptyCommand(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())

	input, _ := json.Marshal(RunShellCommandInput{Command: ""})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "command is required") {
		t.Errorf("expected error about empty command, got %q", result)
	}
}

func TestRunShellCommandTool_ExitCode(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())

	input, _ := json.Marshal(RunShellCommandInput{Command: "exit 42"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "[exit_code] 42") {
		t.Errorf("expected exit code 42 in result, got %q", result)
	}
}

func TestRunShellCommandTool_Stderr(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())

	input, _ := json.Marshal(RunShellCommandInput{Command: "echo error >&2"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "error") {
		t.Errorf("expected stderr output in result, got %q", result)
	}
}

func TestRunShellCommandTool_Timeout(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())

	timeout := 100 // 100ms
	input, _ := json.Marshal(RunShellCommandInput{
		Command: "sleep 10",
		Timeout: &timeout,
	})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "[timeout]") {
		t.Errorf("expected timeout notice, got %q", result)
	}
}

func TestRunShellCommandTool_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := NewRunShellCommandTool(dir)

	input, _ := json.Marshal(RunShellCommandInput{Command: "pwd"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, dir) {
		t.Errorf("expected working dir %q in result, got %q", dir, result)
	}
}

func TestRunShellCommandTool_RequiresPermission(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())
	if !tool.RequiresPermission(nil) {
		t.Error("run_shell_command tool should require permission")
	}
}

func TestRunShellCommandTool_ProcessGroupKillOnTimeout(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())

	timeout := 100 // 100ms
	input, _ := json.Marshal(RunShellCommandInput{
		Command: "sleep 5 & wait",
		Timeout: &timeout,
	})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "[timeout]") {
		t.Errorf("expected the backgrounded child to be killed with its group, got %q", result)
	}
}

func TestRunShellCommandTool_ContextCancellation(t *testing.T) {
	tool := NewRunShellCommandTool(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	input, _ := json.Marshal(RunShellCommandInput{Command: "sleep 10"})
	_, err := tool.Execute(ctx, input)
	if err == nil {
		t.Log("no error on cancelled context (command may not have started)")
	}
}
