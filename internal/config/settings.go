// Package config handles settings loading, merging, and AICODER.md processing.
//
// Settings come from five levels (highest priority first), four of which are
// files read here:
//  1. Managed — /etc/aicoder/settings.json
//  2. CLI flags — applied after loading (not handled here)
//  3. Local — .aicoder/settings.local.json (gitignored, per-project)
//  4. Project — .aicoder/settings.json (committed, per-project)
//  5. User — ~/.aicoder/settings.json (global)
//
// This layer carries the operator-facing preferences (model default, hook
// config, env overrides, theme/editor prefs). Tool-call gating lives
// entirely in internal/approval's three-file regex RuleSet (§3/§4.6); this
// package has no permission rules of its own to avoid a second gate running
// in parallel with the Approval Engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings holds merged configuration from all levels.
type Settings struct {
	Model   string            `json:"model,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Hooks   json.RawMessage   `json:"hooks,omitempty"` // parsed by hooks.HookConfig
	Sandbox json.RawMessage   `json:"sandbox,omitempty"`

	// User-facing preferences (displayed in the config panel).
	AutoCompactEnabled *bool  `json:"autoCompactEnabled,omitempty"`
	Verbose            *bool  `json:"verbose,omitempty"`
	ThinkingEnabled    *bool  `json:"alwaysThinkingEnabled,omitempty"`
	EditorMode         string `json:"editorMode,omitempty"`   // "normal" or "vim"
	DiffTool           string `json:"diffTool,omitempty"`     // "terminal" or "auto"
	NotifChannel       string `json:"notifChannel,omitempty"` // "auto", "terminal_bell", "iterm2", etc.
	Theme              string `json:"theme,omitempty"`
	RespectGitignore   *bool  `json:"respectGitignore,omitempty"`
	FastMode           *bool  `json:"fastMode,omitempty"`
}

// LoadSettings loads and merges settings from all levels.
// The merge order is user → project → local → managed (each level overrides the previous).
func LoadSettings(cwd string) (*Settings, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &Settings{}, nil // non-fatal: use empty settings
	}

	paths := settingsPaths(home, cwd)

	// Load from lowest to highest priority, merging as we go.
	// Higher priority settings override lower priority ones.
	merged := &Settings{}
	for _, path := range paths {
		layer, err := loadSettingsFile(path)
		if err != nil {
			continue // file doesn't exist or is invalid — skip
		}
		merged = mergeSettings(merged, layer)
	}

	return merged, nil
}

// settingsPaths returns settings file paths from lowest to highest priority.
func settingsPaths(home, cwd string) []string {
	return []string{
		// 5. User (lowest priority)
		filepath.Join(home, ".aicoder", "settings.json"),
		// 4. Project
		filepath.Join(cwd, ".aicoder", "settings.json"),
		// 3. Local
		filepath.Join(cwd, ".aicoder", "settings.local.json"),
		// 1. Managed (highest priority)
		"/etc/aicoder/settings.json",
	}
}

// loadSettingsFile reads and parses a single settings JSON file.
func loadSettingsFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// mergeSettings merges overlay on top of base.
// Scalar fields from overlay replace base when non-zero.
// Env maps are merged with overlay values overriding base.
func mergeSettings(base, overlay *Settings) *Settings {
	result := &Settings{}

	// Model: overlay wins if set.
	result.Model = base.Model
	if overlay.Model != "" {
		result.Model = overlay.Model
	}

	// Env: deep merge, overlay wins per key.
	result.Env = make(map[string]string)
	for k, v := range base.Env {
		result.Env[k] = v
	}
	for k, v := range overlay.Env {
		result.Env[k] = v
	}

	// Hooks: overlay wins if set.
	result.Hooks = base.Hooks
	if overlay.Hooks != nil {
		result.Hooks = overlay.Hooks
	}

	// Sandbox: overlay wins if set.
	result.Sandbox = base.Sandbox
	if overlay.Sandbox != nil {
		result.Sandbox = overlay.Sandbox
	}

	// User-facing preferences: overlay wins if set.
	result.AutoCompactEnabled = base.AutoCompactEnabled
	if overlay.AutoCompactEnabled != nil {
		result.AutoCompactEnabled = overlay.AutoCompactEnabled
	}
	result.Verbose = base.Verbose
	if overlay.Verbose != nil {
		result.Verbose = overlay.Verbose
	}
	result.ThinkingEnabled = base.ThinkingEnabled
	if overlay.ThinkingEnabled != nil {
		result.ThinkingEnabled = overlay.ThinkingEnabled
	}
	result.EditorMode = base.EditorMode
	if overlay.EditorMode != "" {
		result.EditorMode = overlay.EditorMode
	}
	result.DiffTool = base.DiffTool
	if overlay.DiffTool != "" {
		result.DiffTool = overlay.DiffTool
	}
	result.NotifChannel = base.NotifChannel
	if overlay.NotifChannel != "" {
		result.NotifChannel = overlay.NotifChannel
	}
	result.Theme = base.Theme
	if overlay.Theme != "" {
		result.Theme = overlay.Theme
	}
	result.RespectGitignore = base.RespectGitignore
	if overlay.RespectGitignore != nil {
		result.RespectGitignore = overlay.RespectGitignore
	}
	result.FastMode = base.FastMode
	if overlay.FastMode != nil {
		result.FastMode = overlay.FastMode
	}

	return result
}

// UserSettingsPath returns the path to the user-level settings file (~/.aicoder/settings.json).
func UserSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".aicoder", "settings.json"), nil
}

// SaveUserSetting saves a single key/value pair to the user-level settings file.
// It reads the existing file, deep-merges the new value, and writes back.
func SaveUserSetting(key string, value interface{}) error {
	path, err := UserSettingsPath()
	if err != nil {
		return err
	}

	// Read existing settings as raw map.
	var settings map[string]interface{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			settings = make(map[string]interface{})
			if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
				return fmt.Errorf("creating settings directory: %w", mkErr)
			}
		} else {
			return fmt.Errorf("reading settings: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &settings); err != nil {
			// If the file is corrupt, start fresh rather than fail.
			settings = make(map[string]interface{})
		}
	}

	// nil means "remove the key" (matches the CLI's behavior of saving undefined).
	if value == nil {
		delete(settings, key)
	} else {
		settings[key] = value
	}

	output, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	output = append(output, '\n')

	if err := os.WriteFile(path, output, 0644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// BoolVal returns the value of a *bool pointer, or the default if nil.
func BoolVal(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// BoolPtr returns a pointer to a bool value.
func BoolPtr(v bool) *bool {
	return &v
}
