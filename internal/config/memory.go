package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MemoryEntry represents a loaded AICODER.md file with its metadata.
type MemoryEntry struct {
	Path    string // absolute path to the file
	Type    string // "User", "Project", "Local", "Managed"
	Content string // file content
}

// LoadMemory loads and merges AICODER.md content from multiple locations.
// Returns a plain concatenation of all content (legacy behavior).
func LoadMemory(cwd string) string {
	entries := LoadMemoryEntries(cwd)
	if len(entries) == 0 {
		return ""
	}
	var sections []string
	for _, e := range entries {
		sections = append(sections, e.Content)
	}
	return strings.Join(sections, "\n\n---\n\n")
}

// LoadMemoryEntries loads AICODER.md files with path and type annotations,
// in the order user-level, then ancestor directories, then project-level.
func LoadMemoryEntries(cwd string) []MemoryEntry {
	var entries []MemoryEntry

	// 1. User-level: ~/.aicoder/AICODER.md
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".aicoder", "AICODER.md")
		if content := loadMemoryFile(path, nil); content != "" {
			entries = append(entries, MemoryEntry{Path: path, Type: "User", Content: content})
		}
		// User-level rules: ~/.aicoder/rules/
		rulesDir := filepath.Join(home, ".aicoder", "rules")
		if rules := loadRulesDir(rulesDir); rules != "" {
			entries = append(entries, MemoryEntry{Path: rulesDir, Type: "User", Content: rules})
		}
	}

	// 2. Walk from filesystem root to CWD, loading AICODER.md at each level.
	parts := strings.Split(filepath.Clean(cwd), string(filepath.Separator))
	for i := 1; i <= len(parts); i++ {
		dir := string(filepath.Separator) + filepath.Join(parts[1:i]...)
		path := filepath.Join(dir, "AICODER.md")
		if content := loadMemoryFile(path, nil); content != "" {
			entries = append(entries, MemoryEntry{Path: path, Type: "Project", Content: content})
		}
	}

	// 3. Project-level: .aicoder/AICODER.md
	path := filepath.Join(cwd, ".aicoder", "AICODER.md")
	if content := loadMemoryFile(path, nil); content != "" {
		entries = append(entries, MemoryEntry{Path: path, Type: "Project", Content: content})
	}

	// 4. Project-level rules: .aicoder/rules/
	rulesDir := filepath.Join(cwd, ".aicoder", "rules")
	if rules := loadRulesDir(rulesDir); rules != "" {
		entries = append(entries, MemoryEntry{Path: rulesDir, Type: "Project", Content: rules})
	}

	return entries
}

// FormatMemoryForContext formats AICODER.md entries for injection into
// the <system-reminder> context block shown to the model.
func FormatMemoryForContext(entries []MemoryEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var parts []string
	for _, entry := range entries {
		if entry.Content == "" {
			continue
		}
		var annotation string
		switch entry.Type {
		case "Project":
			annotation = " (project instructions, checked into the codebase)"
		case "Local":
			annotation = " (user's private project instructions, not checked in)"
		case "User":
			annotation = " (user's private global instructions for all projects)"
		default:
			annotation = ""
		}
		parts = append(parts, fmt.Sprintf("Contents of %s%s:\n\n%s", entry.Path, annotation, entry.Content))
	}

	if len(parts) == 0 {
		return ""
	}

	const preamble = "Codebase and user instructions are shown below. Be sure to adhere to these instructions. IMPORTANT: These instructions OVERRIDE any default behavior and you MUST follow them exactly as written."
	return preamble + "\n\n" + strings.Join(parts, "\n\n")
}

// loadMemoryFile reads a AICODER.md file and resolves @path imports.
// The visited set prevents import cycles.
func loadMemoryFile(path string, visited map[string]bool) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	// Cycle detection.
	if visited == nil {
		visited = make(map[string]bool)
	}
	if visited[absPath] {
		return ""
	}
	visited[absPath] = true

	data, err := os.ReadFile(absPath)
	if err != nil {
		return ""
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return ""
	}

	// Resolve @path imports. Each @path directive must be on its own line.
	dir := filepath.Dir(absPath)
	return resolveImports(content, dir, visited)
}

// resolveImports processes @path directives in AICODER.md content.
// Paths are resolved relative to the directory containing the file.
// Max depth is limited by cycle detection.
func resolveImports(content string, baseDir string, visited map[string]bool) string {
	lines := strings.Split(content, "\n")
	var result []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Check for @path directive (line starts with @ followed by a path).
		if strings.HasPrefix(trimmed, "@") && len(trimmed) > 1 {
			importPath := trimmed[1:] // strip the @

			// Resolve relative to the file's directory.
			if !filepath.IsAbs(importPath) {
				importPath = filepath.Join(baseDir, importPath)
			}

			// Check if it's a file or directory.
			info, err := os.Stat(importPath)
			if err != nil {
				// Keep the line as-is if the path doesn't exist.
				result = append(result, line)
				continue
			}

			if info.IsDir() {
				// Import all .md files from the directory.
				dirContent := loadRulesDir(importPath)
				if dirContent != "" {
					result = append(result, dirContent)
				}
			} else {
				// Import the file.
				imported := loadMemoryFile(importPath, visited)
				if imported != "" {
					result = append(result, imported)
				}
			}
			continue
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// loadRulesDir loads all .md files from a rules directory, sorted alphabetically.
// It does not recurse into subdirectories.
func loadRulesDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	// Collect .md files, sorted alphabetically.
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(entry.Name()), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var sections []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content != "" {
			sections = append(sections, content)
		}
	}

	return strings.Join(sections, "\n\n")
}
