package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ============================================================================
// READ_FILE - read-only, safe under Plan mode
// ============================================================================

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
}

// ReadFileTool reads a file's contents relative to a fixed working
// directory. It never mutates anything, so the mode/permission engine
// allows it in Plan mode.
type ReadFileTool struct {
	workDir string
}

func NewReadFileTool(workDir string) *ReadFileTool { return &ReadFileTool{workDir: workDir} }

func (t *ReadFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "read_file",
		Description: "Read the contents of a file at the given path.",
		Schema:      SchemaFor[readFileArgs](),
		Mutating:    false,
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	full, err := resolveWithin(t.workDir, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}

// ============================================================================
// WRITE_FILE - mutating; gated by mode/permission engine and approval queue
// ============================================================================

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the working directory"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
	Backup  bool   `json:"backup,omitempty" jsonschema:"description=Write a .bak copy of any existing file first,default=true"`
}

// WriteFileTool creates or overwrites a file. Tagged Mutating: the turn
// loop never dispatches it without a permission check and, depending on
// approval policy, a queued confirmation.
type WriteFileTool struct {
	workDir string
}

func NewWriteFileTool(workDir string) *WriteFileTool { return &WriteFileTool{workDir: workDir} }

func (t *WriteFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "write_file",
		Description: "Create a new file or overwrite an existing file with content.",
		Schema:      SchemaFor[writeFileArgs](),
		Mutating:    true,
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)
	backup := true
	if b, ok := params["backup"].(bool); ok {
		backup = b
	}

	full, err := resolveWithin(t.workDir, path)
	if err != nil {
		return "", err
	}

	if backup {
		if _, err := os.Stat(full); err == nil {
			if existing, err := os.ReadFile(full); err == nil {
				_ = os.WriteFile(full+".bak", existing, 0o644)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// ============================================================================
// SEARCH_CODE - read-only
// ============================================================================

type searchCodeArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Literal substring to search for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of matching lines to return,default=50"`
}

// SearchCodeTool performs a naive line-oriented substring search under the
// working directory. Read-only.
type SearchCodeTool struct {
	workDir string
}

func NewSearchCodeTool(workDir string) *SearchCodeTool { return &SearchCodeTool{workDir: workDir} }

func (t *SearchCodeTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "search_code",
		Description: "Search source files under the working directory for a literal substring.",
		Schema:      SchemaFor[searchCodeArgs](),
		Mutating:    false,
	}
}

func (t *SearchCodeTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query, _ := params["query"].(string)
	maxResults := 50
	if mr, ok := params["max_results"].(float64); ok && mr > 0 {
		maxResults = int(mr)
	}

	var out strings.Builder
	count := 0
	err := filepath.WalkDir(t.workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || count >= maxResults {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() && count < maxResults {
			lineNo++
			if strings.Contains(scanner.Text(), query) {
				rel, _ := filepath.Rel(t.workDir, path)
				fmt.Fprintf(&out, "%s:%d: %s\n", rel, lineNo, strings.TrimSpace(scanner.Text()))
				count++
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search_code: %w", err)
	}
	if count == 0 {
		return "no matches", nil
	}
	return out.String(), nil
}

// ============================================================================
// RUN_COMMAND - mutating (shell side effects)
// ============================================================================

type runCommandArgs struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to execute"`
}

// RunCommandTool runs an arbitrary shell command. Always Mutating: even a
// nominally read-only command can have side effects the runtime cannot
// verify, so it is gated like a write.
type RunCommandTool struct {
	workDir string
}

func NewRunCommandTool(workDir string) *RunCommandTool { return &RunCommandTool{workDir: workDir} }

func (t *RunCommandTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "run_command",
		Description: "Execute a shell command in the working directory and return its combined output.",
		Schema:      SchemaFor[runCommandArgs](),
		Mutating:    true,
	}
}

func (t *RunCommandTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	command, _ := params["command"].(string)
	if command == "" {
		return "", &Error{Kind: KindInvalidParameters, Tool: "run_command", Msg: "command must not be empty"}
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = t.workDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("run_command: %w", err)
	}
	return buf.String(), nil
}

// resolveWithin joins path onto workDir and rejects escapes via "..".
func resolveWithin(workDir, path string) (string, error) {
	if path == "" {
		return "", &Error{Kind: KindInvalidParameters, Tool: "path", Msg: "path must not be empty"}
	}
	full := filepath.Join(workDir, path)
	rel, err := filepath.Rel(workDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", &Error{Kind: KindInvalidParameters, Tool: "path", Msg: "path escapes working directory"}
	}
	return full, nil
}
