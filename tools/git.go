package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// ============================================================================
// GIT_DIFF - read-only; supplements the read-file/search-code investigation
// surface with the repository's own change history. Grounded on the
// original implementation's SmartCommitTool, which shells out to `git diff`
// to build its commit-message heuristics; this tool exposes that same git
// call directly to the model instead of hiding it behind message synthesis.
// ============================================================================

type gitDiffArgs struct {
	Staged bool `json:"staged,omitempty" jsonschema:"description=Show only staged (index) changes instead of the working tree,default=false"`
}

// GitDiffTool reports the working tree or staged diff. Read-only: it never
// mutates repository state, so the mode engine permits it in Plan mode.
type GitDiffTool struct {
	workDir string
}

func NewGitDiffTool(workDir string) *GitDiffTool { return &GitDiffTool{workDir: workDir} }

func (t *GitDiffTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "git_diff",
		Description: "Show the current working-tree or staged git diff.",
		Schema:      SchemaFor[gitDiffArgs](),
		Mutating:    false,
	}
}

func (t *GitDiffTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	args := []string{"diff"}
	if staged, _ := params["staged"].(bool); staged {
		args = append(args, "--cached")
	}
	return runGit(ctx, t.workDir, args...)
}

// ============================================================================
// GIT_COMMIT - mutating; records a change to the repository history
// ============================================================================

type gitCommitArgs struct {
	Message string `json:"message" jsonschema:"required,description=Commit message"`
}

// GitCommitTool stages nothing itself (the model is expected to have used
// write_file/run_command to prepare the index) and commits whatever is
// currently staged. Tagged Mutating like write_file.
type GitCommitTool struct {
	workDir string
}

func NewGitCommitTool(workDir string) *GitCommitTool { return &GitCommitTool{workDir: workDir} }

func (t *GitCommitTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "git_commit",
		Description: "Commit the currently staged changes with the given message.",
		Schema:      SchemaFor[gitCommitArgs](),
		Mutating:    true,
	}
}

func (t *GitCommitTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return "", &Error{Kind: KindInvalidParameters, Tool: "git_commit", Msg: "message must not be empty"}
	}
	return runGit(ctx, t.workDir, "commit", "-m", message)
}

func runGit(ctx context.Context, workDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("git %v: %w", args, err)
	}
	return buf.String(), nil
}
