package tools_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/agentcore/tools"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com", "GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestGitDiffTool_ReportsWorkingTreeChange(t *testing.T) {
	dir := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o644))

	tool := tools.NewGitDiffTool(dir)
	assert.False(t, tool.Descriptor().Mutating)

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
}

func TestGitCommitTool_CommitsStagedChanges(t *testing.T) {
	dir := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new file\n"), 0o644))
	cmd := exec.Command("git", "add", "b.txt")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	tool := tools.NewGitCommitTool(dir)
	assert.True(t, tool.Descriptor().Mutating)

	out, err := tool.Execute(context.Background(), map[string]any{"message": "add b.txt"})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestGitCommitTool_RejectsEmptyMessage(t *testing.T) {
	dir := initGitRepo(t)
	tool := tools.NewGitCommitTool(dir)

	_, err := tool.Execute(context.Background(), map[string]any{"message": ""})
	require.Error(t, err)
	var toolErr *tools.Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tools.KindInvalidParameters, toolErr.Kind)
}
