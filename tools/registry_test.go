package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/agentcore/tools"
)

func TestRegistry_RegisterBuiltinsAndList(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.RegisterBuiltins(t.TempDir()))

	descs := r.List()
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "read_file")
	assert.Contains(t, names, "write_file")
	assert.Contains(t, names, "search_code")
	assert.Contains(t, names, "run_command")
}

func TestRegistry_IsMutating(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.RegisterBuiltins(t.TempDir()))

	assert.False(t, r.IsMutating("read_file"))
	assert.True(t, r.IsMutating("write_file"))
	assert.True(t, r.IsMutating("run_command"))
	// Unknown tools fail closed.
	assert.True(t, r.IsMutating("does_not_exist"))
}

func TestRegistry_InvokeUnknownToolReturnsNotFound(t *testing.T) {
	r := tools.NewRegistry()
	result := r.Invoke(context.Background(), tools.Call{Name: "no_such_tool"})
	assert.False(t, result.Success)
	var toolErr *tools.Error
	require.ErrorAs(t, result.Err, &toolErr)
	assert.Equal(t, tools.KindNotFound, toolErr.Kind)
}

func TestRegistry_InvokeInvalidParamsReturnsInvalidParameters(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.RegisterBuiltins(t.TempDir()))

	result := r.Invoke(context.Background(), tools.Call{Name: "read_file", Params: map[string]any{}})
	assert.False(t, result.Success)
	var toolErr *tools.Error
	require.ErrorAs(t, result.Err, &toolErr)
	assert.Equal(t, tools.KindInvalidParameters, toolErr.Kind)
}

func TestRegistry_ReadFileRoundTripsWriteFile(t *testing.T) {
	dir := t.TempDir()
	r := tools.NewRegistry()
	require.NoError(t, r.RegisterBuiltins(dir))

	writeResult := r.Invoke(context.Background(), tools.Call{
		Name:   "write_file",
		Params: map[string]any{"path": "greeting.txt", "content": "hello, module"},
	})
	require.True(t, writeResult.Success)

	onDisk, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello, module", string(onDisk))

	readResult := r.Invoke(context.Background(), tools.Call{
		Name:   "read_file",
		Params: map[string]any{"path": "greeting.txt"},
	})
	require.True(t, readResult.Success)
	assert.Contains(t, readResult.Content, "hello, module")
}

func TestRegistry_WriteFileRefusesEscapingWorkDir(t *testing.T) {
	dir := t.TempDir()
	r := tools.NewRegistry()
	require.NoError(t, r.RegisterBuiltins(dir))

	result := r.Invoke(context.Background(), tools.Call{
		Name:   "write_file",
		Params: map[string]any{"path": "../../etc/passwd", "content": "pwned"},
	})
	assert.False(t, result.Success)
}
