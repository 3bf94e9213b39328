package tools

import (
	"context"
	"sort"
	"time"

	"github.com/loomwork/agentcore/registry"
)

// Registry is the tool lookup-and-dispatch surface the turn loop, the
// prompt composer, and the mode/permission engine all share. It wraps the
// generic keyed registry the rest of the runtime's lookup tables use.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

// NewRegistry returns an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
}

// RegisterBuiltins registers the local, in-process tool set.
func (r *Registry) RegisterBuiltins(workDir string) error {
	for _, t := range []Tool{
		NewReadFileTool(workDir),
		NewWriteFileTool(workDir),
		NewSearchCodeTool(workDir),
		NewRunCommandTool(workDir),
		NewGitDiffTool(workDir),
		NewGitCommitTool(workDir),
	} {
		if err := r.Register(t.Descriptor().Name, t); err != nil {
			return err
		}
	}
	return nil
}

// List returns every tool's descriptor, sorted by name for stable
// transmission to the LLM as tool definitions.
func (r *Registry) List() []Descriptor {
	descs := make([]Descriptor, 0)
	for _, t := range r.BaseRegistry.List() {
		descs = append(descs, t.Descriptor())
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Describe returns a single tool's descriptor, or NotFound.
func (r *Registry) Describe(name string) (Descriptor, error) {
	t, ok := r.Get(name)
	if !ok {
		return Descriptor{}, &Error{Kind: KindNotFound, Tool: name, Msg: "tool not registered"}
	}
	return t.Descriptor(), nil
}

// IsMutating reports whether a registered tool is tagged mutating; unknown
// tools are treated as mutating so an absent entry fails closed rather
// than open.
func (r *Registry) IsMutating(name string) bool {
	t, ok := r.Get(name)
	if !ok {
		return true
	}
	return t.Descriptor().Mutating
}

// Invoke validates params against the tool's schema and, on success, runs
// it. It never panics: any internal tool failure is captured into the
// Result's Err field with a human-readable Content for the model.
func (r *Registry) Invoke(ctx context.Context, call Call) Result {
	t, ok := r.Get(call.Name)
	if !ok {
		err := &Error{Kind: KindNotFound, Tool: call.Name, Msg: "tool not registered"}
		return Result{Success: false, Content: err.Error(), Err: err}
	}

	desc := t.Descriptor()
	if err := validateParams(desc, call.Params); err != nil {
		return Result{Success: false, Content: err.Error(), Err: err}
	}

	start := time.Now()
	out, err := safeExecute(ctx, t, call.Params)
	elapsed := time.Since(start)

	if err != nil {
		return Result{
			Success: false,
			Content: "Error: " + err.Error(),
			Err:     err,
			Usage:   &Usage{DurationMillis: elapsed.Milliseconds()},
		}
	}
	return Result{
		Success: true,
		Content: out,
		Usage:   &Usage{DurationMillis: elapsed.Milliseconds()},
	}
}

// safeExecute converts a tool panic into an error so a single misbehaving
// tool can never take down the turn loop.
func safeExecute(ctx context.Context, t Tool, params map[string]any) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindInvalidParameters, Tool: t.Descriptor().Name, Msg: "tool panicked during execution"}
		}
	}()
	return t.Execute(ctx, params)
}
