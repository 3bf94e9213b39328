// Package mode implements the mode and permission engine (component D):
// the Plan/Build state machine, the AgentRole catalog, and the gate every
// ToolCall passes through before dispatch.
package mode

// Mode is the coarse read-only/full-access state of a session.
type Mode string

const (
	Plan  Mode = "plan"
	Build Mode = "build"
)

// MemoryAccess bounds how much of working memory a role may read.
type MemoryAccess string

const (
	MemoryFull     MemoryAccess = "full"
	MemoryReadOnly MemoryAccess = "read-only"
	MemoryNone     MemoryAccess = "none"
)

// RoleName identifies one of the immutable AgentRole records.
type RoleName string

const (
	Explorer        RoleName = "explorer"
	Builder         RoleName = "builder"
	Debugger        RoleName = "debugger"
	Refactorer      RoleName = "refactorer"
	FileSearcher    RoleName = "file-searcher"
	PatternFinder   RoleName = "pattern-finder"
	DependencyMapper RoleName = "dependency-mapper"
)

// Role is an immutable record describing one AgentRole's capabilities.
// Per §4.4, role records are constants of the build; nothing mutates a
// Role at runtime.
type Role struct {
	Name              RoleName
	Allowlist         map[string]struct{}
	MaxSteps          int
	MemoryAccess      MemoryAccess
	CanSpawnSubagents bool
	SystemPrompt      string
	// TopLevelSelectable is false for the sub-agent-only roles
	// (FileSearcher, PatternFinder, DependencyMapper): they are never
	// chosen directly from a top-level user turn.
	TopLevelSelectable bool
}

func allow(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// roles is the complete, immutable catalog keyed by name.
var roles = map[RoleName]Role{
	Explorer: {
		Name:               Explorer,
		Allowlist:          allow("read_file", "search_code", "git_diff"),
		MaxSteps:           15,
		MemoryAccess:       MemoryFull,
		CanSpawnSubagents:  true,
		TopLevelSelectable: true,
		SystemPrompt:       "You are in Explorer mode. Investigate the codebase using read-only tools; do not propose edits without being asked to implement.",
	},
	Builder: {
		Name:               Builder,
		Allowlist:          allow("read_file", "search_code", "write_file", "run_command", "git_diff", "git_commit"),
		MaxSteps:           25,
		MemoryAccess:       MemoryFull,
		CanSpawnSubagents:  true,
		TopLevelSelectable: true,
		SystemPrompt:       "You are in Builder mode. Implement the requested change, using write_file and run_command as needed.",
	},
	Debugger: {
		Name:               Debugger,
		Allowlist:          allow("read_file", "search_code", "run_command", "write_file", "git_diff"),
		MaxSteps:           30,
		MemoryAccess:       MemoryFull,
		CanSpawnSubagents:  true,
		TopLevelSelectable: true,
		SystemPrompt:       "You are in Debugger mode. Reproduce the failure, narrow the root cause, then fix it.",
	},
	Refactorer: {
		Name:               Refactorer,
		Allowlist:          allow("read_file", "search_code", "write_file", "git_diff"),
		MaxSteps:           25,
		MemoryAccess:       MemoryFull,
		CanSpawnSubagents:  true,
		TopLevelSelectable: true,
		SystemPrompt:       "You are in Refactorer mode. Preserve external behavior while improving internal structure.",
	},
	FileSearcher: {
		Name:               FileSearcher,
		Allowlist:          allow("search_code", "read_file"),
		MaxSteps:           10,
		MemoryAccess:       MemoryReadOnly,
		CanSpawnSubagents:  false,
		TopLevelSelectable: false,
		SystemPrompt:       "You locate files relevant to a query and report their paths.",
	},
	PatternFinder: {
		Name:               PatternFinder,
		Allowlist:          allow("search_code", "read_file"),
		MaxSteps:           10,
		MemoryAccess:       MemoryReadOnly,
		CanSpawnSubagents:  false,
		TopLevelSelectable: false,
		SystemPrompt:       "You find recurring code patterns matching a description and report locations.",
	},
	DependencyMapper: {
		Name:               DependencyMapper,
		Allowlist:          allow("search_code", "read_file"),
		MaxSteps:           10,
		MemoryAccess:       MemoryNone,
		CanSpawnSubagents:  false,
		TopLevelSelectable: false,
		SystemPrompt:       "You trace dependency relationships between modules and report a dependency graph.",
	},
}

// RoleByName returns the immutable Role record for name.
func RoleByName(name RoleName) (Role, bool) {
	r, ok := roles[name]
	return r, ok
}

// Allows reports whether toolName appears in r's allowlist.
func (r Role) Allows(toolName string) bool {
	_, ok := r.Allowlist[toolName]
	return ok
}
