// Package agentcore is an embeddable runtime for an interactive,
// tool-using coding assistant: working memory with token-budgeted
// pruning, a mode/permission engine that gates mutating tool calls
// behind Plan/Build state, a model router with per-turn overrides and
// budget enforcement, and an approval queue for confirming risky
// changes before they execute.
//
// # Using as a library
//
//	import (
//	    "github.com/loomwork/agentcore/config"
//	    "github.com/loomwork/agentcore/llms"
//	    "github.com/loomwork/agentcore/runtime"
//	)
//
//	cfg, _ := config.LoadCascade(systemPath, userPath, projectPath)
//	provider := llms.NewAnthropicProvider(apiKey, "claude-sonnet-4-20250514")
//	rt, _ := runtime.New(cfg, provider, workDir)
//	sess, _ := rt.StartSession()
//	events, _ := rt.SendMessage(ctx, sess.ID, "what does module auth do?")
//
// # Architecture
//
//	turn.Loop -> mode.Check -> router.Select -> prompt.Compose -> llms.Provider
//	                 |              |                                  |
//	           approval.Queue  session.Store                    toolcall.Parse
//
// See cmd/agentcore for a CLI built on this package.
package agentcore
