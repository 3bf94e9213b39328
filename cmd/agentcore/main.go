// Command agentcore is the CLI for the agentcore runtime.
//
// Usage:
//
//	agentcore chat --config config.yaml
//	agentcore chat --provider anthropic --model claude-sonnet-4-20250514
//	agentcore stats --session <id>
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"google.golang.org/genai"

	"github.com/loomwork/agentcore/config"
	"github.com/loomwork/agentcore/llms"
	"github.com/loomwork/agentcore/runtime"
	"github.com/loomwork/agentcore/turn"
)

// Exit codes per §6: 0 normal, 1 runtime error (kong's FatalIfErrorf
// default), 2 configuration error, 3 a turn halted on BudgetExceeded.
const (
	exitConfigError = 2
	exitBudgetHalt  = 3
)

// CLI defines the command-line interface.
type CLI struct {
	Chat  ChatCmd  `cmd:"" help:"Start an interactive session against the runtime."`
	Stats StatsCmd `cmd:"" help:"Show usage stats for a saved session."`

	Version VersionCmd `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to project-level config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentcore version %s\n", version)
	return nil
}

// ChatCmd starts an interactive, stdin-driven session.
type ChatCmd struct {
	Provider string `help:"LLM provider (anthropic, openai, gemini, ollama)." default:"anthropic"`
	Model    string `help:"Model name."`
	APIKey   string `name:"api-key" help:"API key (defaults to the provider's environment variable)."`
	Host     string `help:"Ollama host." default:"http://localhost:11434"`
	WorkDir  string `name:"workdir" help:"Working directory built-in tools operate under." type:"path" default:"."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitConfigError)
	}
	if c.Provider != "" {
		cfg.DefaultProvider = c.Provider
	}
	if c.Model != "" {
		cfg.DefaultModel = c.Model
	}

	provider, err := buildProvider(ctx, cfg.DefaultProvider, c.Model, c.APIKey, c.Host)
	if err != nil {
		return fmt.Errorf("failed to build provider %q: %w", cfg.DefaultProvider, err)
	}

	rt, err := runtime.New(cfg, provider, c.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}

	sess, err := rt.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Print("> ")
			continue
		}

		events, err := rt.SendMessage(ctx, sess.ID, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			fmt.Print("> ")
			continue
		}
		if status := drainEvents(events); status == turn.StatusBudgetHalt {
			fmt.Fprintln(os.Stderr, "budget exceeded; halting")
			os.Exit(exitBudgetHalt)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

// drainEvents prints each event to stdout and returns the turn's terminal
// status, so the caller can act on §6's exit-code contract (a budget halt
// exits 3 rather than looping back to the prompt).
func drainEvents(events <-chan turn.Event) turn.CompletionStatus {
	var status turn.CompletionStatus
	for ev := range events {
		switch ev.Kind {
		case turn.EventAssistantDelta:
			fmt.Print(ev.Text)
		case turn.EventToolCallStarted:
			fmt.Printf("\n[tool: %s]\n", ev.ToolName)
		case turn.EventApprovalRequested:
			fmt.Printf("\n[approval requested: %s]\n", ev.Change.ID)
		case turn.EventTurnComplete:
			status = ev.Status
			fmt.Printf("\n-- %s --\n", ev.Status)
		}
	}
	return status
}

// StatsCmd reports a session's usage counters via a one-shot runtime.
type StatsCmd struct {
	Session string `required:"" help:"Session id to report on."`
	WorkDir string `name:"workdir" help:"Working directory the session store lives under." type:"path" default:"."`
}

func (c *StatsCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitConfigError)
	}

	provider, err := buildProvider(context.Background(), cfg.DefaultProvider, cfg.DefaultModel, "", "http://localhost:11434")
	if err != nil {
		return fmt.Errorf("failed to build provider: %w", err)
	}

	rt, err := runtime.New(cfg, provider, c.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}

	// A one-shot runtime has no live sessions, so the counters come from
	// the session as last persisted to the store.
	s, err := rt.Store.Load(c.Session)
	if err != nil {
		return err
	}
	fmt.Printf("mode=%s role=%s input_tokens=%d output_tokens=%d requests=%d cost_usd=%.4f\n",
		s.Mode, s.Role, s.Usage.InputTokens, s.Usage.OutputTokens, s.Usage.Requests, s.Usage.CostUSD)
	return nil
}

func loadConfig(projectPath string) (*config.Config, error) {
	home, _ := os.UserHomeDir()
	systemPath := "/etc/agentcore/config.yaml"
	userPath := ""
	if home != "" {
		userPath = home + "/.agentcore/config.yaml"
	}
	return config.LoadCascade(systemPath, userPath, projectPath)
}

func buildProvider(ctx context.Context, name, model, apiKey, ollamaHost string) (llms.Provider, error) {
	switch name {
	case "anthropic":
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		return llms.NewAnthropicProvider(apiKey, model), nil
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if model == "" {
			model = "gpt-4o"
		}
		return llms.NewOpenAIProvider(apiKey, model), nil
	case "gemini":
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if model == "" {
			model = "gemini-2.0-flash"
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
		if err != nil {
			return nil, fmt.Errorf("failed to construct gemini client: %w", err)
		}
		return llms.NewGeminiProvider(client, model), nil
	case "ollama":
		if model == "" {
			model = "llama3.1"
		}
		return llms.NewOllamaProvider(ollamaHost, model, true), nil
	default:
		return nil, fmt.Errorf("unrecognized provider %q", name)
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentcore"),
		kong.Description("Interactive coding-assistant agent runtime."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
