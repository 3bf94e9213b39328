// Package runtime wires the token estimator, tool registry, working
// memory, mode engine, router, prompt composer, tool-call parser, turn
// loop, approval queue, session store, and provider registry into the
// library-level API §6 specifies: start_session, send_message, approve,
// cancel, stats.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/loomwork/agentcore/approval"
	"github.com/loomwork/agentcore/config"
	"github.com/loomwork/agentcore/llms"
	"github.com/loomwork/agentcore/logging"
	"github.com/loomwork/agentcore/memory"
	"github.com/loomwork/agentcore/mode"
	"github.com/loomwork/agentcore/router"
	"github.com/loomwork/agentcore/session"
	"github.com/loomwork/agentcore/tools"
	"github.com/loomwork/agentcore/turn"
)

// Runtime is the process-wide set of shared, reusable components: the
// tool and provider registries, and the session store. Per-conversation
// state lives in Session, not here.
type Runtime struct {
	Config   *config.Config
	Tools    *tools.Registry
	Provider llms.Provider
	// Providers indexes every registered provider by name, including
	// Provider itself, so FallbackProviders can be resolved by name.
	Providers *llms.Registry
	Store     session.Store
	Log       hclog.Logger
	workDir   string

	mu       sync.Mutex
	sessions map[string]*runningSession
}

// runningSession bundles the live turn.Session with the cancel func of
// its most recent in-flight turn, so Cancel(session) can reach it.
type runningSession struct {
	turnSession *turn.Session
	cancel      context.CancelFunc
}

// New builds a Runtime from a loaded configuration, the default provider,
// a working directory the built-in tools operate under, and zero or more
// additional providers available to the fallback chain by name.
func New(cfg *config.Config, provider llms.Provider, workDir string, extraProviders ...llms.Provider) (*Runtime, error) {
	registry := tools.NewRegistry()
	if err := registry.RegisterBuiltins(workDir); err != nil {
		return nil, fmt.Errorf("runtime: failed to register tools: %w", err)
	}

	store, err := session.NewFileStore(workDir + "/.agentcore/sessions")
	if err != nil {
		return nil, fmt.Errorf("runtime: failed to open session store: %w", err)
	}

	providers := llms.NewRegistry()
	if err := providers.RegisterProvider(provider.Name(), provider); err != nil {
		return nil, fmt.Errorf("runtime: failed to register default provider: %w", err)
	}
	for _, p := range extraProviders {
		if err := providers.RegisterProvider(p.Name(), p); err != nil {
			return nil, fmt.Errorf("runtime: failed to register fallback provider: %w", err)
		}
	}

	return &Runtime{
		Config:    cfg,
		Tools:     registry,
		Provider:  provider,
		Providers: providers,
		Store:     store,
		Log:       logging.New(cfg.Logging, "agentcore"),
		workDir:   workDir,
		sessions:  make(map[string]*runningSession),
	}, nil
}

// fallbackChain resolves each configured fallback provider name against
// r.Providers in turn, skipping any that are not registered rather than
// failing session startup over an optional, best-effort chain.
func (r *Runtime) fallbackChain() []llms.Provider {
	var chain []llms.Provider
	for _, name := range r.Config.FallbackProviders {
		if p, err := r.Providers.Resolve([]string{name}); err == nil {
			chain = append(chain, p)
		}
	}
	return chain
}

// StartSession creates a fresh session in the initial (Plan, Explorer)
// state, per §4.4.
func (r *Runtime) StartSession() (*session.Session, error) {
	id := uuid.NewString()
	s := &session.Session{
		ID:        id,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Mode:      mode.Plan,
		Role:      mode.Explorer,
	}
	if err := r.Store.Save(s); err != nil {
		return nil, err
	}

	table := router.NewTable(defaultModelSpec(r.Config))
	if r.Config.Routing.SingleModel != "" {
		spec := router.ModelSpec{Provider: r.Config.DefaultProvider, Model: r.Config.Routing.SingleModel}
		table.SetSingleModelOverride(&spec)
	}
	if r.Config.BudgetLimit != nil {
		table.SetBudgetLimit(r.Config.BudgetLimit)
	}

	timeout := time.Duration(r.Config.Approval.TimeoutSeconds) * time.Second
	queue := approval.NewQueue(approval.Policy(r.Config.Approval.Mode), timeout, r.workDir)

	r.mu.Lock()
	r.sessions[id] = &runningSession{
		turnSession: &turn.Session{
			Window:      memory.NewWindow(r.Config.MaxContextTokens, nil),
			Mode:        mode.Plan,
			Role:        mode.Explorer,
			Router:      table,
			Approvals:   queue,
			Tools:       r.Tools,
			Provider:    r.Provider,
			Fallbacks:   r.fallbackChain(),
			ModelFamily: r.Config.DefaultModel,
		},
	}
	r.mu.Unlock()

	r.Log.Info("session started", "id", id, "provider", r.Provider.Name(), "fallbacks", len(r.fallbackChain()))
	return s, nil
}

// SendMessage runs one turn against sessionID, returning the event
// stream §6 specifies.
func (r *Runtime) SendMessage(ctx context.Context, sessionID, text string) (<-chan turn.Event, error) {
	r.mu.Lock()
	rs, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("NotFound: session %q is not active", sessionID)
	}
	turnCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	r.mu.Unlock()

	role, _ := mode.RoleByName(rs.turnSession.Role)
	events := turn.Loop(turnCtx, rs.turnSession, role, text)
	return r.streamAndPersist(sessionID, rs, events), nil
}

// streamAndPersist forwards events to the caller unchanged, persisting the
// session to the Store whenever a turn reaches a terminal state.
func (r *Runtime) streamAndPersist(sessionID string, rs *runningSession, events <-chan turn.Event) <-chan turn.Event {
	persisted := make(chan turn.Event, 64)
	go func() {
		defer close(persisted)
		for ev := range events {
			persisted <- ev
			if ev.Kind == turn.EventTurnComplete {
				r.persist(sessionID, rs)
			}
		}
	}()
	return persisted
}

func (r *Runtime) persist(sessionID string, rs *runningSession) {
	s, err := r.Store.Load(sessionID)
	if err != nil {
		s = &session.Session{ID: sessionID, CreatedAt: time.Now()}
	}
	s.UpdatedAt = time.Now()
	s.Mode = rs.turnSession.Mode
	s.Role = rs.turnSession.Role
	s.Transcript = session.FromMemoryItems(rs.turnSession.Window.Snapshot())
	s.Usage = session.FromRouterUsage(rs.turnSession.Router.Aggregate())
	if err := r.Store.Save(s); err != nil {
		r.Log.Error("failed to persist session", "session", sessionID, "error", err)
	}
}

// Approve resolves a pending approval for sessionID and resumes the
// suspended turn (§4.7 step 9): on acceptance the parked tool call is
// dispatched, on rejection a "user rejected: <reason>" tool-result is fed
// back instead, and the turn loop continues either way. The returned channel carries whatever
// events that resumption produces, same as SendMessage's; it is nil if the
// decision itself failed (e.g. an unknown or already-resolved change).
func (r *Runtime) Approve(ctx context.Context, sessionID, changeID string, accept bool, reason string) (<-chan turn.Event, error) {
	r.mu.Lock()
	rs, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("NotFound: session %q is not active", sessionID)
	}
	turnCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	r.mu.Unlock()

	if accept {
		if _, err := rs.turnSession.Approvals.Approve(changeID); err != nil {
			return nil, err
		}
	} else {
		if _, err := rs.turnSession.Approvals.Reject(changeID, reason); err != nil {
			return nil, err
		}
	}

	role, _ := mode.RoleByName(rs.turnSession.Role)
	events := turn.Resume(turnCtx, rs.turnSession, role, changeID)
	return r.streamAndPersist(sessionID, rs, events), nil
}

// Cancel stops sessionID's in-flight turn, if any.
func (r *Runtime) Cancel(sessionID string) error {
	r.mu.Lock()
	rs, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("NotFound: session %q is not active", sessionID)
	}
	if rs.cancel != nil {
		rs.cancel()
	}
	return nil
}

// Stats reports the session's usage counters.
type Stats struct {
	InputTokens  int
	OutputTokens int
	Requests     int
	CostUSD      float64
	Mode         mode.Mode
	Role         mode.RoleName
}

// Stats returns the running usage/mode snapshot for sessionID.
func (r *Runtime) Stats(sessionID string) (Stats, error) {
	r.mu.Lock()
	rs, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return Stats{}, fmt.Errorf("NotFound: session %q is not active", sessionID)
	}
	u := rs.turnSession.Router.Aggregate()
	return Stats{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		Requests:     u.Requests,
		CostUSD:      u.CostUSD,
		Mode:         rs.turnSession.Mode,
		Role:         rs.turnSession.Role,
	}, nil
}

func defaultModelSpec(cfg *config.Config) router.ModelSpec {
	return router.ModelSpec{Provider: cfg.DefaultProvider, Model: cfg.DefaultModel}
}
