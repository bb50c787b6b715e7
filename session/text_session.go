package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/AltairaLabs/PromptKit/runtime/orchestrator"
	"github.com/AltairaLabs/PromptKit/runtime/providers"
	"github.com/AltairaLabs/PromptKit/runtime/statestore"
	"github.com/AltairaLabs/PromptKit/runtime/types"
	"github.com/google/uuid"
)

// Manager creates orchestrator sessions from a Config, seeding persisted
// conversation state on first use, and tracks them by ID until Close.
type Manager struct {
	resolver AgentResolver
	deps     orchestrator.Deps
	tracer   SessionTracer

	mu       sync.RWMutex
	sessions map[string]*entry

	registerMu    sync.Mutex
	providerSpecs map[string]providers.ProviderSpec
}

type entry struct {
	session *orchestrator.Session
	cancel  context.CancelFunc
	store   statestore.Store
}

// NewManager creates a Manager resolving agents via resolver and sharing
// the given provider/registry/store/bus dependencies across every session
// it creates. Per-session fields (Store, SendAudio) in deps are overridden
// by CreateSession.
func NewManager(resolver AgentResolver, deps orchestrator.Deps) *Manager {
	return &Manager{
		resolver: resolver,
		deps:     deps,
		sessions: make(map[string]*entry),
	}
}

// WithTracer attaches a SessionTracer so every session this Manager creates
// gets a root span on creation and has it closed on teardown.
func (m *Manager) WithTracer(tracer SessionTracer) *Manager {
	m.tracer = tracer
	return m
}

// WithProviderSpecs registers specs for providers that should be constructed
// lazily, on the first CreateSession call that resolves to an agent
// referencing them, rather than eagerly at startup. A spec whose
// AdditionalConfig fails its ConfigSchema is only discovered at that point,
// which is what lets an invalid config reject session creation instead of
// failing silently at process boot.
func (m *Manager) WithProviderSpecs(specs []providers.ProviderSpec) *Manager {
	m.registerMu.Lock()
	defer m.registerMu.Unlock()
	if m.providerSpecs == nil {
		m.providerSpecs = make(map[string]providers.ProviderSpec, len(specs))
	}
	for _, spec := range specs {
		m.providerSpecs[spec.ID] = spec
	}
	return m
}

// ensureLLMProvider constructs and registers the LLM provider for id from
// its pending spec the first time it's needed, validating its
// AdditionalConfig against ConfigSchema in the process. A no-op once the
// provider is already registered, or if id has no pending spec (it may
// already have been registered eagerly, e.g. the mock provider).
func (m *Manager) ensureLLMProvider(id string) error {
	if id == "" || m.deps.LLM == nil {
		return nil
	}
	if _, ok := m.deps.LLM.Get(id); ok {
		return nil
	}

	m.registerMu.Lock()
	defer m.registerMu.Unlock()

	// Re-check under the lock: another goroutine may have registered it
	// between the unlocked Get above and acquiring registerMu.
	if _, ok := m.deps.LLM.Get(id); ok {
		return nil
	}
	spec, ok := m.providerSpecs[id]
	if !ok {
		return nil
	}

	provider, err := providers.CreateProviderFromSpec(spec)
	if err != nil {
		return fmt.Errorf("session: failed to construct provider %q: %w", id, err)
	}
	m.deps.LLM.Register(provider)
	return nil
}

// CreateSession resolves cfg.AgentID, seeds conversation state if this is
// the first time ConversationID has been seen, constructs an
// orchestrator.Session, and starts its scheduler loop in the background.
// The returned session is already running; the caller is responsible for
// closing it via Close once the transport goes away.
func (m *Manager) CreateSession(ctx context.Context, cfg Config) (*orchestrator.Session, error) {
	if cfg.ConversationID == "" {
		cfg.ConversationID = uuid.New().String()
	}

	store := m.deps.Store
	if store == nil {
		store = statestore.NewMemoryStore()
	}

	if _, err := store.Load(context.Background(), cfg.ConversationID); err != nil {
		initialState := &statestore.ConversationState{
			ID:       cfg.ConversationID,
			UserID:   cfg.UserID,
			Messages: []types.Message{},
			Metadata: cfg.Metadata,
		}
		if err := store.Save(context.Background(), initialState); err != nil {
			return nil, fmt.Errorf("session: failed to initialize conversation state: %w", err)
		}
	}

	agent, err := m.resolver.Resolve(ctx, cfg.AgentID)
	if err != nil {
		return nil, err
	}
	if err := checkClientVersion(cfg, agent); err != nil {
		return nil, err
	}
	if err := m.ensureLLMProvider(agent.LLMProviderID); err != nil {
		return nil, err
	}

	deps := m.deps
	deps.Store = store
	deps.SendAudio = cfg.SendAudio

	sess, err := orchestrator.NewSession(cfg.ConversationID, cfg.ConversationID, agent, deps, cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("session: failed to create orchestrator session: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.sessions[sess.ID()] = &entry{session: sess, cancel: cancel, store: store}
	m.mu.Unlock()

	if m.tracer != nil {
		m.tracer.StartSession(ctx, sess.ID())
	}

	go sess.Run(sessCtx)
	return sess, nil
}

// Get retrieves a tracked session by ID.
func (m *Manager) Get(id string) (*orchestrator.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// List returns the IDs of every currently tracked session.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close cancels a session's scheduler loop, stops tracking it, and blocks
// until the session has actually reached Closed.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session: unknown session %q", id)
	}
	e.cancel()
	<-e.session.Done()
	if m.tracer != nil {
		m.tracer.EndSession(id)
	}
	return nil
}
