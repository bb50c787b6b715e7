// Package session creates, routes, and tears down per-conversation
// orchestrator sessions: it resolves an agent identifier to an immutable
// AgentReference snapshot, seeds conversation state on first use, and
// tracks each live orchestrator.Session so a transport binding (WebSocket,
// text endpoint) can look one up by ID.
package session

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/AltairaLabs/PromptKit/runtime/orchestrator"
)

// UnsupportedClientVersionError is returned when a connecting client's
// version does not satisfy the resolved agent's MinClientVersion constraint.
type UnsupportedClientVersionError struct {
	AgentID       string
	ClientVersion string
	Constraint    string
}

func (e *UnsupportedClientVersionError) Error() string {
	return fmt.Sprintf("session: client version %q does not satisfy agent %q constraint %q",
		e.ClientVersion, e.AgentID, e.Constraint)
}

// checkClientVersion enforces agent.MinClientVersion against
// cfg.ClientVersion, when the agent sets a constraint. A missing
// ClientVersion on a constrained agent is rejected rather than assumed
// compatible, since the client never declared itself.
func checkClientVersion(cfg Config, agent orchestrator.AgentReference) error {
	if agent.MinClientVersion == "" {
		return nil
	}
	if cfg.ClientVersion == "" {
		return &UnsupportedClientVersionError{AgentID: cfg.AgentID, ClientVersion: "", Constraint: agent.MinClientVersion}
	}

	constraint, err := semver.NewConstraint(agent.MinClientVersion)
	if err != nil {
		return fmt.Errorf("session: invalid MinClientVersion constraint for agent %q: %w", cfg.AgentID, err)
	}
	version, err := semver.NewVersion(cfg.ClientVersion)
	if err != nil {
		return fmt.Errorf("session: invalid client version %q: %w", cfg.ClientVersion, err)
	}
	if !constraint.Check(version) {
		return &UnsupportedClientVersionError{AgentID: cfg.AgentID, ClientVersion: cfg.ClientVersion, Constraint: agent.MinClientVersion}
	}
	return nil
}

// AgentResolver resolves an agent identifier to the immutable configuration
// snapshot a session captures at creation time. Configuration changes made
// after Resolve returns take effect on the next session, never mid-session.
type AgentResolver interface {
	Resolve(ctx context.Context, agentID string) (orchestrator.AgentReference, error)
}

// StaticResolver is an AgentResolver backed by a fixed in-memory map, the
// default for single-tenant deployments and for tests.
type StaticResolver map[string]orchestrator.AgentReference

// Resolve looks agentID up in the map.
func (r StaticResolver) Resolve(ctx context.Context, agentID string) (orchestrator.AgentReference, error) {
	ref, ok := r[agentID]
	if !ok {
		return orchestrator.AgentReference{}, &UnknownAgentError{AgentID: agentID}
	}
	return ref, nil
}

// UnknownAgentError is returned when an AgentResolver has no configuration
// for the requested agent identifier.
type UnknownAgentError struct {
	AgentID string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("session: unknown agent %q", e.AgentID)
}

// SessionTracer hooks session creation/teardown into an external tracing
// backend without the session package depending on one directly; it is
// satisfied by *telemetry.OTelEventListener.
type SessionTracer interface {
	StartSession(ctx context.Context, sessionID string)
	EndSession(sessionID string)
}

// Config configures one session's creation.
type Config struct {
	// ConversationID identifies the persisted conversation this session
	// attaches to. Generated if empty.
	ConversationID string
	// UserID owns the conversation, for multi-tenant state stores.
	UserID string
	// AgentID selects the AgentReference via the Manager's resolver.
	AgentID string
	// ClientVersion is the connecting client's semver version. If the
	// resolved agent sets MinClientVersion, CreateSession rejects a
	// ClientVersion that does not satisfy it.
	ClientVersion string
	// Metadata is attached to every observer event this session emits.
	Metadata map[string]interface{}
	// SendAudio delivers outbound canonical-rate-converted audio frames to
	// the bound transport. Required for voice sessions.
	SendAudio func(frame []byte)
}
