package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/audio"
	"github.com/AltairaLabs/PromptKit/runtime/events"
	"github.com/AltairaLabs/PromptKit/runtime/logger"
	"github.com/AltairaLabs/PromptKit/runtime/providers"
	"github.com/AltairaLabs/PromptKit/runtime/retrieval"
	"github.com/AltairaLabs/PromptKit/runtime/statestore"
	"github.com/AltairaLabs/PromptKit/runtime/stt"
	"github.com/AltairaLabs/PromptKit/runtime/tools"
	"github.com/AltairaLabs/PromptKit/runtime/tts"
)

// ToolFunc executes one tool invocation requested by the LLM. The
// scheduler's LLM task calls this directly (not the LLM adapter), per the
// requirement that tool execution belongs to the orchestration core.
type ToolFunc func(ctx context.Context, argsJSON string) (string, error)

// Deps bundles every external capability a Session needs, looked up by
// string identifier from the agent reference rather than wired directly.
type Deps struct {
	STT       *stt.Registry
	TTS       *tts.Registry
	LLM       *providers.Registry
	Retrieval *retrieval.Registry
	Store     statestore.Store
	Summarizer statestore.Summarizer
	Bus       *events.EventBus
	Tools     map[string]ToolFunc
	// ToolSchemas optionally carries a JSON-schema descriptor per tool name;
	// when present, runTool validates call arguments and the tool's result
	// against it before/after invocation.
	ToolSchemas map[string]*tools.ToolDescriptor

	// SendAudio delivers one outbound canonical-rate-converted frame to
	// the bound transport (C8). Required for voice sessions; may be nil
	// for text-only sessions.
	SendAudio func(frame []byte)

	// NewVAD overrides VAD analyzer construction (tests inject a fake).
	// Defaults to audio.NewSimpleVAD with spec frame-count defaults.
	NewVAD func() (audio.VADAnalyzer, error)
}

// Session is the turn-state event loop scheduler for one conversation: a
// single-threaded cooperative core that owns all session state, fed by an
// inbound event queue that sibling tasks (provider I/O, VAD inference)
// post to.
type Session struct {
	id             string
	conversationID string
	agent          AgentReference
	deps           Deps

	metadata map[string]any

	q        *queue
	pipeline *Pipeline
	preSpeech *PreSpeechRing
	vadBridge *vadBridge

	mu          sync.Mutex
	state       State
	currentTurn *Turn
	sttStream   stt.Stream
	ttsStream   tts.Stream
	llmCancel   context.CancelFunc
	ttsCancel   context.CancelFunc
	sentence    *SentenceAccumulator
	sendAudio   func(frame []byte)

	closed chan struct{}
}

// NewSession constructs a Session in the Idle state. Run must be called to
// start the scheduler loop.
func NewSession(id, conversationID string, agent AgentReference, deps Deps, metadata map[string]any) (*Session, error) {
	var analyzer audio.VADAnalyzer
	var err error
	if deps.NewVAD != nil {
		analyzer, err = deps.NewVAD()
	} else {
		params := vadParamsFromFrames(5, 25, CanonicalSampleRate)
		analyzer, err = audio.NewSimpleVAD(params)
	}
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:             id,
		conversationID: conversationID,
		agent:          agent,
		deps:           deps,
		metadata:       metadata,
		q:              newQueue(256),
		pipeline:       NewPipeline(CanonicalSampleRate, CanonicalSampleRate),
		preSpeech:      NewPreSpeechRing(),
		state:          StateIdle,
		sentence:       NewSentenceAccumulator(agent.softFlushTokens()),
		sendAudio:      deps.SendAudio,
		closed:         make(chan struct{}),
	}
	s.vadBridge = newVADBridge(analyzer, s.q)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current turn state. Safe for concurrent use.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsSpeaking reports whether the session is currently in the Speaking
// state, mirroring the audio package's IsSpeaking()-style accessor.
func (s *Session) IsSpeaking() bool {
	return s.State() == StateSpeaking
}

// Run starts the scheduler loop and the VAD heartbeat task, blocking until
// ctx is cancelled or the session reaches Closed.
func (s *Session) Run(ctx context.Context) {
	go s.vadBridge.runHeartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			s.transitionTo(ctx, StateClosed, "context.done")
			close(s.closed)
			return
		case ev := <-s.q.ch:
			s.handleRecovered(ctx, ev)
			if s.State() == StateClosed {
				close(s.closed)
				return
			}
		}
	}
}

// handleRecovered runs handle under a recover, so a panic from a single
// event handler becomes a fatal session error instead of unwinding past
// the scheduler loop and taking down the process, in the same
// catch-log-continue spirit as events.safeInvoke.
func (s *Session) handleRecovered(ctx context.Context, ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.onFatal(ctx, fmt.Errorf("orchestrator: recovered panic handling %v: %v", ev.kind, r))
		}
	}()
	s.handle(ctx, ev)
}

// Done returns a channel closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// PushTransportFrame hands a raw inbound frame from C8 to C1, feeds the
// resulting canonical frames to the VAD and the pre-speech ring, and
// forwards them to the active STT stream if one is open. This runs on the
// caller's goroutine (typically the transport read loop) as an independent
// sibling task; it never mutates scheduler state directly, only posts
// events for the scheduler to act on.
func (s *Session) PushTransportFrame(ctx context.Context, raw []byte) error {
	frames, err := s.pipeline.Ingest(raw)
	if err != nil {
		s.q.post(ctx, event{kind: EvTransportDiscontinuity})
		return err
	}
	s.deliverFrames(ctx, frames)
	return nil
}

// ReportDiscontinuity signals a transport-level gap of durationMs; C1
// inserts silence of the matching length and a discontinuity event is
// raised to the scheduler.
func (s *Session) ReportDiscontinuity(ctx context.Context, durationMs int) {
	frames := s.pipeline.Discontinuity(durationMs)
	s.q.post(ctx, event{kind: EvTransportDiscontinuity, discontinMs: durationMs})
	s.deliverFrames(ctx, frames)
}

func (s *Session) deliverFrames(ctx context.Context, frames [][]byte) {
	for _, frame := range frames {
		s.preSpeech.Push(frame)
		s.vadBridge.analyze(ctx, frame)

		s.mu.Lock()
		active := s.sttStream
		listening := s.state == StateListening
		s.mu.Unlock()

		if listening && active != nil {
			_ = active.Push(frame)
		}
	}
}

// SendUserText injects a text-mode user turn, bypassing VAD/STT entirely.
func (s *Session) SendUserText(ctx context.Context, text string) {
	s.q.post(ctx, event{kind: EvSessionUserText, text: text})
}

// SendUserTextWithImage injects a text-mode user turn carrying one image
// attachment. mimeType identifies the source encoding (e.g. "image/png");
// the image is resized to the agent's multimodal limits before it reaches
// the LLM provider.
func (s *Session) SendUserTextWithImage(ctx context.Context, text string, image []byte, mimeType string) {
	s.q.post(ctx, event{kind: EvSessionUserText, text: text, image: image, imageMIMEType: mimeType})
}

// Cancel requests the current turn be abandoned.
func (s *Session) Cancel(ctx context.Context) {
	s.q.post(ctx, event{kind: EvSessionCancel})
}

// ReportTransportClosed signals the bound transport has gone away.
func (s *Session) ReportTransportClosed(ctx context.Context) {
	s.q.post(ctx, event{kind: EvTransportClosed})
}

// ReportIdleTimeout signals the session manager's idle timer fired.
func (s *Session) ReportIdleTimeout(ctx context.Context) {
	s.q.post(ctx, event{kind: EvSessionIdleTimeout})
}

// SetSendAudio attaches (or replaces) the outbound audio callback. C8
// transport bindings call this once a connection is established, since a
// session may be created over HTTP before its audio WebSocket connects.
func (s *Session) SetSendAudio(fn func(frame []byte)) {
	s.mu.Lock()
	s.sendAudio = fn
	s.mu.Unlock()
}

// transitionTo mutates session state and publishes an observer event. It
// is the only place State is ever written, matching the invariant that
// state transitions in the turn-state table are the sole legal mutation.
func (s *Session) transitionTo(ctx context.Context, next State, reason string) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	logger.DebugContext(ctx, "orchestrator: session state transition",
		"session_id", s.id, "from", prev.String(), "to", next.String(), "reason", reason)

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(&events.Event{
			Type:           events.EventSessionStateTransitioned,
			Timestamp:      time.Now(),
			SessionID:      s.id,
			ConversationID: s.conversationID,
			Data: &events.SessionStateTransitionedData{
				FromState: prev.String(),
				ToState:   next.String(),
				Reason:    reason,
				Metadata:  s.metadata,
			},
		})
	}
}

func (s *Session) publish(eventType events.EventType, data events.EventData) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(&events.Event{
		Type:           eventType,
		Timestamp:      time.Now(),
		SessionID:      s.id,
		ConversationID: s.conversationID,
		Data:           data,
	})
}
