package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/audio"
	"github.com/AltairaLabs/PromptKit/runtime/events"
	"github.com/AltairaLabs/PromptKit/runtime/providers"
	"github.com/AltairaLabs/PromptKit/runtime/retrieval"
	"github.com/AltairaLabs/PromptKit/runtime/statestore"
	"github.com/AltairaLabs/PromptKit/runtime/stt"
	"github.com/AltairaLabs/PromptKit/runtime/tts"
	"github.com/stretchr/testify/require"
)

// fakeVAD gives tests direct control over VAD state transitions instead of
// fighting SimpleVAD's amplitude thresholds.
type fakeVAD struct {
	mu    sync.Mutex
	state audio.VADState
	ch    chan audio.VADEvent
}

func newFakeVAD() *fakeVAD {
	return &fakeVAD{ch: make(chan audio.VADEvent, 8)}
}

func (f *fakeVAD) Name() string { return "fake" }
func (f *fakeVAD) Analyze(ctx context.Context, frame []byte) (float64, error) {
	return 1.0, nil
}
func (f *fakeVAD) State() audio.VADState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
func (f *fakeVAD) OnStateChange() <-chan audio.VADEvent { return f.ch }
func (f *fakeVAD) Reset()                               {}

func (f *fakeVAD) trigger(prev, next audio.VADState) {
	f.mu.Lock()
	f.state = next
	f.mu.Unlock()
	f.ch <- audio.VADEvent{PrevState: prev, State: next}
}

// fakeSTTStream lets a test inject transcript events on demand.
type fakeSTTStream struct {
	events chan stt.TranscriptEvent
	errs   chan error
	pushed int
	mu     sync.Mutex
	closed bool
}

func newFakeSTTStream() *fakeSTTStream {
	return &fakeSTTStream{events: make(chan stt.TranscriptEvent, 4), errs: make(chan error, 1)}
}
func (s *fakeSTTStream) Name() string { return "fake-stt" }
func (s *fakeSTTStream) Push(frame []byte) error {
	s.mu.Lock()
	s.pushed++
	s.mu.Unlock()
	return nil
}
func (s *fakeSTTStream) Events() <-chan stt.TranscriptEvent { return s.events }
func (s *fakeSTTStream) Errors() <-chan error               { return s.errs }
func (s *fakeSTTStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

type fakeSTTFactory struct {
	opened chan *fakeSTTStream
}

func newFakeSTTFactory() *fakeSTTFactory {
	return &fakeSTTFactory{opened: make(chan *fakeSTTStream, 4)}
}
func (f *fakeSTTFactory) Open(ctx context.Context, cfg stt.TranscriptionConfig) (stt.Stream, error) {
	s := newFakeSTTStream()
	f.opened <- s
	return s, nil
}

// alwaysFailsSTTFactory simulates a provider that never opens, exercising
// the stt.fatal-from-openSTT path independent of any already-open stream.
type alwaysFailsSTTFactory struct{}

func (alwaysFailsSTTFactory) Open(ctx context.Context, cfg stt.TranscriptionConfig) (stt.Stream, error) {
	return nil, errStubbedSTTOpenFailure
}

var errStubbedSTTOpenFailure = errors.New("stt provider unreachable")

// fakeTTSStream immediately echoes one audio chunk per PushText call and a
// Final chunk on FlushAndClose.
type fakeTTSStream struct {
	events   chan tts.AudioChunk
	texts    []string
	mu       sync.Mutex
	closed   bool
	canceled bool
}

func newFakeTTSStream() *fakeTTSStream {
	return &fakeTTSStream{events: make(chan tts.AudioChunk, 8)}
}
func (s *fakeTTSStream) Name() string { return "fake-tts" }
func (s *fakeTTSStream) PushText(text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	s.events <- tts.AudioChunk{Data: []byte("pcm"), Index: len(s.texts) - 1}
	return nil
}
func (s *fakeTTSStream) Events() <-chan tts.AudioChunk { return s.events }
func (s *fakeTTSStream) FlushAndClose() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.events <- tts.AudioChunk{Final: true}
	close(s.events)
	return nil
}
// Cancel only flags the stream as canceled; it deliberately does not close
// events, since a concurrent PushText/test writer sending on it would panic
// on a send-to-closed-channel race symmetric to the one relayStream.Cancel
// avoids in the production implementation.
func (s *fakeTTSStream) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = true
}

type fakeTTSFactory struct {
	opened chan *fakeTTSStream
}

func newFakeTTSFactory() *fakeTTSFactory {
	return &fakeTTSFactory{opened: make(chan *fakeTTSStream, 4)}
}
func (f *fakeTTSFactory) Open(ctx context.Context, cfg tts.SynthesisConfig) (tts.Stream, error) {
	s := newFakeTTSStream()
	f.opened <- s
	return s, nil
}

func waitForType(t *testing.T, ch <-chan *events.Event, want events.EventType, timeout time.Duration) *events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func newTestSession(t *testing.T) (*Session, *fakeVAD, *fakeSTTFactory, *fakeTTSFactory, chan *events.Event, statestore.Store) {
	t.Helper()

	vad := newFakeVAD()
	sttFactory := newFakeSTTFactory()
	ttsFactory := newFakeTTSFactory()

	sttReg := stt.NewRegistry()
	sttReg.Register("stt-mock", sttFactory)
	ttsReg := tts.NewRegistry()
	ttsReg.Register("tts-mock", ttsFactory)
	llmReg := providers.NewRegistry()
	llmReg.Register(providers.NewMockProvider("llm-mock", "test-model", false))

	bus := events.NewEventBus()
	evCh := make(chan *events.Event, 64)
	bus.SubscribeAll(func(e *events.Event) { evCh <- e })

	store := statestore.NewMemoryStore()
	agent := AgentReference{
		ID:            "agent-1",
		STTProviderID: "stt-mock",
		LLMProviderID: "llm-mock",
		TTSProviderID: "tts-mock",
	}
	deps := Deps{
		STT:       sttReg,
		TTS:       ttsReg,
		LLM:       llmReg,
		Retrieval: retrieval.NewRegistry(),
		Store:     store,
		Bus:       bus,
		NewVAD:    func() (audio.VADAnalyzer, error) { return vad, nil },
	}

	require.NoError(t, seedConversation(deps.Store, "conv-1"))

	sess, err := NewSession("sess-1", "conv-1", agent, deps, nil)
	require.NoError(t, err)
	return sess, vad, sttFactory, ttsFactory, evCh, store
}

func seedConversation(store statestore.Store, id string) error {
	return store.Save(context.Background(), &statestore.ConversationState{ID: id})
}

func TestSession_HappyPathTurn(t *testing.T) {
	sess, vad, sttFactory, ttsFactory, evCh, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	vad.trigger(audio.VADStateStarting, audio.VADStateSpeaking)
	frame := make([]byte, CanonicalFrameBytes)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))

	waitForType(t, evCh, events.EventVADSpeechStarted, time.Second)
	require.Equal(t, StateListening, sess.State())

	sttStream := <-sttFactory.opened
	sttStream.events <- stt.TranscriptEvent{Kind: stt.KindFinal, Text: "hello there", IsFinal: true}

	ttsStream := <-ttsFactory.opened

	turnDone := waitForType(t, evCh, events.EventTurnCompleted, 2*time.Second)
	data, ok := turnDone.Data.(*events.TurnEventData)
	require.True(t, ok)
	require.Equal(t, "hello there", data.UserText)
	require.False(t, data.Interrupted)
	require.NotEmpty(t, data.AgentText)

	require.Eventually(t, func() bool { return sess.State() == StateIdle }, time.Second, 10*time.Millisecond)

	ttsStream.mu.Lock()
	require.NotEmpty(t, ttsStream.texts)
	ttsStream.mu.Unlock()
}

func TestSession_BargeInDuringSpeaking(t *testing.T) {
	sess, vad, sttFactory, ttsFactory, evCh, store := newTestSession(t)

	var sentFrames int
	var sentMu sync.Mutex
	sess.SetSendAudio(func(frame []byte) {
		sentMu.Lock()
		sentFrames++
		sentMu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	vad.trigger(audio.VADStateStarting, audio.VADStateSpeaking)
	frame := make([]byte, CanonicalFrameBytes)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))
	waitForType(t, evCh, events.EventVADSpeechStarted, time.Second)

	sttStream := <-sttFactory.opened
	sttStream.events <- stt.TranscriptEvent{Kind: stt.KindFinal, Text: "tell me a story", IsFinal: true}

	ttsStream := <-ttsFactory.opened
	require.Eventually(t, func() bool { return sess.State() == StateSpeaking }, time.Second, 10*time.Millisecond)

	// keep synthesis "in flight": the mock LLM already pushed one chunk via
	// PushText, so audio has started reaching the transport. Confirm that
	// before barging in, otherwise a later assertion that it stopped proves
	// nothing.
	require.Eventually(t, func() bool {
		sentMu.Lock()
		defer sentMu.Unlock()
		return sentFrames > 0
	}, time.Second, 10*time.Millisecond, "audio must be forwarded to the transport before barge-in")

	vad.trigger(audio.VADStateStarting, audio.VADStateSpeaking)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))

	interrupted := waitForType(t, evCh, events.EventTurnInterrupted, time.Second)
	data, ok := interrupted.Data.(*events.TurnEventData)
	require.True(t, ok)
	require.True(t, data.Interrupted)

	require.Eventually(t, func() bool {
		ttsStream.mu.Lock()
		defer ttsStream.mu.Unlock()
		return ttsStream.canceled
	}, time.Second, 10*time.Millisecond, "barge-in must cancel the in-flight TTS stream")

	require.Eventually(t, func() bool { return sess.State() == StateListening }, time.Second, 10*time.Millisecond)

	sentMu.Lock()
	sentAtCancel := sentFrames
	sentMu.Unlock()

	// the canceled stream must never reach relayTTS/emitOutbound again, even
	// if it still has a buffered chunk sitting in its events channel
	ttsStream.events <- tts.AudioChunk{Data: []byte("late")}
	time.Sleep(50 * time.Millisecond)

	sentMu.Lock()
	require.Equal(t, sentAtCancel, sentFrames, "no audio should reach the transport after cancelTTS stops the relay")
	sentMu.Unlock()

	// second STT stream opened for the new turn after barge-in
	<-sttFactory.opened

	// The mock LLM resolves the whole response in one instant chunk, so by
	// the time this barge-in fires the turn's history is already saved by
	// runLLM's own normal-completion path (see persistence_test.go for the
	// mid-stream-cancellation case this harness can't reach deterministically).
	require.Eventually(t, func() bool {
		state, err := store.Load(ctx, "conv-1")
		require.NoError(t, err)
		return len(state.Messages) >= 2
	}, time.Second, 10*time.Millisecond)
}
