package orchestrator

import (
	"context"
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

// TestSession_EmptyTranscriptSpeaksFallbackAndAbortsTurn covers a
// whitespace-only STT final: the turn must not silently vanish, it must be
// spoken as a fallback and end up completing as interrupted.
func TestSession_EmptyTranscriptSpeaksFallbackAndAbortsTurn(t *testing.T) {
	sess, vad, sttFactory, ttsFactory, evCh, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	vad.trigger(audio.VADStateStarting, audio.VADStateSpeaking)
	frame := make([]byte, CanonicalFrameBytes)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))
	waitForType(t, evCh, events.EventVADSpeechStarted, time.Second)

	sttStream := <-sttFactory.opened
	sttStream.events <- stt.TranscriptEvent{Kind: stt.KindFinal, Text: "   ", IsFinal: true}

	ttsStream := <-ttsFactory.opened

	turnDone := waitForType(t, evCh, events.EventTurnCompleted, 2*time.Second)
	data, ok := turnDone.Data.(*events.TurnEventData)
	require.True(t, ok)
	require.Empty(t, data.UserText)
	require.True(t, data.Interrupted)
	require.Equal(t, sttFallbackMessage, data.AgentText)

	ttsStream.mu.Lock()
	require.Contains(t, ttsStream.texts, sttFallbackMessage)
	ttsStream.mu.Unlock()

	require.Eventually(t, func() bool { return sess.State() == StateIdle }, time.Second, 10*time.Millisecond)
}

// TestSession_STTFinalTimeoutSynthesizesEmptyFinal covers a provider that
// closes its stream on VAD end but never delivers a final transcript: after
// DefaultSTTFinalTimeout the session must synthesize an empty final itself
// rather than waiting forever in Listening.
func TestSession_STTFinalTimeoutSynthesizesEmptyFinal(t *testing.T) {
	sess, vad, sttFactory, ttsFactory, evCh, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	vad.trigger(audio.VADStateStarting, audio.VADStateSpeaking)
	frame := make([]byte, CanonicalFrameBytes)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))
	waitForType(t, evCh, events.EventVADSpeechStarted, time.Second)
	<-sttFactory.opened

	vad.trigger(audio.VADStateStopping, audio.VADStateQuiet)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))
	waitForType(t, evCh, events.EventVADSpeechEnded, time.Second)

	// no final transcript ever arrives; the provider just went quiet.
	<-ttsFactory.opened

	turnDone := waitForType(t, evCh, events.EventTurnCompleted, DefaultSTTFinalTimeout+time.Second)
	data, ok := turnDone.Data.(*events.TurnEventData)
	require.True(t, ok)
	require.True(t, data.Interrupted)
	require.Equal(t, sttFallbackMessage, data.AgentText)

	require.Eventually(t, func() bool { return sess.State() == StateIdle }, time.Second, 10*time.Millisecond)
}

// TestSession_STTOpenFailureSpeaksFallbackInsteadOfEndingSession covers a
// provider that never opens at all (exhausting withRetry's one retry): this
// is stt.fatal, which must abort the turn and speak a fallback, not tear
// the whole session down the way a session-terminating kind would.
func TestSession_STTOpenFailureSpeaksFallbackInsteadOfEndingSession(t *testing.T) {
	vad := newFakeVAD()
	ttsFactory := newFakeTTSFactory()

	sttReg := stt.NewRegistry()
	sttReg.Register("stt-broken", alwaysFailsSTTFactory{})
	ttsReg := tts.NewRegistry()
	ttsReg.Register("tts-mock", ttsFactory)
	llmReg := providers.NewRegistry()
	llmReg.Register(providers.NewMockProvider("llm-mock", "test-model", false))

	bus := events.NewEventBus()
	evCh := make(chan *events.Event, 64)
	bus.SubscribeAll(func(e *events.Event) { evCh <- e })

	store := statestore.NewMemoryStore()
	require.NoError(t, seedConversation(store, "conv-1"))
	agent := AgentReference{
		ID:            "agent-1",
		STTProviderID: "stt-broken",
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
	sess, err := NewSession("sess-1", "conv-1", agent, deps, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	vad.trigger(audio.VADStateStarting, audio.VADStateSpeaking)
	frame := make([]byte, CanonicalFrameBytes)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))
	waitForType(t, evCh, events.EventVADSpeechStarted, time.Second)

	errEv := waitForType(t, evCh, events.EventSessionError, time.Second)
	errData, ok := errEv.Data.(*events.SessionErrorData)
	require.True(t, ok)
	require.Equal(t, string(KindSTTFatal), errData.Kind)
	require.False(t, errData.Fatal, "stt.fatal must not be reported as session-fatal")

	<-ttsFactory.opened
	turnDone := waitForType(t, evCh, events.EventTurnCompleted, 2*time.Second)
	data, ok := turnDone.Data.(*events.TurnEventData)
	require.True(t, ok)
	require.True(t, data.Interrupted)
	require.Equal(t, sttFallbackMessage, data.AgentText)

	require.Eventually(t, func() bool { return sess.State() == StateIdle }, time.Second, 10*time.Millisecond)
	require.NotEqual(t, StateError, sess.State())
}

// TestSession_PreSpeechFramesReplayedOnVADStart covers the pre-speech ring:
// frames arriving before VAD actually fires must still reach the STT stream
// once one is opened, replayed ahead of whatever arrives live afterward.
func TestSession_PreSpeechFramesReplayedOnVADStart(t *testing.T) {
	sess, vad, sttFactory, _, evCh, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	frame := make([]byte, CanonicalFrameBytes)
	const preSpeechFrames = 3
	for i := 0; i < preSpeechFrames; i++ {
		require.NoError(t, sess.PushTransportFrame(ctx, frame))
	}

	// this frame both lands in the ring and carries the VAD transition that
	// drainStateChanges picks up, so the total replayed count is
	// preSpeechFrames+1.
	vad.trigger(audio.VADStateStarting, audio.VADStateSpeaking)
	require.NoError(t, sess.PushTransportFrame(ctx, frame))
	waitForType(t, evCh, events.EventVADSpeechStarted, time.Second)

	sttStream := <-sttFactory.opened
	require.Eventually(t, func() bool {
		sttStream.mu.Lock()
		defer sttStream.mu.Unlock()
		return sttStream.pushed == preSpeechFrames+1
	}, time.Second, 10*time.Millisecond, "pre-speech ring frames must be replayed into the newly opened STT stream")
}
