package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/events"
	"github.com/AltairaLabs/PromptKit/runtime/logger"
)

// sttFallbackMessage and llmFallbackMessage are spoken to the user in place
// of a response when stt.fatal/llm.fatal (or an empty/timed-out STT final)
// aborts the turn, per the turn-abort failure semantics: a provider error
// never leaves the user without any audio at all.
const (
	sttFallbackMessage = "Désolé, je n'ai pas entendu."
	llmFallbackMessage = "Désolé, une erreur s'est produite. Pouvez-vous réessayer ?"
)

// handle is the turn-state transition table: every inbound event is
// dispatched here by kind, and reacts according to the session's current
// state. This is the only function that interprets event kinds; everything
// else just posts or relays them.
func (s *Session) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case EvVADStart:
		s.onVADStart(ctx, ev)
	case EvVADContinue:
		s.publish(events.EventVADSpeechContinued, &events.VADSpeechEventData{Confidence: ev.confidence})
	case EvVADEnd:
		s.onVADEnd(ctx, ev)
	case EvVADError:
		s.onFatal(ctx, ev.err)

	case EvSTTInterim:
		s.publish(events.EventAudioTranscription, &events.AudioTranscriptionData{Text: ev.text})
	case EvSTTFinal:
		s.onSTTFinal(ctx, ev)
	case EvSTTError:
		s.onSTTError(ctx, ev)

	case EvLLMDelta:
		s.onLLMDelta(ctx, ev)
	case EvLLMTool:
		// Observer-only: tool execution already happened inline in the LLM task.
	case EvLLMEnd:
		s.onLLMEnd(ctx, ev)
	case EvLLMError:
		s.onLLMError(ctx, ev)

	case EvTTSAudioChunk:
		// Audio already emitted to the transport by relayTTS; nothing to do.
	case EvTTSEnd:
		s.finalizeTurn(ctx, false)
	case EvTTSError:
		s.onTTSError(ctx, ev)

	case EvTransportClosed:
		s.onTransportClosed(ctx)
	case EvTransportDiscontinuity:
		// Frames were already rechunked and delivered by ReportDiscontinuity.

	case EvSessionCancel:
		s.onSessionCancel(ctx)
	case EvSessionUserText:
		s.onSessionUserText(ctx, ev)
	case EvSessionIdleTimeout:
		s.transitionTo(ctx, StateClosed, "session.idle_timeout")
		s.teardown()
	}
}

func (s *Session) onVADStart(ctx context.Context, ev event) {
	switch s.State() {
	case StateIdle:
		s.currentTurn = &Turn{StartedAt: time.Now()}
		s.transitionTo(ctx, StateListening, "vad.start")
		if err := s.openSTT(ctx); err != nil {
			s.failSTTOpen(ctx, err)
			return
		}
	case StateThinking, StateSpeaking:
		s.bargeIn(ctx)
	default:
		// Listening/Error/Closed: nothing to do.
	}
	s.publish(events.EventVADSpeechStarted, &events.VADSpeechEventData{Confidence: ev.confidence})
}

// bargeIn cancels the in-flight LLM and TTS tasks, discards queued audio,
// marks the turn interrupted, and re-enters Listening. Cancellation is
// fire-and-forget: the scheduler does not block waiting for the cancelled
// tasks' goroutines to exit, since DefaultBargeInDeadline bounds how long a
// caller is willing to wait for audio to actually stop, not how long the
// scheduler itself stalls.
func (s *Session) bargeIn(ctx context.Context) {
	if s.currentTurn != nil {
		s.currentTurn.Interrupted = true
	}

	s.mu.Lock()
	llmCancel := s.llmCancel
	s.llmCancel = nil
	s.mu.Unlock()
	if llmCancel != nil {
		llmCancel()
	}
	s.cancelTTS()

	turn := s.currentTurn
	if turn != nil {
		turn.EndedAt = time.Now()
	}
	if turn != nil && !turn.historyPersisted {
		s.persistInterruptedTurn(ctx, turn.UserText, turn.AgentText)
	}
	s.currentTurn = &Turn{StartedAt: time.Now()}
	s.transitionTo(ctx, StateListening, "vad.start.barge_in")
	s.publish(events.EventTurnInterrupted, &events.TurnEventData{
		UserText:        turnUserText(turn),
		AgentText:       turnAgentText(turn),
		Interrupted:     true,
		RetrievalFailed: turn != nil && turn.RetrievalFailed,
		Duration:        turnDuration(turn),
	})

	if err := s.openSTT(ctx); err != nil {
		s.failSTTOpen(ctx, err)
	}
}

// failSTTOpen handles an STT stream that failed to open even after
// withRetry's internal retry: this is stt.fatal, which per the per-kind
// failure semantics only aborts the current turn and speaks a fallback,
// the same outcome onSTTError reaches for a live stream that degrades
// mid-turn. openSTT's own call sites (onVADStart, bargeIn) used to treat
// this as session-fatal by calling onFatal directly; it isn't.
func (s *Session) failSTTOpen(ctx context.Context, err error) {
	oe := NewError(KindSTTFatal, err)
	s.publish(events.EventSessionError, sessionErrorData(oe))
	s.speakFallbackAndAbort(ctx, sttFallbackMessage)
}

func turnAgentText(t *Turn) string {
	if t == nil {
		return ""
	}
	return t.AgentText
}

func turnUserText(t *Turn) string {
	if t == nil {
		return ""
	}
	return t.UserText
}

func turnDuration(t *Turn) time.Duration {
	if t == nil || t.EndedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

func (s *Session) onVADEnd(ctx context.Context, ev event) {
	if s.State() != StateListening {
		return
	}
	s.closeSTT()
	go s.watchSTTFinalTimeout(ctx)
	s.publish(events.EventVADSpeechEnded, &events.VADSpeechEventData{Confidence: ev.confidence})
}

// watchSTTFinalTimeout guards against a provider that never delivers a
// final transcript after Close: if the session is still Listening once
// DefaultSTTFinalTimeout elapses, it synthesizes an empty final to abort
// the turn cleanly rather than hanging forever.
func (s *Session) watchSTTFinalTimeout(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(DefaultSTTFinalTimeout):
		if s.State() == StateListening {
			s.q.post(ctx, event{kind: EvSTTFinal, text: "", isFinal: true})
		}
	}
}

func (s *Session) onSTTFinal(ctx context.Context, ev event) {
	if s.State() != StateListening {
		return
	}
	if strings.TrimSpace(ev.text) == "" {
		s.speakFallbackAndAbort(ctx, sttFallbackMessage)
		return
	}
	if s.currentTurn == nil {
		s.currentTurn = &Turn{StartedAt: time.Now()}
	}
	s.currentTurn.UserText = ev.text
	s.transitionTo(ctx, StateThinking, "stt.final")
	s.startThinking(ctx, ev.text, nil, "")
}

func (s *Session) onSTTError(ctx context.Context, ev event) {
	oe, ok := ev.err.(*Error)
	if ok && oe.Fatal() {
		s.onFatal(ctx, oe)
		return
	}
	s.publish(events.EventSessionError, sessionErrorData(ev.err))
	if ok && oe.Kind() == string(KindSTTFatal) {
		s.speakFallbackAndAbort(ctx, sttFallbackMessage)
	}
}

func (s *Session) onLLMDelta(ctx context.Context, ev event) {
	if s.State() != StateThinking && s.State() != StateSpeaking {
		return
	}
	if s.currentTurn != nil {
		s.currentTurn.AgentText += ev.text
	}
	flush, shouldFlush := s.sentence.Push(ev.text)
	if !shouldFlush || flush == "" {
		return
	}
	if s.State() == StateThinking {
		s.transitionTo(ctx, StateSpeaking, "llm.delta.first_sentence")
	}
	s.pushSentence(ctx, flush)
}

func (s *Session) onLLMEnd(ctx context.Context, ev event) {
	if s.State() != StateThinking && s.State() != StateSpeaking {
		return
	}
	if s.currentTurn != nil {
		s.currentTurn.AgentText = ev.text
		s.currentTurn.historyPersisted = true
	}

	if flush := s.sentence.Flush(); flush != "" {
		if s.State() == StateThinking {
			s.transitionTo(ctx, StateSpeaking, "llm.end.final_sentence")
		}
		s.pushSentence(ctx, flush)
	}

	s.mu.Lock()
	hasTTS := s.ttsStream != nil
	s.mu.Unlock()

	if hasTTS {
		s.closeTTS()
		return
	}
	s.finalizeTurn(ctx, false)
}

func (s *Session) onLLMError(ctx context.Context, ev event) {
	oe, ok := ev.err.(*Error)
	if ok && oe.Fatal() {
		s.onFatal(ctx, oe)
		return
	}
	s.publish(events.EventSessionError, sessionErrorData(ev.err))
	if ok && oe.Kind() == string(KindLLMFatal) {
		s.speakFallbackAndAbort(ctx, llmFallbackMessage)
		return
	}
	s.finalizeTurn(ctx, true)
}

func (s *Session) onTTSError(ctx context.Context, ev event) {
	if oe, ok := ev.err.(*Error); ok && oe.Fatal() {
		s.onFatal(ctx, oe)
		return
	}
	s.publish(events.EventSessionError, sessionErrorData(ev.err))
	s.finalizeTurn(ctx, true)
}

func (s *Session) onTransportClosed(ctx context.Context) {
	s.transitionTo(ctx, StateClosed, "transport.closed")
	s.teardown()
}

func (s *Session) onSessionCancel(ctx context.Context) {
	switch s.State() {
	case StateListening, StateThinking, StateSpeaking:
		s.mu.Lock()
		llmCancel := s.llmCancel
		s.llmCancel = nil
		s.mu.Unlock()
		if llmCancel != nil {
			llmCancel()
		}
		s.cancelTTS()
		s.closeSTT()
		s.finalizeTurn(ctx, true)
	}
}

func (s *Session) onSessionUserText(ctx context.Context, ev event) {
	if s.State() != StateIdle {
		return
	}
	s.currentTurn = &Turn{StartedAt: time.Now(), UserText: ev.text, Image: ev.image, ImageMIMEType: ev.imageMIMEType}
	s.transitionTo(ctx, StateThinking, "session.user_text")
	s.startThinking(ctx, ev.text, ev.image, ev.imageMIMEType)
}

// onFatal transitions to Error, tears down active resources, and publishes
// an observer event; recovery (or final Closed transition) is left to
// whoever owns the session's context, matching the session-manager-owns-
// lifecycle convention used elsewhere.
func (s *Session) onFatal(ctx context.Context, err error) {
	logger.ErrorContext(ctx, "orchestrator: fatal session error", "session_id", s.id, "error", err)
	s.teardown()
	s.transitionTo(ctx, StateError, "fatal: "+err.Error())
	s.publish(events.EventSessionError, sessionErrorData(err))
}

// sessionErrorData converts a Kind-bearing error into an observer payload,
// falling back to a generic kind for errors outside the taxonomy.
func sessionErrorData(err error) *events.SessionErrorData {
	kind := "unknown"
	fatal := false
	if oe, ok := err.(*Error); ok {
		kind = oe.Kind()
		fatal = oe.Fatal()
	}
	return &events.SessionErrorData{Kind: kind, Message: err.Error(), Fatal: fatal}
}

// speakFallbackAndAbort marks the current turn as failed and speaks message
// in place of the response it couldn't produce, reusing the normal
// Speaking→tts.end→finalizeTurn path so the turn completes (as interrupted)
// once the apology has actually been played, rather than returning to Idle
// silently.
func (s *Session) speakFallbackAndAbort(ctx context.Context, message string) {
	if s.currentTurn == nil {
		s.currentTurn = &Turn{StartedAt: time.Now()}
	}
	s.currentTurn.AgentText = message
	s.currentTurn.Interrupted = true
	s.transitionTo(ctx, StateSpeaking, "fallback")
	s.pushSentence(ctx, message)
	s.closeTTS()
}

// finalizeTurn ends the current turn, publishes turn.completed, and
// returns the session to Idle.
func (s *Session) finalizeTurn(ctx context.Context, interrupted bool) {
	turn := s.currentTurn
	if turn != nil {
		turn.EndedAt = time.Now()
		turn.Interrupted = turn.Interrupted || interrupted
		if turn.Interrupted && !turn.historyPersisted {
			// A normally-completed turn was already persisted by runLLM
			// when onLLMEnd ran; only the abort paths (session cancel,
			// an LLM error, or a TTS error before the stream finished)
			// still need saving here.
			s.persistInterruptedTurn(ctx, turn.UserText, turn.AgentText)
		}
		s.publish(events.EventTurnCompleted, &events.TurnEventData{
			UserText:        turn.UserText,
			AgentText:       turn.AgentText,
			Interrupted:     turn.Interrupted,
			RetrievalFailed: turn.RetrievalFailed,
			Duration:        turn.EndedAt.Sub(turn.StartedAt),
		})
	}
	s.currentTurn = nil
	s.transitionTo(ctx, StateIdle, "turn.completed")
}

// teardown releases every active task handle. Safe to call multiple times.
func (s *Session) teardown() {
	s.mu.Lock()
	llmCancel := s.llmCancel
	s.llmCancel = nil
	s.mu.Unlock()
	if llmCancel != nil {
		llmCancel()
	}
	s.cancelTTS()
	s.closeSTT()
}
