package orchestrator

import (
	"context"

	"github.com/AltairaLabs/PromptKit/runtime/tts"
)

// openTTS opens a new TTS stream for the agent's configured voice and
// starts the relay task that turns AudioChunk events into scheduler events
// and outbound transport frames.
func (s *Session) openTTS(ctx context.Context) error {
	factory, ok := s.deps.TTS.Get(s.agent.TTSProviderID)
	if !ok {
		return &tts.UnsupportedProviderError{ProviderID: s.agent.TTSProviderID}
	}

	config := tts.DefaultSynthesisConfig()
	if s.agent.TTSVoice != "" {
		config.Voice = s.agent.TTSVoice
	}

	stream, err := factory.Open(ctx, config)
	if err != nil {
		return err
	}

	relayCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ttsStream = stream
	s.ttsCancel = cancel
	s.mu.Unlock()

	go s.relayTTS(relayCtx, stream)
	return nil
}

func (s *Session) relayTTS(ctx context.Context, stream tts.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-stream.Events():
			if !ok {
				return
			}
			if chunk.Final {
				s.q.post(ctx, event{kind: EvTTSEnd})
				return
			}
			s.emitOutbound(chunk.Data)
			s.q.post(ctx, event{kind: EvTTSAudioChunk, audio: chunk.Data})
		}
	}
}

// emitOutbound rechunks and resamples synthesized audio to the transport's
// outbound rate and hands it to the bound send callback, if any.
func (s *Session) emitOutbound(pcm []byte) {
	s.mu.Lock()
	send := s.sendAudio
	s.mu.Unlock()
	if send == nil {
		return
	}
	out, err := s.pipeline.Emit(pcm)
	if err != nil {
		return
	}
	send(out)
}

// pushSentence hands one sentence-accumulator flush to the active TTS
// stream, opening one first if none is active yet.
func (s *Session) pushSentence(ctx context.Context, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	stream := s.ttsStream
	s.mu.Unlock()

	if stream == nil {
		if err := s.openTTS(ctx); err != nil {
			s.q.post(ctx, event{kind: EvTTSError, err: NewError(KindTTSFatal, err)})
			return
		}
		s.mu.Lock()
		stream = s.ttsStream
		s.mu.Unlock()
	}
	_ = stream.PushText(text)
}

// closeTTS flushes and clears the active TTS stream, if any.
func (s *Session) closeTTS() {
	s.mu.Lock()
	stream := s.ttsStream
	s.ttsStream = nil
	s.mu.Unlock()

	if stream != nil {
		_ = stream.FlushAndClose()
	}
}

// cancelTTS aborts the active TTS stream for a barge-in: cancels relayTTS's
// own context first, so it stops forwarding audio to the transport on its
// very next loop iteration rather than after the stream winds down
// naturally, then cancels the stream itself to abort in-flight synthesis.
func (s *Session) cancelTTS() {
	s.mu.Lock()
	cancel := s.ttsCancel
	s.ttsCancel = nil
	stream := s.ttsStream
	s.ttsStream = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Cancel()
	}
}
