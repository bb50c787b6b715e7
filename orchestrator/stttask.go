package orchestrator

import (
	"context"

	"github.com/AltairaLabs/PromptKit/runtime/stt"
)

// openSTT opens a new STT stream for the agent's configured provider,
// replays the pre-speech ring buffer so leading phonemes are not lost, and
// starts the relay task that turns TranscriptEvent/error channels into
// scheduler events.
func (s *Session) openSTT(ctx context.Context) error {
	factory, ok := s.deps.STT.Get(s.agent.STTProviderID)
	if !ok {
		return &stt.UnsupportedProviderError{ProviderID: s.agent.STTProviderID}
	}

	var stream stt.Stream
	err := withRetry(ctx, s.agent.STTProviderID, func() error {
		opened, openErr := factory.Open(ctx, stt.DefaultTranscriptionConfig())
		if openErr != nil {
			return openErr
		}
		stream = opened
		return nil
	})
	if err != nil {
		return err
	}

	for _, frame := range s.preSpeech.Drain() {
		_ = stream.Push(frame)
	}

	s.mu.Lock()
	s.sttStream = stream
	s.mu.Unlock()

	go s.relaySTT(ctx, stream)
	return nil
}

func (s *Session) relaySTT(ctx context.Context, stream stt.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if ev.IsFinal {
				s.q.post(ctx, event{kind: EvSTTFinal, text: ev.Text, isFinal: true})
			} else {
				s.q.post(ctx, event{kind: EvSTTInterim, text: ev.Text})
			}
		case err, ok := <-stream.Errors():
			if !ok {
				continue
			}
			s.q.post(ctx, event{kind: EvSTTError, err: NewError(KindSTTTransient, err)})
		}
	}
}

// closeSTT signals end-of-audio to the active STT stream, if any, and
// clears the active handle. The final transcript (or timeout) arrives
// asynchronously via relaySTT.
func (s *Session) closeSTT() {
	s.mu.Lock()
	stream := s.sttStream
	s.sttStream = nil
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
}
