package orchestrator

import "context"

// EventKind tags one inbound event on the scheduler's single queue. Every
// event kind in the spec's C7 input list has a constant here; the
// scheduler's transition table dispatches on Kind alone.
type EventKind string

const (
	EvVADStart    EventKind = "vad.start"
	EvVADContinue EventKind = "vad.continue"
	EvVADEnd      EventKind = "vad.end"
	EvVADError    EventKind = "vad.error"

	EvSTTInterim EventKind = "stt.interim"
	EvSTTFinal   EventKind = "stt.final"
	EvSTTError   EventKind = "stt.error"

	EvLLMDelta EventKind = "llm.delta"
	EvLLMTool  EventKind = "llm.tool"
	EvLLMEnd   EventKind = "llm.end"
	EvLLMError EventKind = "llm.error"

	EvTTSAudioChunk EventKind = "tts.audio_chunk"
	EvTTSEnd        EventKind = "tts.end"
	EvTTSError      EventKind = "tts.error"

	EvTransportFrame         EventKind = "transport.frame"
	EvTransportClosed        EventKind = "transport.closed"
	EvTransportDiscontinuity EventKind = "transport.discontinuity"

	EvSessionCancel      EventKind = "session.cancel"
	EvSessionUserText    EventKind = "session.user_text"
	EvSessionIdleTimeout EventKind = "session.idle_timeout"
)

// event is one entry on the scheduler's inbound queue. Only the fields
// relevant to Kind are populated; the scheduler knows which ones to read.
type event struct {
	kind EventKind

	text          string
	isFinal       bool
	confidence    float64
	err           error
	audio         []byte
	toolName      string
	toolArgs      string
	toolResult    string
	finishReason  string
	discontinMs   int

	// image and imageMIMEType carry an attachment on a session.user_text
	// event for agents that accept multimodal turns. Both empty means a
	// plain text turn.
	image         []byte
	imageMIMEType string
}

// queue is the scheduler's single inbound event channel. Sibling tasks
// (provider I/O, VAD analysis) post to it; only the scheduler goroutine
// ever reads from it, which is what makes the session single-threaded
// cooperative despite the I/O itself running concurrently.
type queue struct {
	ch chan event
}

func newQueue(buffer int) *queue {
	return &queue{ch: make(chan event, buffer)}
}

// post delivers e to the scheduler, or drops it if ctx is done first. A
// full queue blocks the sender (backpressure), not the scheduler, since
// only the scheduler goroutine ever reads q.ch.
func (q *queue) post(ctx context.Context, e event) {
	select {
	case q.ch <- e:
	case <-ctx.Done():
	}
}
