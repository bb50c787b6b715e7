package orchestrator

import (
	"context"
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/audio"
)

// heartbeatInterval is the speech_continue cadence during sustained speech.
const heartbeatInterval = 200 * time.Millisecond

// vadBridge wires an audio.VADAnalyzer's state-change channel onto the
// scheduler's event queue as the three named event kinds C7 expects, adds
// the speech_continue heartbeat the analyzer itself doesn't produce, and
// tracks the consecutive-error counter that raises vad.saturated.
type vadBridge struct {
	analyzer audio.VADAnalyzer
	q        *queue

	consecutiveErrors int
}

func newVADBridge(analyzer audio.VADAnalyzer, q *queue) *vadBridge {
	return &vadBridge{analyzer: analyzer, q: q}
}

// analyze feeds one canonical frame through the analyzer, classifies
// analyzer errors as non-fatal per spec (frame treated as non-speech,
// error counter incremented), and drains any pending state-change events
// onto the scheduler queue.
func (b *vadBridge) analyze(ctx context.Context, frame []byte) {
	confidence, err := b.analyzer.Analyze(ctx, frame)
	if err != nil {
		b.consecutiveErrors++
		if b.consecutiveErrors > DefaultVADSaturationLimit {
			b.q.post(ctx, event{kind: EvVADError, err: NewError(KindVADSaturated, err)})
		}
		return
	}
	b.consecutiveErrors = 0
	b.drainStateChanges(ctx, confidence)
}

func (b *vadBridge) drainStateChanges(ctx context.Context, confidence float64) {
	for {
		select {
		case ev := <-b.analyzer.OnStateChange():
			b.emitTransition(ctx, ev, confidence)
		default:
			return
		}
	}
}

func (b *vadBridge) emitTransition(ctx context.Context, ev audio.VADEvent, confidence float64) {
	switch {
	case ev.PrevState == audio.VADStateStarting && ev.State == audio.VADStateSpeaking:
		b.q.post(ctx, event{kind: EvVADStart, confidence: confidence})
	case ev.PrevState == audio.VADStateStopping && ev.State == audio.VADStateQuiet:
		b.q.post(ctx, event{kind: EvVADEnd, confidence: confidence})
	}
}

// runHeartbeat emits speech_continue roughly every 200ms while the
// analyzer's state is Speaking. It runs for the lifetime of ctx as an
// independent sibling task, like every other component source.
func (b *vadBridge) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.analyzer.State() == audio.VADStateSpeaking {
				b.q.post(ctx, event{kind: EvVADContinue})
			}
		}
	}
}
