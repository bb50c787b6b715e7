// Package orchestrator implements the turn-taking voice-agent core.
//
// A Session is a single-threaded cooperative scheduler: it alone mutates
// turn state (Idle, Listening, Thinking, Speaking, Error, Closed), fed by
// one inbound event queue that every other moving part — VAD inference,
// STT/LLM/TTS provider I/O, transport frames — posts to instead of touching
// session state directly. This keeps the turn-state machine free of locks
// around its core transition logic even though the I/O around it is highly
// concurrent.
//
// # Architecture
//
//  1. C1 (Pipeline) resamples and rechunks transport audio into canonical
//     20ms/16kHz/mono/int16 frames.
//  2. A vadBridge classifies each frame and posts named events
//     (vad.start/continue/end) plus a 200ms speaking heartbeat.
//  3. Once STT delivers a final transcript, the scheduler opens an LLM task
//     that streams deltas through a SentenceAccumulator into a TTS task,
//     both running as independent goroutines that only ever communicate
//     back to the scheduler over its event queue.
//  4. A barge-in (vad.start while Speaking or Thinking) cancels the active
//     LLM/TTS tasks and discards queued audio without blocking the
//     scheduler loop itself.
//
// # Usage Example
//
//	sess, err := orchestrator.NewSession(sessionID, conversationID, agentRef, deps, nil)
//	if err != nil {
//	    return err
//	}
//	go sess.Run(ctx)
//	for frame := range inboundAudio {
//	    sess.PushTransportFrame(ctx, frame)
//	}
package orchestrator
