package orchestrator

import (
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/audio"
	"github.com/AltairaLabs/PromptKit/runtime/retrieval"
)

// Canonical audio frame parameters: the single internal currency for all
// audio between components.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	CanonicalFrameMs    = 20
	CanonicalFrameBytes = CanonicalSampleRate * CanonicalFrameMs / 1000 * 2 // 640 bytes = 320 samples * 2 bytes
)

// PreSpeechBufferMs is the window of canonical frames kept before a VAD
// speech-start event, so STT recovers leading phonemes.
const PreSpeechBufferMs = 500

// DefaultSoftFlushTokens is the default sentence-accumulator soft-flush
// bound W, overridable per agent.
const DefaultSoftFlushTokens = 40

// DefaultHistoryTokenBudget bounds conversation history included in a
// prompt when an agent reference does not configure one explicitly.
const DefaultHistoryTokenBudget = 3000

// DefaultBargeInDeadline is the hard deadline C7 waits for LLM/TTS
// cancellation confirmation during a barge-in before proceeding regardless.
const DefaultBargeInDeadline = 300 * time.Millisecond

// DefaultSTTFinalTimeout bounds how long C7 waits for a final transcript
// after calling stt.Stream.Close().
const DefaultSTTFinalTimeout = 2 * time.Second

// DefaultVADSaturationLimit is the number of consecutive VAD analysis
// errors that raises a vad.saturated fatal event.
const DefaultVADSaturationLimit = 50

// AgentReference is the immutable snapshot captured at session start:
// system prompt, provider selections, retrieval configuration, and tool
// list. It is never mutated during a session; configuration changes take
// effect on the next session.
type AgentReference struct {
	ID                 string
	SystemPrompt       string
	STTProviderID      string
	LLMProviderID      string
	TTSProviderID      string
	TTSVoice           string
	Retrieval          retrieval.Config
	SoftFlushTokens    int
	HistoryTokenBudget int
	Tools              []string
	// MinClientVersion is a semver constraint (e.g. ">= 1.2.0") the
	// connecting client must satisfy. Empty means any client is accepted.
	MinClientVersion string
}

// softFlushTokens returns a.SoftFlushTokens or the default.
func (a AgentReference) softFlushTokens() int {
	if a.SoftFlushTokens > 0 {
		return a.SoftFlushTokens
	}
	return DefaultSoftFlushTokens
}

// historyTokenBudget returns a.HistoryTokenBudget or the default.
func (a AgentReference) historyTokenBudget() int {
	if a.HistoryTokenBudget > 0 {
		return a.HistoryTokenBudget
	}
	return DefaultHistoryTokenBudget
}

// Turn is a single user-utterance/agent-response pair.
type Turn struct {
	UserText        string
	AgentText       string
	Image           []byte
	ImageMIMEType   string
	StartedAt       time.Time
	EndedAt         time.Time
	Interrupted     bool
	RetrievalFailed bool

	// historyPersisted marks that runLLM already appended this turn to
	// conversation history on normal completion, so a later barge-in or
	// cancel (e.g. a TTS error after the LLM stream already finished)
	// must not append it again.
	historyPersisted bool
}

// State is one value of the turn state machine.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// vadParamsFromFrames builds audio.VADParams whose StartSecs/StopSecs land
// on the spec's frame-count defaults (M=5 frames / K=25 frames at 20ms)
// rather than the audio package's own general-purpose defaults.
func vadParamsFromFrames(startFrames, endFrames int, sampleRate int) audio.VADParams {
	p := audio.DefaultVADParams()
	p.StartSecs = float64(startFrames) * float64(CanonicalFrameMs) / 1000
	p.StopSecs = float64(endFrames) * float64(CanonicalFrameMs) / 1000
	p.SampleRate = sampleRate
	return p
}
