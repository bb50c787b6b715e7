package orchestrator

import "strings"

// sentenceBoundaries are the punctuation marks that terminate a sentence
// for accumulator flush purposes. Newline is included because streamed
// LLM output sometimes uses it in place of punctuation (lists, code).
const sentenceBoundaries = ".!?\n"

// SentenceAccumulator aggregates LLM token deltas into sentence-sized
// chunks before handing them to TTS, for better prosody and lower
// end-to-end latency than single-token or full-response handoff.
type SentenceAccumulator struct {
	softFlushTokens  int
	buf              strings.Builder
	tokensSinceFlush int
}

// NewSentenceAccumulator creates an accumulator with the given per-agent
// soft-flush bound W.
func NewSentenceAccumulator(softFlushTokens int) *SentenceAccumulator {
	if softFlushTokens <= 0 {
		softFlushTokens = DefaultSoftFlushTokens
	}
	return &SentenceAccumulator{softFlushTokens: softFlushTokens}
}

// Push appends a token delta and reports whether the accumulated text
// should be flushed now, either because it crossed a sentence boundary or
// because W tokens have accumulated with no boundary in sight.
func (s *SentenceAccumulator) Push(delta string) (flush string, shouldFlush bool) {
	s.buf.WriteString(delta)
	s.tokensSinceFlush++

	if strings.ContainsAny(delta, sentenceBoundaries) {
		return s.flush(), true
	}
	if s.tokensSinceFlush >= s.softFlushTokens {
		return s.flush(), true
	}
	return "", false
}

// Flush forces a flush of any accumulated text regardless of boundary,
// used when the LLM's end event arrives.
func (s *SentenceAccumulator) Flush() string {
	return s.flush()
}

// Pending reports whether there is unflushed text.
func (s *SentenceAccumulator) Pending() bool {
	return s.buf.Len() > 0
}

// flush trims only the leading edge of the accumulated text, not the
// trailing edge: a soft flush splits mid-sentence at an arbitrary token
// boundary, so a trailing space in the buffer at flush time is the
// separator before the next flush's first word, not noise. Trimming it
// away here would merge it into the next segment with no space at all once
// both are spoken back to back.
func (s *SentenceAccumulator) flush() string {
	text := strings.TrimLeft(s.buf.String(), " \t\n\r")
	s.buf.Reset()
	s.tokensSinceFlush = 0
	return text
}
