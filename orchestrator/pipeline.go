package orchestrator

import (
	"fmt"

	"github.com/AltairaLabs/PromptKit/runtime/audio"
)

// Pipeline adapts whatever frame rate and chunk size a transport delivers
// into canonical 20ms/16kHz/mono/int16 frames, and the inverse path for
// outbound audio. Resampling reuses audio.ResamplePCM16 verbatim; the
// rechunking across partial frames is new, since the teacher's resampler
// only ever ran on whole pre-sized buffers.
type Pipeline struct {
	inputRate  int
	outputRate int

	inBuf  []byte // partial canonical-rate bytes awaiting a full 20ms frame
	outBuf []byte
}

// NewPipeline creates a Pipeline converting between inputRate (what the
// transport delivers) and CanonicalSampleRate, and between
// CanonicalSampleRate and outputRate for outbound audio.
func NewPipeline(inputRate, outputRate int) *Pipeline {
	return &Pipeline{inputRate: inputRate, outputRate: outputRate}
}

// Ingest decodes and resamples a raw inbound frame of arbitrary size,
// rechunks it to exact 20ms boundaries, and returns zero or more canonical
// frames. Leftover bytes are buffered for the next call so no input sample
// is ever dropped.
func (p *Pipeline) Ingest(raw []byte) ([][]byte, error) {
	resampled, err := audio.ResamplePCM16(raw, p.inputRate, CanonicalSampleRate)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resample inbound: %w", err)
	}

	p.inBuf = append(p.inBuf, resampled...)

	var frames [][]byte
	for len(p.inBuf) >= CanonicalFrameBytes {
		frame := make([]byte, CanonicalFrameBytes)
		copy(frame, p.inBuf[:CanonicalFrameBytes])
		frames = append(frames, frame)
		p.inBuf = p.inBuf[CanonicalFrameBytes:]
	}
	return frames, nil
}

// Discontinuity inserts a silence gap of durationMs into the inbound
// buffer, used when the transport signals a dropped span of audio instead
// of delivering it.
func (p *Pipeline) Discontinuity(durationMs int) [][]byte {
	gapBytes := CanonicalSampleRate * durationMs / 1000 * 2
	p.inBuf = append(p.inBuf, make([]byte, gapBytes)...)

	var frames [][]byte
	for len(p.inBuf) >= CanonicalFrameBytes {
		frame := make([]byte, CanonicalFrameBytes)
		copy(frame, p.inBuf[:CanonicalFrameBytes])
		frames = append(frames, frame)
		p.inBuf = p.inBuf[CanonicalFrameBytes:]
	}
	return frames
}

// Emit converts one canonical frame to the transport's outbound rate.
func (p *Pipeline) Emit(frame []byte) ([]byte, error) {
	out, err := audio.ResamplePCM16(frame, CanonicalSampleRate, p.outputRate)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resample outbound: %w", err)
	}
	return out, nil
}
