package tts

import (
	"context"
	"errors"
	"io"
)

// chunkedReadSize is the buffer size used to turn a batch Service's
// io.ReadCloser into a channel of AudioChunk for providers whose REST API
// has no native incremental mode.
const chunkedReadSize = 4096

// synthesizeStreamFromReader adapts any Service.Synthesize call into the
// StreamingService.SynthesizeStream shape by reading the whole-response
// reader in fixed-size chunks. It does not make synthesis incremental (the
// provider still generates the full response before the first byte), but it
// gives ElevenLabs and OpenAI a uniform channel-of-chunks contract so they
// can sit behind StreamingAdapter like Cartesia does.
func synthesizeStreamFromReader(ctx context.Context, synth func(context.Context) (io.ReadCloser, error)) (<-chan AudioChunk, error) {
	rc, err := synth(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan AudioChunk, streamChannelBuffer)
	go func() {
		defer close(out)
		defer rc.Close()

		buf := make([]byte, chunkedReadSize)
		index := 0
		for {
			n, readErr := rc.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case out <- AudioChunk{Data: data, Index: index}:
				case <-ctx.Done():
					return
				}
				index++
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					out <- AudioChunk{Error: readErr}
					return
				}
				out <- AudioChunk{Index: index, Final: true}
				return
			}
		}
	}()
	return out, nil
}
