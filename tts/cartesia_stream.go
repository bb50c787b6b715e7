package tts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// cartesiaStream is a genuinely incremental Stream: a single WebSocket
// connection carries multiple PushText calls on the same context_id, with
// continue:true between pushes and continue:false on FlushAndClose. This is
// the one adapter in this package that does not need the relay shim because
// Cartesia's wire protocol already supports incremental text.
type cartesiaStream struct {
	svc  *CartesiaService
	conn *websocket.Conn

	ctxID         string
	pendingVoice  string
	pendingModel  string
	pendingFormat cartesiaOutputFormat

	mu     sync.Mutex
	closed bool

	out chan AudioChunk
}

// Open establishes an incremental Cartesia WebSocket session, satisfying
// tts.StreamFactory.
func (s *CartesiaService) Open(ctx context.Context, config SynthesisConfig) (Stream, error) {
	wsURL := fmt.Sprintf("%s?api_key=%s&cartesia_version=2024-06-10", s.wsURL, s.apiKey)

	dialer := websocket.DefaultDialer
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, NewSynthesisError("cartesia", "", "websocket connection failed", err, true)
	}

	voice := config.Voice
	if voice == "" {
		voice = cartesiaDefaultVoice
	}
	model := config.Model
	if model == "" {
		model = s.model
	}

	cs := &cartesiaStream{
		svc:           s,
		conn:          conn,
		ctxID:         fmt.Sprintf("ctx_%d", time.Now().UnixNano()),
		pendingVoice:  voice,
		pendingModel:  model,
		pendingFormat: s.mapFormat(config.Format),
		out:           make(chan AudioChunk, streamChannelBuffer),
	}

	go cs.readLoop()
	return cs, nil
}

func (c *cartesiaStream) Name() string { return "cartesia" }

func (c *cartesiaStream) send(text string, continueCtx bool) error {
	req := map[string]interface{}{
		"model_id":   c.pendingModel,
		"transcript": text,
		"voice": map[string]string{
			"mode": "id",
			"id":   c.pendingVoice,
		},
		"output_format": c.pendingFormat,
		"context_id":    c.ctxID,
		"continue":      continueCtx,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStreamClosed
	}
	return c.conn.WriteJSON(req)
}

func (c *cartesiaStream) PushText(text string) error {
	if text == "" {
		return nil
	}
	return c.send(text, true)
}

func (c *cartesiaStream) FlushAndClose() error {
	return c.send("", false)
}

func (c *cartesiaStream) Events() <-chan AudioChunk { return c.out }

// Cancel closes the underlying WebSocket immediately, aborting in-flight
// synthesis; readLoop observes the closed connection, stops emitting to
// out, and closes it itself.
func (c *cartesiaStream) Cancel() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}

func (c *cartesiaStream) readLoop() {
	defer close(c.out)
	defer c.conn.Close()

	index := 0
	for {
		var resp cartesiaWSResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.out <- AudioChunk{Error: err}
			}
			return
		}

		chunk, err := c.svc.processWSResponse(&resp, index)
		if err != nil {
			c.out <- AudioChunk{Error: err}
			return
		}
		if chunk != nil {
			index++
			c.out <- *chunk
		}
		if resp.Done {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			return
		}
	}
}
