package httpserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/PromptKit/runtime/logger"
	"github.com/AltairaLabs/PromptKit/runtime/session"
)

// maxAudioFrameBytes bounds an inbound WebSocket message, generously above
// the canonical frame size to tolerate transports that batch frames.
const maxAudioFrameBytes = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxAudioFrameBytes,
	WriteBufferSize: maxAudioFrameBytes,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleAudio upgrades the connection to a WebSocket and binds it to the
// session as a binary-PCM transport: inbound binary messages are raw
// transport frames fed to session.BindTransport, outbound canonical frames
// are written back as they arrive via Deps.SendAudio.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorContext(r.Context(), "httpserver: websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxAudioFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	sess.SetSendAudio(func(frame []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteMessage(websocket.BinaryMessage, frame)
	})
	defer sess.SetSendAudio(nil)

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := session.BindTransport(ctx, sess, frames, 0); err != nil {
		logger.DebugContext(ctx, "httpserver: transport binding ended", "session_id", id, "error", err)
	}
}
