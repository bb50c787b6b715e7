// Package httpserver exposes session.Manager over HTTP: session lifecycle,
// a text-turn endpoint, a server-sent-events observer stream, and a
// WebSocket binary-PCM audio binding.
package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AltairaLabs/PromptKit/runtime/events"
	"github.com/AltairaLabs/PromptKit/runtime/logger"
	"github.com/AltairaLabs/PromptKit/runtime/session"
)

// defaultReadHeaderTimeout prevents Slowloris attacks, matching the a2a
// server's own constant.
const defaultReadHeaderTimeout = 10 * time.Second

// defaultIdleTimeout bounds how long a keep-alive connection may sit idle.
const defaultIdleTimeout = 120 * time.Second

// Server exposes a session.Manager as an HTTP API.
type Server struct {
	manager *session.Manager
	bus     *events.EventBus
	addr    string
	httpSrv *http.Server
}

// NewServer creates a Server bound to addr, dispatching session creation to
// manager and subscribing observer streams to bus.
func NewServer(addr string, manager *session.Manager, bus *events.EventBus) *Server {
	return &Server{manager: manager, bus: bus, addr: addr}
}

// Handler returns an http.Handler exposing every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("POST /sessions/{id}/text", s.handleSendText)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /sessions/{id}/audio", s.handleAudio)
	return mux
}

// ListenAndServe starts the HTTP server and blocks until it exits.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type createSessionRequest struct {
	ConversationID string                 `json:"conversation_id"`
	UserID         string                 `json:"user_id"`
	AgentID        string                 `json:"agent_id"`
	ClientVersion  string                 `json:"client_version"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type createSessionResponse struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	// TransportCredentials is the path the client dials to establish the
	// binary PCM audio transport (a WebSocket upgrade, per §6). There is no
	// separate token: the session ID in the path is the only credential
	// this module's single-process deployment model requires.
	TransportCredentials transportCredentials `json:"transport_credentials"`
}

type transportCredentials struct {
	AudioURL string `json:"audio_url"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	sess, err := s.manager.CreateSession(r.Context(), session.Config{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		AgentID:        req.AgentID,
		ClientVersion:  req.ClientVersion,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:      sess.ID(),
		ConversationID: sess.ID(),
		TransportCredentials: transportCredentials{
			AudioURL: fmt.Sprintf("/sessions/%s/audio", sess.ID()),
		},
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Close(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendTextRequest struct {
	Text string `json:"text"`

	// Image is an optional base64-encoded attachment for agents that
	// accept multimodal turns. ImageMIMEType identifies its source
	// encoding; omit both for a plain text turn.
	Image         string `json:"image,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session %q", id))
		return
	}

	var req sendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Image == "" {
		sess.SendUserText(r.Context(), req.Text)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid image: %v", err))
		return
	}
	sess.SendUserTextWithImage(r.Context(), req.Text, image, req.ImageMIMEType)
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents streams observer events for one session as server-sent
// events, using net/http.Flusher directly: no example in the pack pulls in
// a dedicated SSE library, and the protocol itself is a handful of lines
// over the standard library's own streaming support.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.manager.Get(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session %q", id))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	out := make(chan *events.Event, 32)
	s.bus.SubscribeAll(func(ev *events.Event) {
		if ev.SessionID != id {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		default:
			// Drop rather than block the publisher on a slow client.
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	logger.Error("httpserver: request failed", "status", status, "error", msg)
	writeJSON(w, status, errorResponse{Error: msg})
}
