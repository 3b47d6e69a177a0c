package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SessionHeader carries the opaque session identifier between client and
// server on the HTTP transport.
const SessionHeader = "Mcp-Session-Id"

// requestMaxBytes bounds one protocol payload.
const requestMaxBytes = 4 << 20

// Server ties the dispatcher, the session store, and the transports together.
type Server struct {
	name    string
	version string

	registry *Registry
	sessions *SessionStore
	log      *zap.Logger

	// KeepaliveInterval is the push-channel keepalive period.
	KeepaliveInterval time.Duration
}

// NewServer creates a protocol server over the given tool registry.
func NewServer(name, version string, registry *Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		name:              name,
		version:           version,
		registry:          registry,
		sessions:          NewSessionStore(),
		log:               log,
		KeepaliveInterval: 30 * time.Second,
	}
}

// Sessions exposes the session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// handleRequest processes one parsed request. Notifications return nil: they
// are acknowledged but produce no response entry.
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return newResult(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      serverInfo{Name: s.name, Version: s.version},
		})

	case "tools/list":
		return newResult(req.ID, listToolsResult{Tools: s.registry.ListTools()})

	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newError(req.ID, CodeInvalidRequest, fmt.Sprintf("invalid tools/call params: %v", err))
		}
		result := s.registry.Call(ctx, params.Name, params.Arguments)
		return newResult(req.ID, result)

	case "notifications/initialized":
		return nil

	default:
		if req.IsNotification() {
			return nil
		}
		return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// processPayload handles a single or batched JSON-RPC payload. Entries are
// processed independently and in order; responses come back in the same
// order with notification entries omitted.
func (s *Server) processPayload(ctx context.Context, data []byte) (responses []*Response, batch, sawInitialize bool, parseErr *Response) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, false, false, newError(nil, CodeParseError, "empty request body")
	}

	var rawRequests []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		batch = true
		if err := json.Unmarshal([]byte(trimmed), &rawRequests); err != nil {
			return nil, true, false, newError(nil, CodeParseError, fmt.Sprintf("parse error: %v", err))
		}
	} else {
		rawRequests = []json.RawMessage{json.RawMessage(trimmed)}
	}

	for _, raw := range rawRequests {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, newError(nil, CodeParseError, fmt.Sprintf("parse error: %v", err)))
			continue
		}
		if req.Method == "initialize" {
			sawInitialize = true
		}
		if resp := s.handleRequest(ctx, &req); resp != nil {
			responses = append(responses, resp)
		}
	}
	return responses, batch, sawInitialize, nil
}

// Handler returns the HTTP transport: POST /mcp for requests, GET /mcp for
// the push channel, DELETE /mcp for session termination, plus a health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handlePush(w, r)
	case http.MethodDelete:
		s.handleTerminate(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestMaxBytes))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	responses, batch, sawInitialize, parseErr := s.processPayload(r.Context(), body)

	// Mint a session on the first initialize exchange when the client did
	// not supply one; the identifier must be surfaced back to the caller.
	if r.Header.Get(SessionHeader) == "" && sawInitialize {
		sess := s.sessions.Create()
		w.Header().Set(SessionHeader, sess.ID)
		s.log.Info("session issued", zap.String("session_id", sess.ID))
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	switch {
	case parseErr != nil:
		_ = enc.Encode(parseErr)
	case len(responses) == 0:
		// Only notifications: acknowledged, no response body.
		w.WriteHeader(http.StatusAccepted)
	case batch:
		_ = enc.Encode(responses)
	default:
		_ = enc.Encode(responses[0])
	}
}

// handlePush opens the long-lived push channel. It carries no application
// data in the baseline design, only periodic keepalive frames, and is torn
// down when the underlying connection closes.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, "push channel requires Accept: text/event-stream", http.StatusNotAcceptable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if id == "" || !s.sessions.Delete(id) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	s.log.Info("session terminated", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// ServeContext runs an HTTP server on addr until ctx is cancelled.
func (s *Server) ServeContext(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("http transport listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
