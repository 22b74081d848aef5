// Package server exposes game sessions over HTTP and websockets.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hersh/gotris-engine/internal/protocol"
	"github.com/hersh/gotris-engine/internal/session"
)

const maxBodySize = 4096

type Server struct {
	hub            *session.Hub
	logger         *zap.Logger
	requestTimeout time.Duration
	router         chi.Router
}

// New builds the router. requestTimeout bounds the plain HTTP routes; the
// websocket route is exempt.
func New(hub *session.Hub, requestTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	s := &Server{
		hub:            hub,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))

		r.Get("/health", s.health)
		r.Post("/sessions", s.createSession)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{id}", s.getSession)
		r.Delete("/sessions/{id}", s.deleteSession)
		r.Post("/sessions/{id}/commands", s.postCommand)
	})
	r.Get("/sessions/{id}/ws", s.serveWS)
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.hub.Create()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.CreateSessionResponse{
		SessionID: sess.ID,
		Snapshot:  protocol.FromSnapshot(sess.ID, sess.Snapshot()),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.hub.List()
	resp := protocol.ListSessionsResponse{Sessions: make([]protocol.SessionInfo, 0, len(list))}
	for _, sess := range list {
		snap := sess.Snapshot()
		resp.Sessions = append(resp.Sessions, protocol.SessionInfo{
			SessionID:   sess.ID,
			State:       snap.State.String(),
			Score:       snap.Score,
			Level:       snap.Level,
			Subscribers: sess.Subscribers(),
			CreatedAt:   sess.CreatedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromSnapshot(sess.ID, sess.Snapshot()))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Remove(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// postCommand applies one command and answers with the resulting snapshot.
// A command the engine ignores in its current state still succeeds.
func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req protocol.CommandPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.ErrorResponse{Error: "invalid request body"})
		return
	}
	cmd, err := session.ParseCommand(req.Command)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.Apply(cmd, req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromSnapshot(sess.ID, sess.Snapshot()))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrUnknownCommand):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrTerminated):
		status = http.StatusConflict
	case errors.Is(err, session.ErrHubFull), errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
