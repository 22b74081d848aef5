package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hersh/gotris-engine/internal/game"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrHubFull  = errors.New("session limit reached")
	ErrClosed   = errors.New("hub closed")
)

// Hub is the registry of live sessions.
type Hub struct {
	cfg    game.Config
	max    int
	logger *zap.Logger
	opts   []game.Option

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewHub returns a hub whose sessions are built from cfg. max <= 0 means no
// limit. opts are applied to every engine.
func NewHub(cfg game.Config, max int, logger *zap.Logger, opts ...game.Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:      cfg,
		max:      max,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session in the start state.
func (h *Hub) Create() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if h.max > 0 && len(h.sessions) >= h.max {
		return nil, fmt.Errorf("%w (%d)", ErrHubFull, h.max)
	}

	id := uuid.NewString()
	s, err := New(id, h.cfg, h.logger, h.opts...)
	if err != nil {
		return nil, err
	}
	h.sessions[id] = s
	h.logger.Info("session created", zap.String("session", id), zap.Int("active", len(h.sessions)))
	return s, nil
}

func (h *Hub) Get(id string) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Remove terminates a session and drops it from the registry.
func (h *Hub) Remove(id string) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	active := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Terminate()
	h.logger.Info("session removed", zap.String("session", id), zap.Int("active", active))
	return nil
}

// List returns the live sessions, oldest first.
func (h *Hub) List() []*Session {
	h.mu.RLock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close terminates every session. The hub refuses new sessions afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Terminate()
		}(s)
	}
	wg.Wait()
	h.logger.Info("hub closed", zap.Int("terminated", len(sessions)))
}
