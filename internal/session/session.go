// Package session hosts running engines. A Session is the one place where
// an engine is locked: every command and every gravity tick go through the
// same mutex.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hersh/gotris-engine/internal/game"
	"github.com/hersh/gotris-engine/internal/gravity"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrTerminated     = errors.New("session terminated")
)

// Command names accepted by Apply.
type Command string

const (
	CmdStart       Command = "start"
	CmdPause       Command = "pause"
	CmdReset       Command = "reset"
	CmdDrop        Command = "drop"
	CmdMoveDown    Command = "move_down"
	CmdMoveLeft    Command = "move_left"
	CmdMoveRight   Command = "move_right"
	CmdRotateLeft  Command = "rotate_left"
	CmdRotateRight Command = "rotate_right"
	CmdSetWidth    Command = "set_width"
	CmdSetHeight   Command = "set_height"
)

var commands = map[Command]func(e *game.Engine, value int){
	CmdStart:       func(e *game.Engine, _ int) { e.Start() },
	CmdPause:       func(e *game.Engine, _ int) { e.Pause() },
	CmdReset:       func(e *game.Engine, _ int) { e.Reset() },
	CmdDrop:        func(e *game.Engine, _ int) { e.Drop() },
	CmdMoveDown:    func(e *game.Engine, _ int) { e.MoveDown() },
	CmdMoveLeft:    func(e *game.Engine, _ int) { e.MoveLeft() },
	CmdMoveRight:   func(e *game.Engine, _ int) { e.MoveRight() },
	CmdRotateLeft:  func(e *game.Engine, _ int) { e.RotateLeft() },
	CmdRotateRight: func(e *game.Engine, _ int) { e.RotateRight() },
	CmdSetWidth:    (*game.Engine).SetWidth,
	CmdSetHeight:   (*game.Engine).SetHeight,
}

// ParseCommand validates a wire command name.
func ParseCommand(name string) (Command, error) {
	c := Command(name)
	if _, ok := commands[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return c, nil
}

// Session owns one engine, its gravity scheduler and the snapshot fan-out.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	engine  *game.Engine
	gravity *gravity.Scheduler
	bc      *Broadcaster
	logger  *zap.Logger
}

// New builds a session in the start state. The gravity scheduler is created
// paused; the engine drives it from there.
func New(id string, cfg game.Config, logger *zap.Logger, opts ...game.Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", id))

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		bc:        NewBroadcaster(),
		logger:    logger,
	}
	s.gravity = gravity.New(cfg.DropInterval(1), s.tick, logger.Named("gravity"))

	opts = append(opts, game.WithGravity(s.gravity))
	engine, err := game.NewEngine(s.bc, cfg, logger.Named("engine"), opts...)
	if err != nil {
		s.gravity.Stop()
		return nil, fmt.Errorf("new session: %w", err)
	}
	s.engine = engine
	return s, nil
}

func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.MoveDown()
}

func (s *Session) do(fn func(e *game.Engine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.engine)
}

func (s *Session) Start()       { s.do((*game.Engine).Start) }
func (s *Session) Pause()       { s.do((*game.Engine).Pause) }
func (s *Session) Reset()       { s.do((*game.Engine).Reset) }
func (s *Session) Drop()        { s.do((*game.Engine).Drop) }
func (s *Session) MoveDown()    { s.do((*game.Engine).MoveDown) }
func (s *Session) MoveLeft()    { s.do((*game.Engine).MoveLeft) }
func (s *Session) MoveRight()   { s.do((*game.Engine).MoveRight) }
func (s *Session) RotateLeft()  { s.do((*game.Engine).RotateLeft) }
func (s *Session) RotateRight() { s.do((*game.Engine).RotateRight) }

func (s *Session) SetWidth(w int) {
	s.do(func(e *game.Engine) { e.SetWidth(w) })
}

func (s *Session) SetHeight(h int) {
	s.do(func(e *game.Engine) { e.SetHeight(h) })
}

// Apply runs a named command. Commands the engine does not allow in its
// current state are silently ignored; only unknown names and terminated
// sessions are errors.
func (s *Session) Apply(cmd Command, value int) error {
	fn, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine.State() == game.StateTerminated {
		return ErrTerminated
	}
	fn(s.engine, value)
	return nil
}

// Terminate ends the session for good and closes every subscriber. It is
// safe to call more than once.
func (s *Session) Terminate() {
	// An in-flight tick needs the session lock, so gravity is joined first.
	s.gravity.Stop()

	s.mu.Lock()
	already := s.engine.State() == game.StateTerminated
	s.engine.Terminate()
	s.mu.Unlock()

	s.bc.Close()
	if !already {
		s.logger.Info("session terminated")
	}
}

func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State() == game.StateTerminated
}

func (s *Session) Snapshot() game.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// Subscribe returns a channel of snapshots, primed with the latest one.
func (s *Session) Subscribe() chan game.Snapshot {
	return s.bc.Subscribe()
}

func (s *Session) Unsubscribe(ch chan game.Snapshot) {
	s.bc.Unsubscribe(ch)
}

// Subscribers reports how many subscribers are attached.
func (s *Session) Subscribers() int {
	return s.bc.Len()
}

// GravityStats exposes the scheduler's tick counters.
func (s *Session) GravityStats() gravity.Stats {
	return s.gravity.Stats()
}
