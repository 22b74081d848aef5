package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Gravity is the periodic executor that drives MoveDown. The engine tells it
// when to run and how fast; ticks must reach the engine through the same
// lock that guards every other call.
type Gravity interface {
	Start()
	Pause()
	// Reset makes the next tick happen a full interval from now.
	Reset()
	// SetInterval takes effect from the next tick.
	SetInterval(time.Duration)
	// Stop halts the executor for good and waits for an in-flight tick.
	Stop()
}

type nopGravity struct{}

func (nopGravity) Start()                    {}
func (nopGravity) Pause()                    {}
func (nopGravity) Reset()                    {}
func (nopGravity) SetInterval(time.Duration) {}
func (nopGravity) Stop()                     {}

// PieceFactory builds the next piece with its local grid anchored at (x, y).
type PieceFactory func(x, y int) *Piece

type Option func(*Engine)

func WithGravity(g Gravity) Option {
	return func(e *Engine) {
		if g != nil {
			e.gravity = g
		}
	}
}

func WithPieceFactory(f PieceFactory) Option {
	return func(e *Engine) {
		e.newPiece = f
	}
}

// WithSeed makes the random piece sequence reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		rng := rand.New(rand.NewSource(seed))
		e.newPiece = func(x, y int) *Piece {
			return RandomPiece(rng, x, y)
		}
	}
}

// Engine owns the field, the active piece and the counters, and decides which
// commands are legal. It does no locking of its own: callers serialize every
// method, including gravity ticks.
//
// Commands that are not allowed in the current state are ignored and emit
// nothing. Every honored command emits exactly one snapshot.
type Engine struct {
	cfg      Config
	display  Display
	gravity  Gravity
	newPiece PieceFactory
	logger   *zap.Logger

	height int
	width  int
	field  *Field
	piece  *Piece

	state   State
	allowed ActionSet

	score  int
	lines  int
	level  int
	pieces int
}

// NewEngine validates cfg, enters the start state and emits the initial
// snapshot.
func NewEngine(display Display, cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if display == nil {
		display = nopDisplay{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:     cfg,
		display: display,
		gravity: nopGravity{},
		logger:  logger,
		height:  cfg.Height,
		width:   cfg.Width,
		field:   NewField(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newPiece == nil {
		WithSeed(newSeed())(e)
	}

	e.setState(StateStart)
	e.emit()
	return e, nil
}

func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	var figure *PieceSnapshot
	if e.piece != nil {
		figure = e.piece.Snapshot()
	}
	return Snapshot{
		Height:         e.height,
		Width:          e.width,
		Field:          e.field.Cells(),
		State:          e.state,
		AllowedActions: e.allowed,
		Figure:         figure,
		Score:          e.score,
		Lines:          e.lines,
		Level:          e.level,
		Pieces:         e.pieces,
	}
}

func (e *Engine) emit() {
	e.display.Update(e.Snapshot())
}

func (e *Engine) can(a Action) bool {
	return e.allowed.Has(a)
}

// setState applies the entry behavior of s. Unknown states are a programming
// error.
func (e *Engine) setState(s State) {
	switch s {
	case StateStart:
		e.gravity.Pause()
		e.gravity.Reset()
		e.piece = nil
		e.field.Clear()
		e.resetScores()
	case StateRunning:
		e.gravity.Start()
	case StatePause:
		e.gravity.Pause()
	case StateGameOver:
		e.gravity.Pause()
		e.piece = nil
	case StateTerminated:
		e.gravity.Stop()
		e.piece = nil
	default:
		panic(fmt.Sprintf("game: invalid state %d", int(s)))
	}

	if e.state != s {
		e.logger.Debug("state changed",
			zap.Stringer("from", e.state),
			zap.Stringer("to", s),
		)
	}
	e.state = s
	e.allowed = allowedActions[s]
}

func (e *Engine) resetScores() {
	e.score = 0
	e.lines = 0
	e.level = 1
	e.pieces = 0
	e.gravity.SetInterval(e.cfg.DropInterval(e.level))
}

// Start begins a new game from the start state or resumes a paused one.
func (e *Engine) Start() {
	if !e.can(ActionStart) {
		return
	}
	if e.state == StateStart && !e.spawn() {
		e.setState(StateGameOver)
		e.emit()
		return
	}
	e.setState(StateRunning)
	e.emit()
}

func (e *Engine) Pause() {
	if !e.can(ActionPause) {
		return
	}
	e.setState(StatePause)
	e.emit()
}

// Reset abandons the current game and returns to the start state.
func (e *Engine) Reset() {
	if !e.can(ActionReset) {
		return
	}
	e.piece = nil
	e.field.Clear()
	e.setState(StateStart)
	e.emit()
}

// Terminate stops gravity for good and moves to the terminated sink. It
// never emits a snapshot.
func (e *Engine) Terminate() {
	if e.state == StateTerminated {
		return
	}
	e.setState(StateTerminated)
}

// SetWidth resizes the field. It is ignored outside the start state or when
// w is out of bounds.
func (e *Engine) SetWidth(w int) {
	if !e.can(ActionResize) || !e.cfg.WidthInRange(w) {
		return
	}
	e.width = w
	e.field.Clear()
	e.emit()
}

// SetHeight resizes the field. It is ignored outside the start state or when
// h is out of bounds.
func (e *Engine) SetHeight(h int) {
	if !e.can(ActionResize) || !e.cfg.HeightInRange(h) {
		return
	}
	e.height = h
	e.field.Clear()
	e.emit()
}

// MoveDown moves the piece one row down, freezing it if it cannot move.
// Gravity ticks call this.
func (e *Engine) MoveDown() {
	e.moveVertical(-1)
}

func (e *Engine) moveVertical(n int) {
	if !e.can(ActionMove) {
		return
	}
	e.piece.MoveVertical(n)
	if e.intersects(e.piece) {
		e.piece.MoveVertical(-n)
		e.freeze()
	}
	e.emit()
}

// Drop moves the piece as far down as it goes and freezes it.
func (e *Engine) Drop() {
	if !e.can(ActionMove) {
		return
	}
	for !e.intersects(e.piece) {
		e.piece.MoveVertical(-1)
	}
	e.piece.MoveVertical(1)
	e.freeze()
	if e.state == StateRunning {
		e.gravity.Reset()
	}
	e.emit()
}

func (e *Engine) MoveLeft() {
	e.moveHorizontal(-1)
}

func (e *Engine) MoveRight() {
	e.moveHorizontal(1)
}

func (e *Engine) moveHorizontal(n int) {
	if !e.can(ActionMove) {
		return
	}
	e.piece.MoveHorizontal(n)
	if e.intersects(e.piece) {
		e.piece.MoveHorizontal(-n)
	}
	e.emit()
}

// RotateLeft turns the piece 90 degrees counterclockwise. The rotation
// tables run counterclockwise, so this steps forward.
func (e *Engine) RotateLeft() {
	e.rotate(1)
}

// RotateRight turns the piece 90 degrees clockwise.
func (e *Engine) RotateRight() {
	e.rotate(-1)
}

// rotate turns the piece in place. A rotation that collides is rejected;
// no wall kicks are tried.
func (e *Engine) rotate(n int) {
	if !e.can(ActionMove) {
		return
	}
	e.piece.Rotate(n)
	if e.intersects(e.piece) {
		e.piece.Rotate(-n)
	}
	e.emit()
}

// intersects reports whether p leaves the field sideways, drops below row 0
// or overlaps a frozen cell. Cells above the top are allowed.
func (e *Engine) intersects(p *Piece) bool {
	for _, c := range p.Cells() {
		if c.X < 0 || c.X >= e.width || c.Y < 0 || e.field.Has(c) {
			return true
		}
	}
	return false
}

// spawn places a new piece at the top center. It reports false, leaving no
// active piece, when the new piece immediately collides.
func (e *Engine) spawn() bool {
	p := e.newPiece(e.width/2-1, e.height-e.cfg.SpawnOffset)
	if e.intersects(p) {
		e.piece = nil
		return false
	}
	e.piece = p
	e.pieces++
	return true
}

// freeze commits the piece to the field, clears full rows, scores them and
// spawns the next piece or ends the game.
func (e *Engine) freeze() {
	for _, c := range e.piece.Cells() {
		e.field.Set(c, e.piece.Color)
	}
	e.piece = nil

	broken := e.field.ClearFullRows(e.width)
	e.updateScore(broken)

	e.logger.Debug("piece frozen",
		zap.Int("lines_cleared", broken),
		zap.Int("score", e.score),
		zap.Int("level", e.level),
	)

	if !e.spawn() {
		e.setState(StateGameOver)
		e.logger.Debug("game over",
			zap.Int("score", e.score),
			zap.Int("lines", e.lines),
		)
	}
}

// updateScore awards the square of the rows cleared in a single freeze.
func (e *Engine) updateScore(broken int) {
	e.lines += broken
	e.score += broken * broken
	e.level = e.cfg.LevelFor(e.lines)
	e.gravity.SetInterval(e.cfg.DropInterval(e.level))
}
