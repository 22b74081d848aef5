package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	snapshots []Snapshot
}

func (r *recorder) Update(s Snapshot) {
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) count() int {
	return len(r.snapshots)
}

func (r *recorder) last() Snapshot {
	return r.snapshots[len(r.snapshots)-1]
}

type fakeGravity struct {
	running  bool
	interval time.Duration
	resets   int
	stops    int
}

func (g *fakeGravity) Start()                      { g.running = true }
func (g *fakeGravity) Pause()                      { g.running = false }
func (g *fakeGravity) Reset()                      { g.resets++ }
func (g *fakeGravity) SetInterval(d time.Duration) { g.interval = d }
func (g *fakeGravity) Stop()                       { g.running = false; g.stops++ }

// typeFactory cycles through the given piece types at the spawn position.
func typeFactory(types ...PieceType) PieceFactory {
	i := 0
	return func(x, y int) *Piece {
		t := types[i%len(types)]
		i++
		return NewPiece(t, 1, x, y)
	}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 4
	cfg.Height = 8
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *recorder, *fakeGravity) {
	t.Helper()
	rec := &recorder{}
	grav := &fakeGravity{}
	opts = append([]Option{WithGravity(grav)}, opts...)
	e, err := NewEngine(rec, cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return e, rec, grav
}

func TestNewEngine_InitialSnapshot(t *testing.T) {
	e, rec, grav := newTestEngine(t, DefaultConfig())

	require.Equal(t, 1, rec.count())
	snap := rec.last()
	assert.Equal(t, StateStart, snap.State)
	assert.Equal(t, NewActionSet(ActionStart, ActionResize), snap.AllowedActions)
	assert.Equal(t, 15, snap.Height)
	assert.Equal(t, 7, snap.Width)
	assert.Empty(t, snap.Field)
	assert.Nil(t, snap.Figure)
	assert.Equal(t, 0, snap.Score)
	assert.Equal(t, 0, snap.Lines)
	assert.Equal(t, 1, snap.Level)
	assert.Equal(t, StateStart, e.State())
	assert.False(t, grav.running)
	assert.Equal(t, time.Second, grav.interval)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"width below min", func(c *Config) { c.Width = c.MinWidth - 1 }},
		{"width above max", func(c *Config) { c.Width = c.MaxWidth + 1 }},
		{"height below min", func(c *Config) { c.Height = c.MinHeight - 1 }},
		{"height above max", func(c *Config) { c.Height = c.MaxHeight + 1 }},
		{"inverted width bounds", func(c *Config) { c.MinWidth, c.MaxWidth = 10, 5 }},
		{"zero max level", func(c *Config) { c.MaxLevel = 0 }},
		{"zero lines per level", func(c *Config) { c.LinesPerLevel = 0 }},
		{"zero speed", func(c *Config) { c.MinSpeed = 0 }},
		{"spawn offset below grid", func(c *Config) { c.SpawnOffset = 3 }},
		{"spawn offset above min height", func(c *Config) { c.SpawnOffset = c.MinHeight + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			e, err := NewEngine(nil, cfg, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, e)
		})
	}
}

func TestEngine_StartSpawnsPiece(t *testing.T) {
	e, rec, grav := newTestEngine(t, smallConfig(), WithPieceFactory(typeFactory(PieceO)))

	e.Start()

	require.Equal(t, 2, rec.count())
	snap := rec.last()
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, NewActionSet(ActionPause, ActionReset, ActionMove), snap.AllowedActions)
	require.NotNil(t, snap.Figure)
	assert.ElementsMatch(t, []Cell{{2, 7}, {3, 7}, {2, 6}, {3, 6}}, snap.Figure.Coordinates)
	assert.Equal(t, 1, snap.Pieces)
	assert.True(t, grav.running)
}

func TestEngine_DisallowedCommandsAreIgnored(t *testing.T) {
	e, rec, _ := newTestEngine(t, smallConfig())
	before := rec.last()

	e.Pause()
	e.Reset()
	e.Drop()
	e.MoveDown()
	e.MoveLeft()
	e.MoveRight()
	e.RotateLeft()
	e.RotateRight()

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, before, e.Snapshot())
}

func TestEngine_RunningIgnoresStartAndResize(t *testing.T) {
	e, rec, _ := newTestEngine(t, smallConfig())
	e.Start()
	before := e.Snapshot()
	n := rec.count()

	e.Start()
	e.SetWidth(6)
	e.SetHeight(10)

	assert.Equal(t, n, rec.count())
	assert.Equal(t, before, e.Snapshot())
}

func TestEngine_PauseAndResume(t *testing.T) {
	e, rec, grav := newTestEngine(t, smallConfig(), WithPieceFactory(typeFactory(PieceT, PieceI)))
	e.Start()
	figure := e.Snapshot().Figure

	e.Pause()
	assert.Equal(t, StatePause, rec.last().State)
	assert.Equal(t, NewActionSet(ActionStart, ActionReset), rec.last().AllowedActions)
	assert.False(t, grav.running)
	assert.Equal(t, figure, rec.last().Figure)

	// moves are ignored while paused
	n := rec.count()
	e.MoveLeft()
	e.Drop()
	assert.Equal(t, n, rec.count())

	e.Start()
	assert.Equal(t, StateRunning, rec.last().State)
	assert.True(t, grav.running)
	assert.Equal(t, figure, rec.last().Figure, "resume must not spawn a new piece")
	assert.Equal(t, 1, rec.last().Pieces)
}

func TestEngine_ResetReturnsToStart(t *testing.T) {
	setups := map[string]func(e *Engine){
		"running": func(e *Engine) {
			e.Start()
			e.Drop()
		},
		"pause": func(e *Engine) {
			e.Start()
			e.Drop()
			e.Pause()
		},
		"gameover": func(e *Engine) {
			e.Start()
			for e.State() == StateRunning {
				e.Drop()
			}
		},
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			e, rec, grav := newTestEngine(t, smallConfig(), WithSeed(3))
			setup(e)
			require.Equal(t, name, e.State().String())
			resets := grav.resets

			e.Reset()

			snap := rec.last()
			assert.Equal(t, StateStart, snap.State)
			assert.Empty(t, snap.Field)
			assert.Nil(t, snap.Figure)
			assert.Equal(t, 0, snap.Score)
			assert.Equal(t, 0, snap.Lines)
			assert.Equal(t, 1, snap.Level)
			assert.Equal(t, 0, snap.Pieces)
			assert.False(t, grav.running)
			assert.Greater(t, grav.resets, resets)
		})
	}
}

func TestEngine_SetDimensions(t *testing.T) {
	e, rec, _ := newTestEngine(t, DefaultConfig())

	e.SetWidth(12)
	e.SetHeight(20)
	assert.Equal(t, 3, rec.count())
	assert.Equal(t, 12, rec.last().Width)
	assert.Equal(t, 20, rec.last().Height)

	e.SetWidth(3)
	e.SetWidth(31)
	e.SetHeight(5)
	e.SetHeight(51)
	assert.Equal(t, 3, rec.count())
	assert.Equal(t, 12, e.Snapshot().Width)
	assert.Equal(t, 20, e.Snapshot().Height)
}

func TestEngine_HorizontalMoveBlockedByWall(t *testing.T) {
	e, rec, _ := newTestEngine(t, smallConfig(), WithPieceFactory(typeFactory(PieceO)))
	e.Start()
	before := *e.piece
	n := rec.count()

	e.MoveRight()

	assert.Equal(t, before, *e.piece)
	assert.Equal(t, n+1, rec.count(), "a rejected move still emits")

	e.MoveLeft()
	assert.Equal(t, before.Anchor.X-1, e.piece.Anchor.X)
}

func TestEngine_RotateRejectedAtWall(t *testing.T) {
	e, _, _ := newTestEngine(t, smallConfig(), WithPieceFactory(typeFactory(PieceI)))
	e.Start()

	e.MoveLeft()
	e.MoveLeft()
	e.MoveLeft()
	require.Equal(t, -1, e.piece.Anchor.X)
	before := *e.piece

	e.RotateRight()
	assert.Equal(t, before, *e.piece)
	e.RotateLeft()
	assert.Equal(t, before, *e.piece)
}

func TestEngine_RotateDirection(t *testing.T) {
	e, _, _ := newTestEngine(t, smallConfig(), WithPieceFactory(typeFactory(PieceT)))
	e.Start()
	anchor := e.piece.Anchor
	local := func() []Cell {
		cells := e.piece.Cells()
		for i := range cells {
			cells[i] = Cell{X: cells[i].X - anchor.X, Y: cells[i].Y - anchor.Y}
		}
		return cells
	}
	require.ElementsMatch(t, []Cell{{1, 3}, {0, 2}, {1, 2}, {2, 2}}, local(), "T points up")

	e.RotateRight()
	assert.ElementsMatch(t, []Cell{{1, 3}, {1, 2}, {2, 2}, {1, 1}}, local(), "T points right")

	e.RotateRight()
	assert.ElementsMatch(t, []Cell{{0, 2}, {1, 2}, {2, 2}, {1, 1}}, local(), "T points down")

	e.RotateLeft()
	e.RotateLeft()
	e.RotateLeft()
	assert.ElementsMatch(t, []Cell{{1, 3}, {0, 2}, {1, 2}, {1, 1}}, local(), "T points left")
}

func TestEngine_SquareRotationIsNoop(t *testing.T) {
	e, _, _ := newTestEngine(t, smallConfig(), WithPieceFactory(typeFactory(PieceO)))
	e.Start()
	cells := e.piece.Cells()

	for i := 0; i < 5; i++ {
		e.RotateRight()
		assert.Equal(t, cells, e.piece.Cells())
		e.RotateLeft()
		assert.Equal(t, cells, e.piece.Cells())
	}
}

func TestEngine_FreezeClearsSingleRow(t *testing.T) {
	e, rec, _ := newTestEngine(t, smallConfig(), WithPieceFactory(typeFactory(PieceO)))
	e.Start()

	// horizontal I lying on row 0, one field cell above it
	p := NewPiece(PieceI, 1, 0, -2)
	p.Rotate(1)
	e.piece = p
	e.field.Set(Cell{X: 0, Y: 1}, 2)

	e.MoveDown()

	snap := rec.last()
	assert.Equal(t, map[Cell]int{{0, 0}: 2}, snap.Field)
	assert.Equal(t, 1, snap.Lines)
	assert.Equal(t, 1, snap.Score)
	assert.Equal(t, StateRunning, snap.State)
	assert.NotNil(t, snap.Figure)
}

func TestEngine_DoubleClearScoresFour(t *testing.T) {
	e, rec, _ := newTestEngine(t, smallConfig(), WithPieceFactory(func(_, y int) *Piece {
		return NewPiece(PieceO, 1, 0, y)
	}))
	e.Start()
	for y := 0; y < 2; y++ {
		e.field.Set(Cell{X: 0, Y: y}, 3)
		e.field.Set(Cell{X: 3, Y: y}, 3)
	}
	n := rec.count()

	e.Drop()

	assert.Equal(t, n+1, rec.count(), "drop emits exactly one snapshot")
	snap := rec.last()
	assert.Equal(t, 2, snap.Lines)
	assert.Equal(t, 4, snap.Score)
	assert.Empty(t, snap.Field)
}

func TestEngine_DropResetsGravity(t *testing.T) {
	e, _, grav := newTestEngine(t, smallConfig(), WithSeed(1))
	e.Start()
	resets := grav.resets

	e.Drop()

	assert.Equal(t, resets+1, grav.resets)
}

func TestEngine_DropMatchesRepeatedMoveDown(t *testing.T) {
	cfg := DefaultConfig()
	dropped, dropRec, _ := newTestEngine(t, cfg, WithSeed(11))
	stepped, stepRec, _ := newTestEngine(t, cfg, WithSeed(11))
	dropped.Start()
	stepped.Start()

	for i := 0; i < 40 && dropped.State() == StateRunning; i++ {
		n := dropRec.count()
		dropped.Drop()
		assert.Equal(t, n+1, dropRec.count())

		pieces := stepped.pieces
		for stepped.State() == StateRunning && stepped.pieces == pieces {
			stepped.MoveDown()
		}

		require.Equal(t, dropped.Snapshot(), stepped.Snapshot(), "after drop %d", i)
	}
	assert.Greater(t, stepRec.count(), dropRec.count())
}

func TestEngine_GameOverWhenSpawnBlocked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width = 10
	cfg.Height = 10
	e, rec, grav := newTestEngine(t, cfg, WithPieceFactory(typeFactory(PieceO)))
	e.Start()

	e.piece = NewPiece(PieceO, 1, -1, -2)
	for _, c := range []Cell{{5, 8}, {6, 8}, {5, 9}, {6, 9}} {
		e.field.Set(c, 4)
	}

	e.Drop()

	snap := rec.last()
	assert.Equal(t, StateGameOver, snap.State)
	assert.Nil(t, snap.Figure)
	assert.Nil(t, e.piece)
	assert.Equal(t, NewActionSet(ActionReset), snap.AllowedActions)
	assert.False(t, grav.running)
	assert.Len(t, snap.Field, 8)

	n := rec.count()
	e.Drop()
	e.Start()
	e.Pause()
	assert.Equal(t, n, rec.count())
}

func TestEngine_StartIntoBlockedFieldIsGameOver(t *testing.T) {
	e, rec, _ := newTestEngine(t, DefaultConfig(), WithPieceFactory(typeFactory(PieceT)))
	// T spawns at anchor (2,11) covering (3,14),(2,13),(3,13),(4,13).
	e.field.Set(Cell{X: 3, Y: 13}, 1)

	e.Start()

	assert.Equal(t, StateGameOver, rec.last().State)
	assert.Nil(t, rec.last().Figure)
	assert.Equal(t, 0, rec.last().Pieces)
}

func TestEngine_LevelAndInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LinesPerLevel = 2
	cfg.MaxLevel = 3
	cfg.MinSpeed = 1
	cfg.MaxSpeed = 4
	e, _, grav := newTestEngine(t, cfg)

	e.updateScore(1)
	assert.Equal(t, 1, e.level)
	assert.Equal(t, time.Second, grav.interval)

	e.updateScore(1)
	assert.Equal(t, 2, e.level)
	assert.Equal(t, 400*time.Millisecond, grav.interval)

	e.updateScore(4)
	assert.Equal(t, 3, e.level, "level is capped")
	assert.Equal(t, 250*time.Millisecond, grav.interval)
	assert.Equal(t, 18, e.score)
	assert.Equal(t, 6, e.lines)

	e.updateScore(0)
	assert.Equal(t, 18, e.score)
}

func TestEngine_Terminate(t *testing.T) {
	e, rec, grav := newTestEngine(t, smallConfig())
	e.Start()
	n := rec.count()

	e.Terminate()
	e.Terminate()

	assert.Equal(t, StateTerminated, e.State())
	assert.Equal(t, 1, grav.stops)
	assert.Equal(t, n, rec.count(), "terminate never emits")

	e.Reset()
	e.Start()
	e.SetWidth(8)
	e.Drop()
	assert.Equal(t, n, rec.count())
	assert.Equal(t, StateTerminated, e.State())
}

func TestEngine_InvalidStatePanics(t *testing.T) {
	e, _, _ := newTestEngine(t, smallConfig())
	assert.Panics(t, func() { e.setState(State(99)) })
}

func TestEngine_SnapshotCannotMutateEngine(t *testing.T) {
	e, rec, _ := newTestEngine(t, smallConfig(), WithSeed(5))
	e.Start()
	e.Drop()

	snap := rec.last()
	require.NotNil(t, snap.Figure)
	want := e.Snapshot()

	snap.Field[Cell{X: 0, Y: 5}] = 6
	for c := range snap.Field {
		delete(snap.Field, c)
		break
	}
	snap.Figure.Coordinates[0] = Cell{X: -10, Y: -10}

	assert.Equal(t, want, e.Snapshot())
}

func TestEngine_RandomPlayKeepsInvariants(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig(), WithSeed(99))
	rng := rand.New(rand.NewSource(7))

	shifted := func(n int, rotate bool) bool {
		probe := *e.piece
		if rotate {
			probe.Rotate(n)
		} else {
			probe.MoveHorizontal(n)
		}
		return e.intersects(&probe)
	}

	for step := 0; step < 3000; step++ {
		switch e.State() {
		case StateStart:
			e.Start()
			continue
		case StateGameOver:
			e.Reset()
			continue
		}

		before := *e.piece
		switch rng.Intn(7) {
		case 0:
			blocked := shifted(-1, false)
			e.MoveLeft()
			if blocked {
				assert.Equal(t, before, *e.piece)
			}
		case 1:
			blocked := shifted(1, false)
			e.MoveRight()
			if blocked {
				assert.Equal(t, before, *e.piece)
			}
		case 2:
			blocked := shifted(1, true)
			e.RotateRight()
			if blocked {
				assert.Equal(t, before, *e.piece)
			}
		case 3:
			blocked := shifted(-1, true)
			e.RotateLeft()
			if blocked {
				assert.Equal(t, before, *e.piece)
			}
		case 4:
			e.Drop()
		default:
			e.MoveDown()
		}

		snap := e.Snapshot()
		for c := range snap.Field {
			require.True(t, c.X >= 0 && c.X < snap.Width && c.Y >= 0, "field cell %v out of bounds", c)
		}
		if snap.State == StateRunning {
			require.NotNil(t, snap.Figure)
			for _, c := range snap.Figure.Coordinates {
				_, taken := snap.Field[c]
				require.False(t, taken, "piece overlaps field at %v", c)
			}
		}
	}
}

func TestConfig_DropInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Second, cfg.DropInterval(1))
	assert.Equal(t, time.Second/8, cfg.DropInterval(cfg.MaxLevel))

	cfg.MaxLevel = 1
	assert.Equal(t, time.Second, cfg.DropInterval(1))
}

func TestConfig_DefaultIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
