package game

// Snapshot is the complete display-facing state of an engine. Every
// container is a fresh copy; mutating it never reaches the engine.
type Snapshot struct {
	Height         int
	Width          int
	Field          map[Cell]int
	State          State
	AllowedActions ActionSet
	Figure         *PieceSnapshot
	Score          int
	Lines          int
	Level          int
	Pieces         int
}

// Display receives a snapshot after every state-changing engine call.
// Update runs while the caller's lock is held and must not call back into
// the engine.
type Display interface {
	Update(Snapshot)
}

// DisplayFunc adapts a plain function to Display.
type DisplayFunc func(Snapshot)

func (f DisplayFunc) Update(s Snapshot) { f(s) }

type nopDisplay struct{}

func (nopDisplay) Update(Snapshot) {}
