package game

import (
	"math/rand"
)

// PieceType identifies one of the seven tetromino shapes.
type PieceType int

const (
	PieceI PieceType = iota
	PieceO
	PieceT
	PieceS
	PieceZ
	PieceJ
	PieceL
)

var pieceNames = [...]string{
	PieceI: "I",
	PieceO: "O",
	PieceT: "T",
	PieceS: "S",
	PieceZ: "Z",
	PieceJ: "J",
	PieceL: "L",
}

func (t PieceType) String() string {
	if t < 0 || int(t) >= len(pieceNames) {
		return "unknown"
	}
	return pieceNames[t]
}

// NumColors is the size of the color palette. Color codes run 1..NumColors;
// the display decides what each code looks like.
const NumColors = 6

// Cell is a coordinate on the field. x grows to the right, y grows upwards
// and row 0 is the bottom row.
type Cell struct {
	X, Y int
}

// Add returns c shifted by o.
func (c Cell) Add(o Cell) Cell {
	return Cell{X: c.X + o.X, Y: c.Y + o.Y}
}

type rotation [4]Cell

// Rotation states on a 4x4 local grid, y up. Each list runs
// counterclockwise: index+1 is the previous state turned 90 degrees left.
//
//	3 | (0,3) (1,3) (2,3) (3,3)
//	2 | (0,2) (1,2) (2,2) (3,2)
//	1 | (0,1) (1,1) (2,1) (3,1)
//	0 | (0,0) (1,0) (2,0) (3,0)
var pieceRotations = [...][]rotation{
	PieceI: {
		{{1, 3}, {1, 2}, {1, 1}, {1, 0}},
		{{0, 2}, {1, 2}, {2, 2}, {3, 2}},
	},
	PieceO: {
		{{1, 3}, {2, 3}, {1, 2}, {2, 2}},
	},
	PieceT: {
		{{1, 3}, {0, 2}, {1, 2}, {2, 2}},
		{{1, 3}, {0, 2}, {1, 2}, {1, 1}},
		{{0, 2}, {1, 2}, {2, 2}, {1, 1}},
		{{1, 3}, {1, 2}, {2, 2}, {1, 1}},
	},
	PieceS: {
		{{1, 3}, {1, 2}, {2, 2}, {2, 1}},
		{{2, 2}, {3, 2}, {1, 1}, {2, 1}},
	},
	PieceZ: {
		{{2, 3}, {2, 2}, {1, 2}, {1, 1}},
		{{0, 2}, {1, 2}, {1, 1}, {2, 1}},
	},
	PieceJ: {
		{{1, 3}, {2, 3}, {2, 2}, {2, 1}},
		{{1, 2}, {2, 2}, {3, 2}, {1, 1}},
		{{2, 3}, {2, 2}, {2, 1}, {3, 1}},
		{{3, 3}, {1, 2}, {2, 2}, {3, 2}},
	},
	PieceL: {
		{{1, 3}, {2, 3}, {1, 2}, {1, 1}},
		{{0, 3}, {0, 2}, {1, 2}, {2, 2}},
		{{1, 3}, {1, 2}, {1, 1}, {0, 1}},
		{{0, 2}, {1, 2}, {2, 2}, {2, 1}},
	},
}

// Piece is the falling tetromino. Rotation and position only change through
// Rotate and Move*; the engine undoes a transform by applying its inverse.
type Piece struct {
	Type     PieceType
	Rotation int
	Anchor   Cell
	Color    int
}

// NewPiece creates a piece of the given type in rotation state 0 with its
// local grid anchored at (x, y).
func NewPiece(t PieceType, color, x, y int) *Piece {
	return &Piece{
		Type:   t,
		Anchor: Cell{X: x, Y: y},
		Color:  color,
	}
}

// RandomPiece picks the type and color uniformly from rng.
func RandomPiece(rng *rand.Rand, x, y int) *Piece {
	t := PieceType(rng.Intn(len(pieceRotations)))
	return NewPiece(t, rng.Intn(NumColors)+1, x, y)
}

// Rotations reports how many distinct rotation states the piece cycles through.
func (p *Piece) Rotations() int {
	return len(pieceRotations[p.Type])
}

// Cells returns the absolute coordinates the piece occupies.
func (p *Piece) Cells() []Cell {
	r := pieceRotations[p.Type][p.Rotation]
	cells := make([]Cell, len(r))
	for i, c := range r {
		cells[i] = p.Anchor.Add(c)
	}
	return cells
}

// Rotate advances the rotation state by n, wrapping around. Negative n
// rotates the other way.
func (p *Piece) Rotate(n int) {
	count := p.Rotations()
	p.Rotation = ((p.Rotation+n)%count + count) % count
}

func (p *Piece) MoveVertical(n int) {
	p.Anchor.Y += n
}

func (p *Piece) MoveHorizontal(n int) {
	p.Anchor.X += n
}

// PieceSnapshot is the display-facing view of a piece.
type PieceSnapshot struct {
	Type        PieceType
	Coordinates []Cell
	ColorCode   int
}

// Snapshot returns a copy the caller may keep and modify freely.
func (p *Piece) Snapshot() *PieceSnapshot {
	return &PieceSnapshot{
		Type:        p.Type,
		Coordinates: p.Cells(),
		ColorCode:   p.Color,
	}
}
