package game

import (
	"github.com/kamstrup/intmap"
)

type cellKey uint64

func keyOf(c Cell) cellKey {
	return cellKey(uint64(uint32(c.X))<<32 | uint64(uint32(c.Y)))
}

func (k cellKey) cell() Cell {
	return Cell{X: int(int32(uint32(k >> 32))), Y: int(int32(uint32(k)))}
}

// Field holds the frozen cells of previously placed pieces, keyed by
// coordinate and valued by color code.
type Field struct {
	cells *intmap.Map[cellKey, int]
}

func NewField() *Field {
	return &Field{cells: intmap.New[cellKey, int](64)}
}

func (f *Field) Get(c Cell) (int, bool) {
	return f.cells.Get(keyOf(c))
}

func (f *Field) Has(c Cell) bool {
	_, ok := f.cells.Get(keyOf(c))
	return ok
}

func (f *Field) Set(c Cell, color int) {
	f.cells.Put(keyOf(c), color)
}

func (f *Field) Len() int {
	return f.cells.Len()
}

func (f *Field) Clear() {
	f.cells.Clear()
}

// Cells copies the field into a plain map.
func (f *Field) Cells() map[Cell]int {
	out := make(map[Cell]int, f.cells.Len())
	f.cells.ForEach(func(k cellKey, color int) bool {
		out[k.cell()] = color
		return true
	})
	return out
}

// TopRow returns the highest occupied y, or -1 for an empty field.
func (f *Field) TopRow() int {
	top := -1
	f.cells.ForEach(func(k cellKey, _ int) bool {
		if y := k.cell().Y; y > top {
			top = y
		}
		return true
	})
	return top
}

// RowFull reports whether every x in [0, width) is occupied at row y.
func (f *Field) RowFull(y, width int) bool {
	for x := 0; x < width; x++ {
		if !f.Has(Cell{X: x, Y: y}) {
			return false
		}
	}
	return true
}

// removeRow deletes row y and lowers every cell above it by one.
func (f *Field) removeRow(y int) {
	type entry struct {
		c     Cell
		color int
	}
	kept := make([]entry, 0, f.cells.Len())
	f.cells.ForEach(func(k cellKey, color int) bool {
		c := k.cell()
		switch {
		case c.Y == y:
		case c.Y > y:
			kept = append(kept, entry{Cell{X: c.X, Y: c.Y - 1}, color})
		default:
			kept = append(kept, entry{c, color})
		}
		return true
	})
	f.cells.Clear()
	for _, e := range kept {
		f.Set(e.c, e.color)
	}
}

// ClearFullRows scans from the top-most occupied row down to row 0, removing
// each full row and compacting the rows above it. It returns the number of
// rows removed.
func (f *Field) ClearFullRows(width int) int {
	cleared := 0
	for y := f.TopRow(); y >= 0; y-- {
		if f.RowFull(y, width) {
			f.removeRow(y)
			cleared++
		}
	}
	return cleared
}
