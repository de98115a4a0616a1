package candata

import "candash-go/types"

// MaxCells is the cell array ceiling (16 modules of 6 cells).
const MaxCells = 96

type Cell struct {
	MV      uint16
	Updated int64
}

// Cells holds per-slot voltages. Count is one past the highest slot ever
// written and never shrinks.
type Cells struct {
	slots [MaxCells]Cell
	count int
	dirty bool
}

func (c *Cells) Count() int { return c.count }

func (c *Cells) At(i int) (Cell, bool) {
	if i < 0 || i >= c.count {
		return Cell{}, false
	}
	return c.slots[i], true
}

// store writes readings starting at slot first. The whole write is refused
// if any slot falls outside the array.
func (c *Cells) store(first int, mv []uint16, now int64) bool {
	if first < 0 || first+len(mv) > MaxCells || len(mv) == 0 {
		return false
	}
	for i, v := range mv {
		c.slots[first+i] = Cell{MV: v, Updated: now}
	}
	if end := first + len(mv); end > c.count {
		c.count = end
	}
	c.dirty = true
	return true
}

// Snapshot copies the populated slots. Min and max skip slots never written.
func (c *Cells) Snapshot(now int64) types.CellSnapshot {
	s := types.CellSnapshot{
		Count:   c.count,
		MV:      make([]uint16, c.count),
		Updated: make([]int64, c.count),
		TS:      now,
	}
	first := true
	for i := 0; i < c.count; i++ {
		cell := c.slots[i]
		s.MV[i], s.Updated[i] = cell.MV, cell.Updated
		if cell.Updated == 0 {
			continue
		}
		if first || cell.MV < s.MinMV {
			s.MinMV = cell.MV
		}
		if first || cell.MV > s.MaxMV {
			s.MaxMV = cell.MV
		}
		first = false
	}
	return s
}
