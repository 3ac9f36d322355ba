package maze

import "slices"

// Cell is a maze node and the coordinates it opened a passage to.
// Links are recorded on the parent only, so passability between two cells
// must be checked from both sides.
type Cell struct {
	Coord Coord
	Links []Coord
}

// NewCell returns a cell at c with no links.
func NewCell(c Coord) Cell {
	return Cell{Coord: c}
}

// LinksTo reports whether the cell records a link to o.
func (c Cell) LinksTo(o Coord) bool {
	return slices.Contains(c.Links, o)
}

// Clone returns a deep copy of the cell.
func (c Cell) Clone() Cell {
	return Cell{Coord: c.Coord, Links: slices.Clone(c.Links)}
}
