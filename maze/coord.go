package maze

import "fmt"

// Coord is a cell position on the maze grid. It is a value type; there is no
// representable negative coordinate.
type Coord struct {
	X uint
	Y uint
}

// NewCoord returns the coordinate (x, y).
func NewCoord(x, y uint) Coord {
	return Coord{X: x, Y: y}
}

// OutOfBounds reports whether c lies outside a width x height grid.
func (c Coord) OutOfBounds(width, height uint) bool {
	return c.X >= width || c.Y >= height
}

// Step returns the coordinate one cell away in direction d. Steps toward
// negative directions saturate at 0, so stepping Up from row 0 returns c.
func (c Coord) Step(d Direction) Coord {
	switch d {
	case Up:
		if c.Y > 0 {
			return Coord{X: c.X, Y: c.Y - 1}
		}
	case Down:
		return Coord{X: c.X, Y: c.Y + 1}
	case Left:
		if c.X > 0 {
			return Coord{X: c.X - 1, Y: c.Y}
		}
	case Right:
		return Coord{X: c.X + 1, Y: c.Y}
	}
	return c
}

// IsAdjacent reports whether c and o share a grid edge.
func (c Coord) IsAdjacent(o Coord) bool {
	dx, dy := diff(c.X, o.X), diff(c.Y, o.Y)
	return dx+dy == 1
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

func diff(a, b uint) uint {
	if a > b {
		return a - b
	}
	return b - a
}
