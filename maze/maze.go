package maze

// Maze is a generated perfect maze: a spanning tree over a width x height grid.
// It is immutable after generation and safe to share between goroutines.
type Maze struct {
	width  uint
	height uint
	root   Coord
	order  []Coord         // discovery order
	cells  map[Coord]*Cell // tree members
}

// Width returns the number of columns.
func (m *Maze) Width() uint { return m.width }

// Height returns the number of rows.
func (m *Maze) Height() uint { return m.height }

// Root returns the coordinate the tree was grown from.
func (m *Maze) Root() Coord { return m.root }

// Goal returns the cell players race toward, which is the maze root.
func (m *Maze) Goal() Coord { return m.root }

// Len returns the number of cells in the maze.
func (m *Maze) Len() int { return len(m.order) }

// InBound reports whether c is on the grid.
func (m *Maze) InBound(c Coord) bool {
	return !c.OutOfBounds(m.width, m.height)
}

// Cell returns a copy of the cell at c.
func (m *Maze) Cell(c Coord) (Cell, bool) {
	cell, ok := m.cells[c]
	if !ok {
		return Cell{}, false
	}
	return cell.Clone(), true
}

// Cells returns copies of every cell in discovery order.
func (m *Maze) Cells() []Cell {
	out := make([]Cell, 0, len(m.order))
	for _, c := range m.order {
		out = append(out, m.cells[c].Clone())
	}
	return out
}

// LinkCount returns the total number of recorded links.
func (m *Maze) LinkCount() int {
	n := 0
	for _, cell := range m.cells {
		n += len(cell.Links)
	}
	return n
}

// Connected reports whether a passage joins a and b. Storage is directional,
// so both cells are consulted.
func (m *Maze) Connected(a, b Coord) bool {
	if ca, ok := m.cells[a]; ok && ca.LinksTo(b) {
		return true
	}
	if cb, ok := m.cells[b]; ok && cb.LinksTo(a) {
		return true
	}
	return false
}

// Move returns the coordinate reached by moving from in direction d and
// whether the move is legal. An illegal move returns from unchanged.
func (m *Maze) Move(from Coord, d Direction) (Coord, bool) {
	if d == Undefined || !d.Valid() {
		return from, false
	}
	to := from.Step(d)
	if to == from || to.OutOfBounds(m.width, m.height) {
		return from, false
	}
	if !m.Connected(from, to) {
		return from, false
	}
	return to, true
}

func (m *Maze) add(c Coord) *Cell {
	cell := &Cell{Coord: c}
	m.cells[c] = cell
	m.order = append(m.order, c)
	return cell
}
