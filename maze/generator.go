package maze

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// MaxCells bounds the grid area New accepts.
const MaxCells = 1 << 20

// ErrInvalidDimension is returned when the requested grid is too large.
var ErrInvalidDimension = errors.New("invalid maze dimension")

// Option configures maze generation.
type Option func(*generator)

// WithRand sets the random source used to grow the tree.
func WithRand(r *rand.Rand) Option {
	return func(g *generator) {
		g.rng = r
	}
}

// WithSeed makes generation deterministic: equal seeds and sizes give equal mazes.
func WithSeed(seed uint64) Option {
	return func(g *generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

type generator struct {
	rng *rand.Rand
}

// New grows a perfect maze over a width x height grid rooted at
// (width/2, height/2) using a randomized growing tree: a tree member is
// chosen uniformly by index, then one of its unvisited grid neighbours is
// chosen uniformly and attached to it.
//
// A zero dimension is treated as 1, so the degenerate result is a single
// node or a single row.
func New(width, height uint, opts ...Option) (*Maze, error) {
	width, height = max(width, 1), max(height, 1)
	if width > MaxCells || height > MaxCells || width*height > MaxCells {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d cells", ErrInvalidDimension, width, height, MaxCells)
	}

	g := &generator{}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return g.grow(width, height), nil
}

func (g *generator) grow(width, height uint) *Maze {
	total := int(width * height)
	m := &Maze{
		width:  width,
		height: height,
		root:   Coord{X: width / 2, Y: height / 2},
		order:  make([]Coord, 0, total),
		cells:  make(map[Coord]*Cell, total),
	}
	m.add(m.root)

	// frontier holds, per tree member, the neighbours it may still claim.
	// Members whose candidates run out leave the pool.
	pool := []Coord{m.root}
	frontier := map[Coord][]Coord{m.root: m.neighbours(m.root)}

	for m.Len() < total {
		i := g.rng.IntN(len(pool))
		member := pool[i]

		candidates := frontier[member][:0]
		for _, c := range frontier[member] {
			if _, visited := m.cells[c]; !visited {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			pool[i] = pool[len(pool)-1]
			pool = pool[:len(pool)-1]
			delete(frontier, member)
			continue
		}

		j := g.rng.IntN(len(candidates))
		child := candidates[j]
		frontier[member] = append(candidates[:j], candidates[j+1:]...)

		parent := m.cells[member]
		parent.Links = append(parent.Links, child)
		m.add(child)

		pool = append(pool, child)
		frontier[child] = m.neighbours(child)
	}

	return m
}

// neighbours returns the in-bound grid neighbours of c.
func (m *Maze) neighbours(c Coord) []Coord {
	out := make([]Coord, 0, len(Directions))
	for _, d := range Directions {
		n := c.Step(d)
		if n != c && !n.OutOfBounds(m.width, m.height) {
			out = append(out, n)
		}
	}
	return out
}
