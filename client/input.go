package client

import (
	"bufio"
	"io"
	"strings"
	"sync/atomic"

	"github.com/beka-birhanu/mazehem/maze"
)

// LineInput is an InputSource fed by text commands, one per line.
type LineInput struct {
	latest atomic.Uint32
}

var _ InputSource = (*LineInput)(nil)

// NewLineInput returns an input with nothing pressed.
func NewLineInput() *LineInput {
	return &LineInput{}
}

// Press records d as the latest direction.
func (in *LineInput) Press(d maze.Direction) {
	in.latest.Store(uint32(d))
}

// Sample returns the latest direction and clears it, so a single press
// moves at most once.
func (in *LineInput) Sample() maze.Direction {
	return maze.Direction(in.latest.Swap(uint32(maze.Undefined)))
}

// ReadFrom presses every recognised line of r until it ends.
func (in *LineInput) ReadFrom(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if d, ok := ParseDirection(scanner.Text()); ok {
			in.Press(d)
		}
	}
	return scanner.Err()
}

// ParseDirection maps w/a/s/d, arrows spelled out, and their first letters
// to a direction.
func ParseDirection(s string) (maze.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w", "up", "u", "k":
		return maze.Up, true
	case "s", "down", "j":
		return maze.Down, true
	case "a", "left", "l", "h":
		return maze.Left, true
	case "d", "right", "r":
		return maze.Right, true
	}
	return maze.Undefined, false
}
