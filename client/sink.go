package client

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/beka-birhanu/mazehem/log"
	"github.com/beka-birhanu/mazehem/maze"
	"github.com/beka-birhanu/mazehem/player"
)

// LogSink logs the roster whenever a player moves.
type LogSink struct {
	logger log.Logger
	last   []player.Player
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Render(_ []maze.Cell, players []player.Player) {
	if slices.Equal(s.last, players) {
		return
	}
	s.last = slices.Clone(players)

	parts := make([]string, len(players))
	for n, p := range players {
		parts[n] = p.String()
	}
	s.logger.Info(strings.Join(parts, " "))
}

// TextSink redraws the known maze to w on every update.
type TextSink struct {
	w             io.Writer
	width, height uint
}

var _ Sink = (*TextSink)(nil)

func NewTextSink(w io.Writer, width, height uint) *TextSink {
	return &TextSink{w: w, width: width, height: height}
}

func (s *TextSink) Render(cells []maze.Cell, players []player.Player) {
	fmt.Fprint(s.w, "\033[H\033[2J", Draw(s.width, s.height, cells, players))
}

// Draw renders cells as ASCII art. Unknown cells show "??", walls are drawn
// wherever no link is known, players are shown by slot number and the goal
// at the centre as "<>".
func Draw(width, height uint, cells []maze.Cell, players []player.Player) string {
	known := make(map[maze.Coord]maze.Cell, len(cells))
	for _, c := range cells {
		known[c.Coord] = c
	}
	at := make(map[maze.Coord]int, len(players))
	for _, p := range players {
		if _, taken := at[p.Coord]; !taken {
			at[p.Coord] = p.Slot
		}
	}

	goal := maze.NewCoord(width/2, height/2)

	var b strings.Builder
	b.WriteString("+" + strings.Repeat("--+", int(width)) + "\n")
	for y := range height {
		row, floor := "|", "+"
		for x := range width {
			c := maze.NewCoord(x, y)
			_, ok := known[c]

			body := "  "
			switch {
			case at[c] != 0:
				body = fmt.Sprintf("%d ", at[c])
			case !ok:
				body = "??"
			case c == goal:
				body = "<>"
			}
			row += body
			if x+1 < width && open(known, c, c.Step(maze.Right)) {
				row += " "
			} else {
				row += "|"
			}
			if y+1 < height && open(known, c, c.Step(maze.Down)) {
				floor += "  +"
			} else {
				floor += "--+"
			}
		}
		b.WriteString(row + "\n" + floor + "\n")
	}
	return b.String()
}

// open reports whether either side records the passage between a and b.
func open(known map[maze.Coord]maze.Cell, a, b maze.Coord) bool {
	return known[a].LinksTo(b) || known[b].LinksTo(a)
}
