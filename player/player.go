package player

import (
	"fmt"

	"github.com/beka-birhanu/mazehem/maze"
)

// Slots is the fixed number of player identities.
const Slots = 4

// Presentation colours per slot, 0xRRGGBB.
var colors = [Slots]uint32{0x990000, 0x0b5394, 0x38761d, 0xb45f06}

// Player is one of the four slots and its position on the grid.
// Color is only carried for renderers.
type Player struct {
	Slot  int
	Coord maze.Coord
	Color uint32
}

// New returns the player for slot (1..4) at its starting corner of a
// width x height grid.
func New(slot int, width, height uint) Player {
	width, height = max(width, 1), max(height, 1)
	var c maze.Coord
	switch slot {
	case 2:
		c = maze.NewCoord(width-1, 0)
	case 3:
		c = maze.NewCoord(0, height-1)
	case 4:
		c = maze.NewCoord(width-1, height-1)
	default:
		c = maze.NewCoord(0, 0)
	}
	return Player{Slot: slot, Coord: c, Color: ColorOf(slot)}
}

// ColorOf returns the presentation colour for slot.
func ColorOf(slot int) uint32 {
	if slot < 1 || slot > Slots {
		return colors[0]
	}
	return colors[slot-1]
}

// ValidSlot reports whether slot names one of the player identities.
func ValidSlot(slot int) bool {
	return slot >= 1 && slot <= Slots
}

func (p Player) String() string {
	return fmt.Sprintf("P%d%s", p.Slot, p.Coord)
}

// Roster holds every slot, indexed by slot-1.
type Roster [Slots]Player

// NewRoster returns the default four-corner layout.
func NewRoster(width, height uint) Roster {
	var r Roster
	for i := range r {
		r[i] = New(i+1, width, height)
	}
	return r
}

// Players returns the roster as a slice in slot order.
func (r Roster) Players() []Player {
	out := make([]Player, Slots)
	copy(out, r[:])
	return out
}
