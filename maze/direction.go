package maze

// Direction is a requested move on the grid. Up decreases Y, Left decreases X.
type Direction uint8

const (
	Undefined Direction = iota
	Up
	Down
	Left
	Right
)

// Directions lists the four movable directions.
var Directions = [...]Direction{Up, Down, Left, Right}

// Valid reports whether d is one of the known directions, Undefined included.
func (d Direction) Valid() bool {
	return d <= Right
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case Undefined:
		return "undefined"
	default:
		return "invalid"
	}
}
