package maze

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordOutOfBounds(t *testing.T) {
	assert.False(t, NewCoord(0, 0).OutOfBounds(1, 1))
	assert.True(t, NewCoord(1, 0).OutOfBounds(1, 1))
	assert.True(t, NewCoord(0, 1).OutOfBounds(1, 1))
	assert.True(t, NewCoord(0, 0).OutOfBounds(0, 5))
}

func TestCoordStepSaturates(t *testing.T) {
	origin := NewCoord(0, 0)
	assert.Equal(t, origin, origin.Step(Up))
	assert.Equal(t, origin, origin.Step(Left))
	assert.Equal(t, NewCoord(0, 1), origin.Step(Down))
	assert.Equal(t, NewCoord(1, 0), origin.Step(Right))
	assert.Equal(t, origin, origin.Step(Undefined))

	c := NewCoord(3, 4)
	assert.Equal(t, NewCoord(3, 3), c.Step(Up))
	assert.Equal(t, NewCoord(2, 4), c.Step(Left))
}

func TestCoordIsAdjacent(t *testing.T) {
	c := NewCoord(2, 2)
	assert.True(t, c.IsAdjacent(NewCoord(2, 1)))
	assert.True(t, c.IsAdjacent(NewCoord(3, 2)))
	assert.False(t, c.IsAdjacent(c))
	assert.False(t, c.IsAdjacent(NewCoord(3, 3)))
}
