package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dungeonarena/world"
)

var origin = world.Cell{}

func TestTrackInterpolatesOneTilePerTick(t *testing.T) {
	tr := newTrack(origin, world.Pos{X: 5, Y: 5}, 0)
	tr.Observe(origin, world.Pos{X: 7, Y: 6}, 0)

	want := []world.Pos{{X: 6, Y: 5}, {X: 7, Y: 5}, {X: 7, Y: 6}, {X: 7, Y: 6}}
	prev := tr.Display
	for i, w := range want {
		tr.Step(int64(i+1), nil)
		assert.Equal(t, w, tr.Display, "tick %d", i+1)
		assert.LessOrEqual(t, manhattan(prev, tr.Display), 1)
		prev = tr.Display
	}
}

func TestTrackExtrapolatesAtMostOneTile(t *testing.T) {
	tr := newTrack(origin, world.Pos{X: 5, Y: 5}, 0)
	tr.Observe(origin, world.Pos{X: 6, Y: 5}, 0)

	for now := int64(1); now <= InterpolationTicks; now++ {
		tr.Step(now, nil)
	}
	assert.Equal(t, world.Pos{X: 6, Y: 5}, tr.Display)

	for now := int64(InterpolationTicks + 1); now <= ExtrapolationTicks; now++ {
		tr.Step(now, nil)
		assert.Equal(t, world.Pos{X: 7, Y: 5}, tr.Display, "tick %d", now)
	}

	tr.Step(ExtrapolationTicks+1, nil)
	assert.Equal(t, world.Pos{X: 6, Y: 5}, tr.Display)
}

func TestTrackDoesNotExtrapolateIntoWalls(t *testing.T) {
	tr := newTrack(origin, world.Pos{X: 5, Y: 5}, 0)
	tr.Observe(origin, world.Pos{X: 6, Y: 5}, 0)
	closed := func(world.Cell, world.Pos) bool { return false }
	for now := int64(1); now <= ExtrapolationTicks; now++ {
		tr.Step(now, closed)
		assert.LessOrEqual(t, tr.Display.X, 6)
	}
	assert.Equal(t, world.Pos{X: 6, Y: 5}, tr.Display)
}

func TestTrackSnaps(t *testing.T) {
	tr := newTrack(origin, world.Pos{X: 5, Y: 5}, 0)
	tr.Observe(origin, world.Pos{X: 20, Y: 5}, 1)
	assert.Equal(t, world.Pos{X: 20, Y: 5}, tr.Display)

	other := world.Cell{X: 1}
	tr.Observe(other, world.Pos{X: 0, Y: 5}, 2)
	assert.Equal(t, other, tr.Cell)
	assert.Equal(t, world.Pos{X: 0, Y: 5}, tr.Display)
	assert.Equal(t, tr.Target, tr.Prev)
}

func TestTrackIgnoresRepeatedTarget(t *testing.T) {
	tr := newTrack(origin, world.Pos{X: 5, Y: 5}, 0)
	tr.Observe(origin, world.Pos{X: 6, Y: 5}, 0)
	tr.Observe(origin, world.Pos{X: 6, Y: 5}, 3)
	assert.Equal(t, int64(0), tr.ChangedAt)
}
