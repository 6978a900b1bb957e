package sdljoy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/veandco/go-sdl2/sdl"
)

func TestHatValue(t *testing.T) {
	cases := []struct {
		in         byte
		horz, vert int
	}{
		{sdl.HAT_CENTERED, 0, 0},
		{sdl.HAT_LEFT, -1, 0},
		{sdl.HAT_RIGHT, 1, 0},
		{sdl.HAT_UP, 0, 1},
		{sdl.HAT_DOWN, 0, -1},
		{sdl.HAT_RIGHTUP, 1, 1},
		{sdl.HAT_LEFTDOWN, -1, -1},
	}
	for _, c := range cases {
		h, v := hatValue(c.in)
		assert.Equal(t, c.horz, h, "hat %#x horz", c.in)
		assert.Equal(t, c.vert, v, "hat %#x vert", c.in)
	}
}

func TestScaleAxis(t *testing.T) {
	assert.Equal(t, -1.0, scaleAxis(-32768))
	assert.Equal(t, 0.0, scaleAxis(0))
	assert.InDelta(t, 1.0, scaleAxis(32767), 1e-4)
}
