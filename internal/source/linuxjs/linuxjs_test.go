//go:build linux

package linuxjs

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"joydrive/internal/tracker"
)

func jsEvent(value int16, typ, number uint8) []byte {
	b := make([]byte, jsEventSize)
	binary.NativeEndian.PutUint32(b[0:4], 1234)
	binary.NativeEndian.PutUint16(b[4:6], uint16(value))
	b[6] = typ
	b[7] = number
	return b
}

func TestNodesSortedNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"js10", "js2", "js0", "event3", "jsx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}

	s := &Source{Dir: dir}
	assert.Equal(t, []string{
		filepath.Join(dir, "js0"),
		filepath.Join(dir, "js2"),
		filepath.Join(dir, "js10"),
	}, s.nodes())
	assert.Equal(t, 3, s.DeviceCount())
}

func TestOpen_OutOfRange(t *testing.T) {
	s := &Source{Dir: t.TempDir()}
	_, err := s.Open(0)
	assert.ErrorIs(t, err, tracker.ErrDeviceNotFound)
}

func TestApply(t *testing.T) {
	d := &device{
		axes:    make([]int16, 8),
		buttons: make([]bool, 11),
		hats:    [][2]int{{6, 7}},
	}

	d.apply(jsEvent(-32767, jsEventAxis|jsEventInit, 1))
	d.apply(jsEvent(1, jsEventButton, 3))
	d.apply(jsEvent(32767, jsEventAxis, 6))
	d.apply(jsEvent(-32767, jsEventAxis, 7))
	d.apply(jsEvent(1, jsEventButton, 42)) // out of range, ignored

	assert.Equal(t, -1.0, d.Axis(1))
	assert.True(t, d.Button(3))
	horz, vert := d.Hat(0)
	assert.Equal(t, 1, horz)
	assert.Equal(t, 1, vert, "negative joystick y is up")

	d.apply(jsEvent(0, jsEventButton, 3))
	assert.False(t, d.Button(3))
}

func TestScaleAxis(t *testing.T) {
	assert.Equal(t, 1.0, scaleAxis(32767))
	assert.Equal(t, -1.0, scaleAxis(-32768))
	assert.Equal(t, 0.0, scaleAxis(0))
}

func TestAxisDirection(t *testing.T) {
	assert.Equal(t, 0, axisDirection(1000))
	assert.Equal(t, 1, axisDirection(20000))
	assert.Equal(t, -1, axisDirection(-20000))
}
