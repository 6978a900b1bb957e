// Package portable reads controllers through github.com/0xcafed00d/joystick,
// which works on Windows, macOS and Linux without cgo. It has no hat API;
// d-pads that report as axis pairs can be folded into hats.
package portable

import (
	"fmt"

	"github.com/0xcafed00d/joystick"

	"joydrive/internal/tracker"
)

// maxButtons is the width of the library's button bitmask.
const maxButtons = 32

// DefaultProbe is how many joystick ids DeviceCount tries.
const DefaultProbe = 8

type openFunc func(id int) (joystick.Joystick, error)

// Source probes joystick ids 0..Probe-1. The library has no enumeration call,
// so a device counts as present when it opens.
type Source struct {
	Probe   int
	HatAxes [][2]int

	open openFunc
}

func (s *Source) opener() openFunc {
	if s.open != nil {
		return s.open
	}
	return joystick.Open
}

func (s *Source) probe() int {
	if s.Probe <= 0 {
		return DefaultProbe
	}
	return s.Probe
}

// DeviceCount returns the number of ids, counted from 0, that open in sequence.
func (s *Source) DeviceCount() int {
	open := s.opener()
	n := 0
	for ; n < s.probe(); n++ {
		js, err := open(n)
		if err != nil {
			break
		}
		js.Close()
	}
	return n
}

func (s *Source) Open(index int) (tracker.Device, error) {
	js, err := s.opener()(index)
	if err != nil {
		return nil, fmt.Errorf("joystick %d: %w", index, err)
	}

	axes := js.AxisCount()
	buttons := js.ButtonCount()
	if buttons > maxButtons {
		buttons = maxButtons
	}

	var hats [][2]int
	for _, p := range s.HatAxes {
		if p[0] >= 0 && p[1] >= 0 && p[0] < axes && p[1] < axes {
			hats = append(hats, p)
		}
	}

	return &device{
		js:      js,
		name:    js.Name(),
		axes:    axes,
		buttons: buttons,
		hats:    hats,
		state:   joystick.State{AxisData: make([]int, axes)},
	}, nil
}

type device struct {
	js   joystick.Joystick
	name string

	axes, buttons int
	hats          [][2]int

	state joystick.State
}

func (d *device) Name() string     { return d.name }
func (d *device) AxisCount() int   { return d.axes }
func (d *device) ButtonCount() int { return d.buttons }
func (d *device) HatCount() int    { return len(d.hats) }

func (d *device) Axis(i int) float64 {
	if i >= len(d.state.AxisData) {
		return 0
	}
	return scaleAxis(d.state.AxisData[i])
}

func (d *device) Button(i int) bool {
	return d.state.Buttons&(1<<uint(i)) != 0
}

// Hat folds an axis pair into a hat reading with up as +1.
func (d *device) Hat(i int) (int, int) {
	p := d.hats[i]
	return direction(d.axisRaw(p[0])), -direction(d.axisRaw(p[1]))
}

func (d *device) axisRaw(i int) int {
	if i >= len(d.state.AxisData) {
		return 0
	}
	return d.state.AxisData[i]
}

// PollEvents samples the device. The library reports no event stream, so a
// failed read is the only disconnect signal.
func (d *device) PollEvents() []tracker.RawEvent {
	st, err := d.js.Read()
	if err != nil {
		return []tracker.RawEvent{{Kind: tracker.RawQuit, Detail: err.Error()}}
	}
	d.state = st
	return nil
}

func (d *device) Close() error {
	d.js.Close()
	return nil
}

func scaleAxis(v int) float64 {
	f := float64(v) / 32767
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	}
	return f
}

func direction(v int) int {
	switch {
	case v > 16384:
		return 1
	case v < -16384:
		return -1
	}
	return 0
}
