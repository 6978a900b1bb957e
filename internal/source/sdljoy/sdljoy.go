// Package sdljoy reads controllers through SDL2's joystick subsystem. Index
// layouts reported by SDL (like the f710 model) apply unchanged.
//
// SDL wants its calls on one OS thread. Callers must use a Source and its
// devices from a single goroutine that has called runtime.LockOSThread.
package sdljoy

import (
	"fmt"
	"sync"

	"github.com/veandco/go-sdl2/sdl"

	"joydrive/internal/tracker"
)

// Source opens joysticks by SDL device index. The joystick subsystem is
// initialized on first use.
type Source struct {
	once    sync.Once
	initErr error
}

func (s *Source) init() error {
	s.once.Do(func() {
		if err := sdl.InitSubSystem(sdl.INIT_JOYSTICK); err != nil {
			s.initErr = fmt.Errorf("sdl: init joystick subsystem: %w", err)
		}
	})
	return s.initErr
}

func (s *Source) DeviceCount() int {
	if s.init() != nil {
		return 0
	}
	n := sdl.NumJoysticks()
	if n < 0 {
		return 0
	}
	return n
}

func (s *Source) Open(index int) (tracker.Device, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	joy := sdl.JoystickOpen(index)
	if joy == nil {
		return nil, fmt.Errorf("sdl: open joystick %d: %w", index, sdl.GetError())
	}
	if !joy.Attached() {
		joy.Close()
		return nil, fmt.Errorf("sdl: joystick %d: %w", index, tracker.ErrDeviceNotFound)
	}
	return &device{
		joy:     joy,
		id:      joy.InstanceID(),
		name:    joy.Name(),
		axes:    joy.NumAxes(),
		buttons: joy.NumButtons(),
		hats:    joy.NumHats(),
	}, nil
}

// Close shuts the joystick subsystem down.
func (s *Source) Close() {
	if s.init() == nil {
		sdl.QuitSubSystem(sdl.INIT_JOYSTICK)
	}
}

type device struct {
	joy  *sdl.Joystick
	id   sdl.JoystickID
	name string

	axes, buttons, hats int
}

func (d *device) Name() string     { return d.name }
func (d *device) AxisCount() int   { return d.axes }
func (d *device) ButtonCount() int { return d.buttons }
func (d *device) HatCount() int    { return d.hats }

func (d *device) Axis(i int) float64 { return scaleAxis(d.joy.Axis(i)) }
func (d *device) Button(i int) bool  { return d.joy.Button(i) != 0 }
func (d *device) Hat(i int) (int, int) {
	return hatValue(d.joy.Hat(i))
}

// PollEvents drains SDL's event queue, which also refreshes joystick state.
// A quit request or the removal of this joystick is reported as RawQuit.
func (d *device) PollEvents() []tracker.RawEvent {
	var out []tracker.RawEvent
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		switch e := ev.(type) {
		case *sdl.QuitEvent:
			out = append(out, tracker.RawEvent{Kind: tracker.RawQuit, Detail: "sdl quit"})
		case *sdl.JoyDeviceRemovedEvent:
			if e.Which == d.id {
				out = append(out, tracker.RawEvent{Kind: tracker.RawQuit, Detail: "joystick removed"})
			}
		default:
			out = append(out, tracker.RawEvent{Kind: tracker.RawOther})
		}
	}
	return out
}

func (d *device) Close() error {
	d.joy.Close()
	return nil
}

func scaleAxis(v int16) float64 {
	return float64(v) / 32768
}

// hatValue decodes SDL's hat bitmask into (horz, vert) with up as +1.
func hatValue(h byte) (horz, vert int) {
	if h&sdl.HAT_LEFT != 0 {
		horz = -1
	} else if h&sdl.HAT_RIGHT != 0 {
		horz = 1
	}
	if h&sdl.HAT_DOWN != 0 {
		vert = -1
	} else if h&sdl.HAT_UP != 0 {
		vert = 1
	}
	return horz, vert
}
