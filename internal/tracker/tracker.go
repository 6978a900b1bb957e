package tracker

import (
	"errors"
	"fmt"
	"log/slog"

	"joydrive/internal/input"
)

var (
	// ErrDeviceNotFound is returned by Open when the index is outside
	// [0, DeviceCount()) or no device is attached.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceDisconnected is returned by Poll once the source reports the
	// device gone. It is terminal for the tracker.
	ErrDeviceDisconnected = errors.New("device disconnected")
)

// Tracker keeps the previous sample of every axis and button of one device
// session and turns each poll into named change events.
//
// Not safe for concurrent use; the daemon loop is the only caller.
type Tracker struct {
	dev     Device
	index   int
	binding input.Resolved
	logger  *slog.Logger

	numAxes    int
	numButtons int
	numHats    int

	axes    []float64
	buttons []bool // physical buttons followed by 4 synthesized slots per hat

	closed bool
}

// Open validates index against the source's live device count, opens the
// device and lays the binding out against its button and hat counts. On any
// failure nothing is left open.
func Open(src Source, index int, binding input.Binding, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	count := src.DeviceCount()
	if count == 0 || index < 0 || index >= count {
		return nil, fmt.Errorf("open joystick %d (%d attached): %w", index, count, ErrDeviceNotFound)
	}

	dev, err := src.Open(index)
	if err != nil {
		return nil, fmt.Errorf("open joystick %d: %w", index, err)
	}

	numAxes, numButtons, numHats := dev.AxisCount(), dev.ButtonCount(), dev.HatCount()
	resolved, err := binding.Resolve(numButtons, numHats)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("binding for %q: %w", dev.Name(), err)
	}

	t := &Tracker{
		dev:        dev,
		index:      index,
		binding:    resolved,
		logger:     logger,
		numAxes:    numAxes,
		numButtons: numButtons,
		numHats:    numHats,
		axes:       make([]float64, numAxes),
		buttons:    make([]bool, numButtons+input.SlotsPerHat*numHats),
	}

	logger.Info("joystick opened",
		"index", index,
		"name", dev.Name(),
		"axes", numAxes,
		"buttons", numButtons,
		"hats", numHats,
		"button_slots", len(t.buttons))

	return t, nil
}

// Name returns the device name reported by the source.
func (t *Tracker) Name() string { return t.dev.Name() }

// Index returns the device index the tracker was opened with.
func (t *Tracker) Index() int { return t.index }

// Counts returns the fixed axis, button and hat counts of the session.
func (t *Tracker) Counts() (axes, buttons, hats int) {
	return t.numAxes, t.numButtons, t.numHats
}

// Closed reports whether the tracker reached its terminal state.
func (t *Tracker) Closed() bool { return t.closed }

// Poll drains the source's event queue, then diffs axes, physical buttons and
// synthesized hat buttons against the stored samples. Every changed bound
// signal yields exactly one event, in that order. Stored samples are updated
// whether or not the index is bound.
//
// A quit signal from the source closes the device and makes this and every
// later call return ErrDeviceDisconnected.
func (t *Tracker) Poll() ([]input.Event, error) {
	if t.closed {
		return nil, ErrDeviceDisconnected
	}

	for _, ev := range t.dev.PollEvents() {
		if ev.Kind == RawQuit {
			t.logger.Warn("joystick disconnected", "index", t.index, "name", t.dev.Name(), "detail", ev.Detail)
			t.close()
			return nil, ErrDeviceDisconnected
		}
	}

	var events []input.Event

	for i := 0; i < t.numAxes; i++ {
		v := t.dev.Axis(i)
		if v == t.axes[i] {
			continue
		}
		t.axes[i] = v
		if name, ok := t.binding.AxisName(i); ok {
			t.logger.Debug("axis changed", "index", i, "name", name, "value", v)
			events = append(events, input.AxisChanged{Name: name, Value: v})
		}
	}

	for i := 0; i < t.numButtons; i++ {
		events = t.diffButton(events, i, t.dev.Button(i))
	}

	for h := 0; h < t.numHats; h++ {
		horz, vert := t.dev.Hat(h)
		slots := input.HatButtons(horz, vert)
		for s := input.HatLeft; s <= input.HatUp; s++ {
			events = t.diffButton(events, input.HatButtonIndex(t.numButtons, h, s), slots[s])
		}
	}

	return events, nil
}

func (t *Tracker) diffButton(events []input.Event, i int, pressed bool) []input.Event {
	if pressed == t.buttons[i] {
		return events
	}
	t.buttons[i] = pressed
	if name, ok := t.binding.ButtonName(i); ok {
		t.logger.Debug("button changed", "index", i, "name", name, "state", pressed)
		events = append(events, input.ButtonChanged{Name: name, State: pressed})
	}
	return events
}

// Close releases the device. The tracker is unusable afterwards.
func (t *Tracker) Close() error {
	if t.closed {
		return nil
	}
	return t.close()
}

func (t *Tracker) close() error {
	t.closed = true
	if err := t.dev.Close(); err != nil {
		return fmt.Errorf("close joystick %d: %w", t.index, err)
	}
	return nil
}
