package input

import (
	"fmt"
	"sort"
)

// HatSlot is the position of a synthesized button within its hat's group of four.
type HatSlot int

const (
	HatLeft HatSlot = iota
	HatRight
	HatDown
	HatUp
)

// SlotsPerHat is the number of buttons each hat expands into.
const SlotsPerHat = 4

func (s HatSlot) String() string {
	switch s {
	case HatLeft:
		return "left"
	case HatRight:
		return "right"
	case HatDown:
		return "down"
	case HatUp:
		return "up"
	default:
		return fmt.Sprintf("HatSlot(%d)", int(s))
	}
}

// HatButtonIndex returns the button index of a synthesized hat slot.
// Synthesized buttons follow the physical ones: numButtons + 4*hat + slot.
func HatButtonIndex(numButtons, hat int, slot HatSlot) int {
	return numButtons + SlotsPerHat*hat + int(slot)
}

// HatButtons expands a (horz, vert) hat reading into its four slot states,
// indexed by HatSlot. A positive vertical value means "up".
func HatButtons(horz, vert int) [SlotsPerHat]bool {
	var out [SlotsPerHat]bool
	out[HatLeft] = horz == -1
	out[HatRight] = horz == 1
	out[HatDown] = vert == -1
	out[HatUp] = vert == 1
	return out
}

// HatNames names the four synthesized buttons of one hat. Empty names are unbound.
type HatNames struct {
	Left  string `yaml:"left,omitempty"`
	Right string `yaml:"right,omitempty"`
	Down  string `yaml:"down,omitempty"`
	Up    string `yaml:"up,omitempty"`
}

func (h HatNames) slot(s HatSlot) string {
	switch s {
	case HatLeft:
		return h.Left
	case HatRight:
		return h.Right
	case HatDown:
		return h.Down
	case HatUp:
		return h.Up
	}
	return ""
}

// Binding maps raw controller indices to semantic names for one controller
// model. Indices without an entry are unbound and never produce events.
//
// Buttons may name synthesized hat indices directly; Hats names them per
// hat and slot so the binding does not depend on the device's physical
// button count.
type Binding struct {
	Axes    map[int]string   `yaml:"axes"`
	Buttons map[int]string   `yaml:"buttons"`
	Hats    map[int]HatNames `yaml:"hats,omitempty"`

	// HatAxes are the (horizontal, vertical) axis pairs this layout expects
	// a hat-less backend to fold into hats 0, 1, ...
	HatAxes [][2]int `yaml:"hat_axes,omitempty"`
}

// Resolved is a Binding laid out against a concrete device's button and hat
// counts. It is what the tracker consults on every poll.
type Resolved struct {
	axes    map[int]string
	buttons map[int]string
}

// AxisName returns the name bound to axis i.
func (r Resolved) AxisName(i int) (string, bool) {
	n, ok := r.axes[i]
	return n, ok
}

// ButtonName returns the name bound to button i, including synthesized hat slots.
func (r Resolved) ButtonName(i int) (string, bool) {
	n, ok := r.buttons[i]
	return n, ok
}

// Resolve lays the binding out for a device with numButtons physical buttons
// and numHats hats. Names must be unique within the axis namespace and within
// the button namespace; a hat slot may not claim an index that Buttons
// already binds to a different name.
func (b Binding) Resolve(numButtons, numHats int) (Resolved, error) {
	r := Resolved{
		axes:    make(map[int]string, len(b.Axes)),
		buttons: make(map[int]string, len(b.Buttons)+SlotsPerHat*len(b.Hats)),
	}

	for i, name := range b.Axes {
		if i < 0 {
			return Resolved{}, fmt.Errorf("axis index %d is negative", i)
		}
		if name == "" {
			continue
		}
		r.axes[i] = name
	}
	for i, name := range b.Buttons {
		if i < 0 {
			return Resolved{}, fmt.Errorf("button index %d is negative", i)
		}
		if name == "" {
			continue
		}
		r.buttons[i] = name
	}

	for hat, names := range b.Hats {
		if hat < 0 {
			return Resolved{}, fmt.Errorf("hat index %d is negative", hat)
		}
		if hat >= numHats {
			continue
		}
		for slot := HatLeft; slot <= HatUp; slot++ {
			name := names.slot(slot)
			if name == "" {
				continue
			}
			idx := HatButtonIndex(numButtons, hat, slot)
			if prev, ok := r.buttons[idx]; ok && prev != name {
				return Resolved{}, fmt.Errorf("hat %d %s (button %d) is %q but buttons binds it to %q", hat, slot, idx, name, prev)
			}
			r.buttons[idx] = name
		}
	}

	if err := uniqueNames("axis", r.axes); err != nil {
		return Resolved{}, err
	}
	if err := uniqueNames("button", r.buttons); err != nil {
		return Resolved{}, err
	}
	return r, nil
}

// Validate checks the binding without a device, assuming no physical buttons
// beyond those it names.
func (b Binding) Validate() error {
	for i, p := range b.HatAxes {
		if p[0] < 0 || p[1] < 0 || p[0] == p[1] {
			return fmt.Errorf("hat_axes[%d] must be two distinct non-negative axis indices", i)
		}
	}
	maxButton := -1
	for i := range b.Buttons {
		if i > maxButton {
			maxButton = i
		}
	}
	maxHat := -1
	for h := range b.Hats {
		if h > maxHat {
			maxHat = h
		}
	}
	_, err := b.Resolve(maxButton+1, maxHat+1)
	return err
}

func uniqueNames(kind string, m map[int]string) error {
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	seen := make(map[string]int, len(m))
	for _, i := range idx {
		name := m[i]
		if first, dup := seen[name]; dup {
			return fmt.Errorf("%s name %q bound to both %d and %d", kind, name, first, i)
		}
		seen[name] = i
	}
	return nil
}
