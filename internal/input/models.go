package input

import (
	"fmt"
	"sort"
)

// Semantic names used by the built-in models and the default trigger maps.
const (
	LeftStickHorz  = "left_stick_horz"
	LeftStickVert  = "left_stick_vert"
	RightStickHorz = "right_stick_horz"
	RightStickVert = "right_stick_vert"
	Trigger        = "trigger"
	LeftTrigger    = "left_trigger"
	RightTrigger   = "right_trigger"

	ButtonA         = "A"
	ButtonB         = "B"
	ButtonX         = "X"
	ButtonY         = "Y"
	ButtonLB        = "LB"
	ButtonRB        = "RB"
	ButtonBack      = "back"
	ButtonStart     = "start"
	LeftStickPress  = "left_stick_press"
	RightStickPress = "right_stick_press"

	DpadLeft  = "dpad_left"
	DpadRight = "dpad_right"
	DpadDown  = "dpad_down"
	DpadUp    = "dpad_up"
)

var dpad = HatNames{Left: DpadLeft, Right: DpadRight, Down: DpadDown, Up: DpadUp}

// models holds the built-in bindings, keyed by model name.
var models = map[string]func() Binding{
	// Logitech F710 in XInput mode as SDL reports it: one combined trigger
	// axis (LT and RT swing in opposite directions) and the d-pad as hat 0.
	// The logo button is left unbound.
	"f710": func() Binding {
		return Binding{
			Axes: map[int]string{
				0: LeftStickHorz,
				1: LeftStickVert,
				2: Trigger,
				3: RightStickVert,
				4: RightStickHorz,
			},
			Buttons: map[int]string{
				0: ButtonA,
				1: ButtonB,
				2: ButtonX,
				3: ButtonY,
				4: ButtonLB,
				5: ButtonRB,
				6: ButtonBack,
				7: ButtonStart,
				8: LeftStickPress,
				9: RightStickPress,
			},
			Hats: map[int]HatNames{0: dpad},
		}
	},

	// The same pad through the Linux joystick API (xpad driver). Triggers are
	// separate axes resting at -1 and the d-pad arrives as axes 6/7, folded
	// into hat 0 by backends without a hat API. Button 8 is the logo button.
	"xpad_linux": func() Binding {
		return Binding{
			Axes: map[int]string{
				0: LeftStickHorz,
				1: LeftStickVert,
				2: LeftTrigger,
				3: RightStickHorz,
				4: RightStickVert,
				5: RightTrigger,
			},
			Buttons: map[int]string{
				0:  ButtonA,
				1:  ButtonB,
				2:  ButtonX,
				3:  ButtonY,
				4:  ButtonLB,
				5:  ButtonRB,
				6:  ButtonBack,
				7:  ButtonStart,
				9:  LeftStickPress,
				10: RightStickPress,
			},
			Hats:    map[int]HatNames{0: dpad},
			HatAxes: [][2]int{{6, 7}},
		}
	},
}

// Model returns a fresh copy of the named built-in binding.
func Model(name string) (Binding, error) {
	f, ok := models[name]
	if !ok {
		return Binding{}, fmt.Errorf("unknown controller model %q (known: %v)", name, ModelNames())
	}
	return f(), nil
}

// ModelNames lists the built-in model names in sorted order.
func ModelNames() []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
