package control

import (
	"fmt"
	"sort"

	"joydrive/internal/input"
)

// ButtonHandler runs on a button edge.
type ButtonHandler func(*Controller)

// AxisHandler runs on an axis change with the new value.
type AxisHandler func(*Controller, float64)

// TriggerMaps routes semantic names to handlers, one table per event class.
// Built once before the controller starts; never modified afterwards.
type TriggerMaps struct {
	ButtonDown map[string]ButtonHandler
	ButtonUp   map[string]ButtonHandler
	AxisChange map[string]AxisHandler
}

// ButtonActions are the handlers a trigger table may bind to a button edge,
// keyed by the action name used in configuration.
var ButtonActions = map[string]ButtonHandler{
	"toggle_mode":              (*Controller).ToggleMode,
	"toggle_manual_recording":  (*Controller).ToggleManualRecording,
	"erase_last_records":       (*Controller).EraseLastRecords,
	"emergency_stop":           (*Controller).EmergencyStop,
	"toggle_constant_throttle": (*Controller).ToggleConstantThrottle,
	"chaos_right":              (*Controller).ChaosRightOn,
	"chaos_left":               (*Controller).ChaosLeftOn,
	"chaos_off":                (*Controller).ChaosOff,
	"increase_max_throttle":    (*Controller).IncreaseMaxThrottle,
	"decrease_max_throttle":    (*Controller).DecreaseMaxThrottle,
	"normal_stop":              (*Controller).NormalStop,
}

// AxisActions are the handlers a trigger table may bind to an axis.
var AxisActions = map[string]AxisHandler{
	"set_steering":        (*Controller).SetSteering,
	"set_throttle":        (*Controller).SetThrottle,
	"normal_stop_axis":    (*Controller).NormalStopAxis,
	"normal_stop_pressed": (*Controller).NormalStopPressed,
}

// unmappedAction is the configuration name of the log-only button action.
const unmappedAction = "unmapped"

func unmapped(name string) ButtonHandler {
	return func(c *Controller) { c.Unmapped(name) }
}

// DefaultTriggerConfig is the F710 layout.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		ButtonDown: map[string]string{
			input.ButtonStart:     "toggle_mode",
			input.ButtonB:         "toggle_manual_recording",
			input.ButtonY:         "erase_last_records",
			input.ButtonA:         "emergency_stop",
			input.ButtonBack:      "toggle_constant_throttle",
			input.ButtonRB:        "chaos_right",
			input.ButtonLB:        "chaos_left",
			input.DpadUp:          "increase_max_throttle",
			input.DpadDown:        "decrease_max_throttle",
			input.DpadLeft:        unmappedAction,
			input.DpadRight:       unmappedAction,
			input.LeftStickPress:  "normal_stop",
			input.RightStickPress: "normal_stop",
		},
		ButtonUp: map[string]string{
			input.ButtonRB: "chaos_off",
			input.ButtonLB: "chaos_off",
		},
		AxisChange: map[string]string{
			input.LeftStickHorz:  "set_steering",
			input.RightStickVert: "set_throttle",
			input.Trigger:        "normal_stop_axis",
			input.LeftTrigger:    "normal_stop_pressed",
			input.RightTrigger:   "normal_stop_pressed",
		},
	}
}

// DefaultTriggerMaps builds DefaultTriggerConfig.
func DefaultTriggerMaps() TriggerMaps {
	tm, err := DefaultTriggerConfig().Build()
	if err != nil {
		panic(fmt.Sprintf("default trigger config: %v", err))
	}
	return tm
}

// TriggerConfig is the data form of TriggerMaps: semantic name -> action name.
type TriggerConfig struct {
	ButtonDown map[string]string `yaml:"button_down"`
	ButtonUp   map[string]string `yaml:"button_up"`
	AxisChange map[string]string `yaml:"axis_change"`
}

// Build resolves action names into handlers.
func (tc TriggerConfig) Build() (TriggerMaps, error) {
	down, err := buildButtons("button_down", tc.ButtonDown)
	if err != nil {
		return TriggerMaps{}, err
	}
	up, err := buildButtons("button_up", tc.ButtonUp)
	if err != nil {
		return TriggerMaps{}, err
	}

	axis := make(map[string]AxisHandler, len(tc.AxisChange))
	for name, action := range tc.AxisChange {
		h, ok := AxisActions[action]
		if !ok {
			return TriggerMaps{}, fmt.Errorf("axis_change[%q]: unknown action %q (known: %v)", name, action, sortedKeys(AxisActions))
		}
		axis[name] = h
	}

	return TriggerMaps{ButtonDown: down, ButtonUp: up, AxisChange: axis}, nil
}

func buildButtons(table string, m map[string]string) (map[string]ButtonHandler, error) {
	out := make(map[string]ButtonHandler, len(m))
	for name, action := range m {
		if action == unmappedAction {
			out[name] = unmapped(name)
			continue
		}
		h, ok := ButtonActions[action]
		if !ok {
			return nil, fmt.Errorf("%s[%q]: unknown action %q (known: %v)", table, name, action, sortedKeys(ButtonActions))
		}
		out[name] = h
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
