package control

import (
	"errors"
	"fmt"
	"math"
)

// Mode selects who drives: the operator, the autopilot for steering only, or
// the autopilot for both steering and throttle.
type Mode string

const (
	ModeUser       Mode = "user"
	ModeLocalAngle Mode = "local_angle"
	ModeLocal      Mode = "local"
)

// Next returns the mode after m in the cycle user -> local_angle -> local -> user.
func (m Mode) Next() Mode {
	switch m {
	case ModeUser:
		return ModeLocalAngle
	case ModeLocalAngle:
		return ModeLocal
	default:
		return ModeUser
	}
}

// Chaos is the side of an active steering perturbation.
type Chaos int

const (
	ChaosOff   Chaos = 0
	ChaosLeft  Chaos = -1
	ChaosRight Chaos = 1
)

func (c Chaos) String() string {
	switch c {
	case ChaosLeft:
		return "left"
	case ChaosRight:
		return "right"
	default:
		return "off"
	}
}

// State is the control state mutated by trigger handlers. Values are copied
// out as snapshots; nothing outside the controller holds a pointer to it.
type State struct {
	Steering         float64 `json:"steering"`
	Throttle         float64 `json:"throttle"`
	Mode             Mode    `json:"mode"`
	Recording        bool    `json:"recording"`
	MaxThrottle      float64 `json:"max_throttle"`
	ConstantThrottle bool    `json:"constant_throttle"`
	Chaos            Chaos   `json:"chaos"`

	// Halted is set by an emergency stop and never cleared for the
	// lifetime of the controller.
	Halted bool `json:"halted"`
}

// Output is what the vehicle loop consumes each cycle.
type Output struct {
	Steering  float64 `json:"steering"`
	Throttle  float64 `json:"throttle"`
	Mode      Mode    `json:"mode"`
	Recording bool    `json:"recording"`
}

// Params are the validated tuning inputs of a controller.
type Params struct {
	// Deadzone is the magnitude below which stick input is neutral. It also
	// decides whether throttle counts as driving for auto-recording.
	Deadzone float64

	SteeringScale float64
	// ThrottleDir is +1 or -1; most pads report "stick forward" as negative.
	ThrottleDir float64

	// AutoRecordOnThrottle derives recording from throttle and disables the
	// manual recording toggle.
	AutoRecordOnThrottle bool

	MaxThrottle      float64
	MaxThrottleMin   float64
	MaxThrottleLimit float64
	MaxThrottleStep  float64

	RecordsToErase int

	// ChaosSteering is the steering override magnitude while chaos is held;
	// ChaosJitter adds a uniform random offset in [-jitter, jitter].
	ChaosSteering float64
	ChaosJitter   float64

	// StopThreshold is the trigger-axis magnitude that requests a normal stop.
	StopThreshold float64
}

// DefaultParams returns the F710 defaults.
func DefaultParams() Params {
	return Params{
		Deadzone:             0.01,
		SteeringScale:        1.0,
		ThrottleDir:          -1.0,
		AutoRecordOnThrottle: true,
		MaxThrottle:          1.0,
		MaxThrottleMin:       0.0,
		MaxThrottleLimit:     1.0,
		MaxThrottleStep:      0.01,
		RecordsToErase:       100,
		ChaosSteering:        0.2,
		ChaosJitter:          0.0,
		StopThreshold:        0.5,
	}
}

// Validate checks parameter invariants.
func (p Params) Validate() error {
	if p.Deadzone < 0 || p.Deadzone >= 1 {
		return errors.New("deadzone must be in [0, 1)")
	}
	if p.SteeringScale <= 0 {
		return errors.New("steering_scale must be > 0")
	}
	if p.ThrottleDir != 1 && p.ThrottleDir != -1 {
		return errors.New("throttle_dir must be 1 or -1")
	}
	if p.MaxThrottleMin < 0 || p.MaxThrottleLimit > 1 || p.MaxThrottleMin > p.MaxThrottleLimit {
		return errors.New("max_throttle bounds must satisfy 0 <= min <= max <= 1")
	}
	if p.MaxThrottle < p.MaxThrottleMin || p.MaxThrottle > p.MaxThrottleLimit {
		return fmt.Errorf("max_throttle %.2f outside [%.2f, %.2f]", p.MaxThrottle, p.MaxThrottleMin, p.MaxThrottleLimit)
	}
	// Adjusted values are rounded to hundredths.
	if p.MaxThrottleStep < 0.01 {
		return errors.New("max_throttle_step must be >= 0.01")
	}
	if p.RecordsToErase < 0 {
		return errors.New("records_to_erase must be >= 0")
	}
	if p.ChaosSteering < 0 || p.ChaosSteering > 1 {
		return errors.New("chaos_steering must be in [0, 1]")
	}
	if p.ChaosJitter < 0 || p.ChaosJitter > 1 {
		return errors.New("chaos_jitter must be in [0, 1]")
	}
	if p.StopThreshold <= 0 || p.StopThreshold >= 1 {
		return errors.New("stop_threshold must be in (0, 1)")
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
