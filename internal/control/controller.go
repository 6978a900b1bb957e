package control

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"joydrive/internal/input"
)

// Controller owns the control state of one driving session and routes named
// change events through its trigger maps.
//
// Not safe for concurrent use. The daemon loop is the single writer and
// publishes State snapshots to readers.
type Controller struct {
	params   Params
	triggers TriggerMaps
	logger   *slog.Logger
	rng      *rand.Rand

	state   State
	pending []Command
}

// Option configures a Controller.
type Option func(*Controller)

// WithTriggers replaces the default trigger maps.
func WithTriggers(tm TriggerMaps) Option {
	return func(c *Controller) { c.triggers = tm }
}

// WithRand sets the source of chaos jitter.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rng = r }
}

// New returns a controller in user mode with max throttle at its initial value.
// params must already be validated.
func New(params Params, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		params:   params,
		triggers: DefaultTriggerMaps(),
		logger:   logger,
		state: State{
			Mode:        ModeUser,
			MaxThrottle: params.MaxThrottle,
		},
	}
	for _, o := range opts {
		o(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// Dispatch routes one event to its handler, if any, and returns the commands
// the handler requested. Names without a handler are ignored.
func (c *Controller) Dispatch(ev input.Event) []Command {
	switch e := ev.(type) {
	case input.ButtonChanged:
		table := c.triggers.ButtonUp
		if e.State {
			table = c.triggers.ButtonDown
		}
		if h, ok := table[e.Name]; ok {
			h(c)
		}
	case input.AxisChanged:
		if h, ok := c.triggers.AxisChange[e.Name]; ok {
			h(c, e.Value)
		}
	}

	cmds := c.pending
	c.pending = nil
	return cmds
}

// DispatchAll dispatches events in order and collects every command.
func (c *Controller) DispatchAll(events []input.Event) []Command {
	var cmds []Command
	for _, ev := range events {
		cmds = append(cmds, c.Dispatch(ev)...)
	}
	return cmds
}

// State returns a copy of the current control state.
func (c *Controller) State() State { return c.state }

// Params returns the controller's parameters.
func (c *Controller) Params() Params { return c.params }

// Output is the per-cycle drive output. While chaos is held the steering is
// overridden and the cycle is not recorded; a halted controller outputs zero.
func (c *Controller) Output() Output {
	out := Output{
		Steering:  c.state.Steering,
		Throttle:  c.state.Throttle,
		Mode:      c.state.Mode,
		Recording: c.state.Recording,
	}
	if c.state.Halted {
		out.Steering, out.Throttle = 0, 0
		return out
	}
	if c.state.Chaos != ChaosOff {
		s := float64(c.state.Chaos) * c.params.ChaosSteering
		if j := c.params.ChaosJitter; j > 0 {
			s += (c.rng.Float64()*2 - 1) * j
		}
		out.Steering = clamp(s, -1, 1)
		out.Recording = false
	}
	return out
}

// SafetyStop zeroes steering and throttle and drops assists. The daemon calls
// it when the device disappears; it does not latch the halt state.
func (c *Controller) SafetyStop() {
	c.state.Steering = 0
	c.state.Throttle = 0
	c.state.ConstantThrottle = false
	c.state.Chaos = ChaosOff
	c.onThrottleChanged()
}

func (c *Controller) emit(cmd Command) {
	c.pending = append(c.pending, cmd)
}

// ============================================================================
// Handlers
// ============================================================================

// ToggleMode cycles user -> local_angle -> local -> user.
func (c *Controller) ToggleMode() {
	if c.state.Halted {
		c.logger.Warn("mode change ignored while halted")
		return
	}
	c.state.Mode = c.state.Mode.Next()
	c.logger.Info("mode changed", "mode", c.state.Mode)
	c.emit(CmdModeChanged{Mode: c.state.Mode})
}

// ToggleManualRecording flips recording unless it is derived from throttle.
func (c *Controller) ToggleManualRecording() {
	if c.params.AutoRecordOnThrottle {
		c.logger.Info("recording follows throttle; manual toggle ignored")
		return
	}
	c.state.Recording = !c.state.Recording
	c.logger.Info("recording toggled", "recording", c.state.Recording)
}

// EraseLastRecords requests removal of the last RecordsToErase samples.
func (c *Controller) EraseLastRecords() {
	n := c.params.RecordsToErase
	if n == 0 {
		return
	}
	c.logger.Info("erasing recent records", "count", n)
	c.emit(CmdEraseRecords{Count: n})
}

// EmergencyStop zeroes the drive, returns control to the operator, stops
// recording and every assist, and latches the halt state.
func (c *Controller) EmergencyStop() {
	c.state.Steering = 0
	c.state.Throttle = 0
	c.state.Mode = ModeUser
	c.state.Recording = false
	c.state.ConstantThrottle = false
	c.state.Chaos = ChaosOff
	if c.state.Halted {
		return
	}
	c.state.Halted = true
	c.logger.Warn("emergency stop")
	c.emit(CmdEmergencyStop{})
}

// ToggleConstantThrottle holds throttle at max throttle until toggled off.
func (c *Controller) ToggleConstantThrottle() {
	if c.state.Halted {
		return
	}
	if c.state.ConstantThrottle {
		c.state.ConstantThrottle = false
		c.state.Throttle = 0
	} else {
		c.state.ConstantThrottle = true
		c.state.Throttle = c.state.MaxThrottle
	}
	c.logger.Info("constant throttle toggled", "on", c.state.ConstantThrottle, "throttle", c.state.Throttle)
	c.onThrottleChanged()
}

func (c *Controller) ChaosRightOn() { c.setChaos(ChaosRight) }
func (c *Controller) ChaosLeftOn()  { c.setChaos(ChaosLeft) }
func (c *Controller) ChaosOff()     { c.setChaos(ChaosOff) }

func (c *Controller) setChaos(side Chaos) {
	if c.state.Halted && side != ChaosOff {
		return
	}
	if c.state.Chaos == side {
		return
	}
	c.state.Chaos = side
	c.logger.Debug("chaos", "side", side)
}

// IncreaseMaxThrottle raises max throttle by one step, up to the limit.
func (c *Controller) IncreaseMaxThrottle() { c.adjustMaxThrottle(c.params.MaxThrottleStep) }

// DecreaseMaxThrottle lowers max throttle by one step, down to the minimum.
func (c *Controller) DecreaseMaxThrottle() { c.adjustMaxThrottle(-c.params.MaxThrottleStep) }

func (c *Controller) adjustMaxThrottle(delta float64) {
	next := clamp(round2(c.state.MaxThrottle+delta), c.params.MaxThrottleMin, c.params.MaxThrottleLimit)
	if next == c.state.MaxThrottle {
		return
	}
	c.state.MaxThrottle = next
	c.logger.Info("max throttle", "value", next)
	if c.state.ConstantThrottle && !c.state.Halted {
		c.state.Throttle = next
		c.onThrottleChanged()
	}
}

// Unmapped logs a control that deliberately has no action.
func (c *Controller) Unmapped(name string) {
	c.logger.Info("control unmapped", "name", name)
}

// SetSteering applies the deadzone and steering scale to an axis value.
func (c *Controller) SetSteering(v float64) {
	if c.state.Halted {
		return
	}
	c.state.Steering = clamp(c.params.SteeringScale*c.deadzoned(v), -1, 1)
}

// SetThrottle applies the deadzone, direction and max throttle to an axis value.
func (c *Controller) SetThrottle(v float64) {
	if c.state.Halted {
		return
	}
	c.state.Throttle = clamp(c.params.ThrottleDir*c.deadzoned(v)*c.state.MaxThrottle, -1, 1)
	c.onThrottleChanged()
}

// NormalStop zeroes steering and throttle. Unlike EmergencyStop it does not
// latch; the next stick movement drives again.
func (c *Controller) NormalStop() {
	c.state.Steering = 0
	c.state.Throttle = 0
	c.onThrottleChanged()
}

// NormalStopAxis stops when a trigger axis is pushed past StopThreshold in
// either direction.
func (c *Controller) NormalStopAxis(v float64) {
	if math.Abs(v) > c.params.StopThreshold {
		c.NormalStop()
	}
}

// NormalStopPressed stops when a single-sided trigger (resting at -1) is
// pressed past the middle of its travel.
func (c *Controller) NormalStopPressed(v float64) {
	if v > 0 {
		c.NormalStop()
	}
}

func (c *Controller) deadzoned(v float64) float64 {
	if math.Abs(v) < c.params.Deadzone {
		return 0
	}
	return v
}

func (c *Controller) onThrottleChanged() {
	if !c.params.AutoRecordOnThrottle {
		return
	}
	rec := math.Abs(c.state.Throttle) > c.params.Deadzone && c.state.Mode == ModeUser
	if rec != c.state.Recording {
		c.logger.Debug("recording follows throttle", "recording", rec)
	}
	c.state.Recording = rec
}
