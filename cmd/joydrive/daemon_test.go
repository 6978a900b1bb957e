// Command tests assert with the standard testing package; the internal
// packages use testify.
package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"joydrive/internal/control"
	"joydrive/internal/input"
	"joydrive/internal/source/virtual"
	"joydrive/internal/tracker"
)

// f710 layout as SDL reports it: 5 axes, 10 buttons, 1 hat.
func newF710Pad() *virtual.Pad {
	return virtual.NewPad("Logitech Gamepad F710", 5, 10, 1)
}

func newTestDaemon(t *testing.T, src tracker.Source, reconnect time.Duration) (*daemon, chan StateBroadcast, *snapshotStore) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	binding, err := input.Model("f710")
	if err != nil {
		t.Fatalf("model: %v", err)
	}

	store := &snapshotStore{}
	bc := make(chan StateBroadcast, 64)
	d := newDaemon(daemonConfig{
		Binding:           binding,
		RateHz:            20,
		ReconnectInterval: reconnect,
	}, src, control.New(control.DefaultParams(), logger), store, bc, newMetrics(), logger)
	return d, bc, store
}

func connectTestDaemon(t *testing.T, d *daemon) {
	t.Helper()
	if err := d.connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func drain(ch chan StateBroadcast) []StateBroadcast {
	var out []StateBroadcast
	for {
		select {
		case b := <-ch:
			out = append(out, b)
		default:
			return out
		}
	}
}

func findBroadcast[T StateBroadcast](bs []StateBroadcast) (T, bool) {
	for _, b := range bs {
		if v, ok := b.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestDaemon_ConnectBroadcastsSession(t *testing.T) {
	d, bc, _ := newTestDaemon(t, virtual.New(newF710Pad()), 0)
	connectTestDaemon(t, d)

	got, ok := findBroadcast[BroadcastDeviceConnected](drain(bc))
	if !ok {
		t.Fatalf("no device_connected broadcast")
	}
	if got.Device != "Logitech Gamepad F710" || got.Axes != 5 || got.Buttons != 10 || got.Hats != 1 {
		t.Fatalf("connected = %+v", got)
	}
	if got.Session == "" || got.Session != d.session {
		t.Fatalf("session = %q, daemon session = %q", got.Session, d.session)
	}
}

func TestDaemon_ThrottleStickDrivesAndRecords(t *testing.T) {
	pad := newF710Pad()
	d, _, store := newTestDaemon(t, virtual.New(pad), 0)
	connectTestDaemon(t, d)

	now := time.Now()
	pad.SetAxis(3, -0.5) // right_stick_vert, pushed forward
	if err := d.tick(now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	d.publish(now)

	snap, ok := store.Load()
	if !ok {
		t.Fatalf("no snapshot published")
	}
	if snap.State.Throttle != 0.5 {
		t.Fatalf("throttle = %v, want 0.5", snap.State.Throttle)
	}
	if !snap.State.Recording {
		t.Fatalf("expected auto recording while throttle applied in user mode")
	}
	if snap.Latest.Axis != input.RightStickVert || snap.Latest.AxisValue != -0.5 {
		t.Fatalf("latest = %+v", snap.Latest)
	}
	if !snap.Connected || snap.Device != "Logitech Gamepad F710" {
		t.Fatalf("snapshot session fields = %+v", snap)
	}
}

func TestDaemon_ButtonCommandsBecomeBroadcasts(t *testing.T) {
	pad := newF710Pad()
	d, bc, store := newTestDaemon(t, virtual.New(pad), 0)
	connectTestDaemon(t, d)
	drain(bc)

	now := time.Now()

	pad.SetButton(7, true) // start
	if err := d.tick(now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	mc, ok := findBroadcast[BroadcastModeChanged](drain(bc))
	if !ok || mc.Mode != control.ModeLocalAngle {
		t.Fatalf("mode broadcast = %+v (found %t)", mc, ok)
	}

	pad.SetButton(3, true) // Y
	if err := d.tick(now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	er, ok := findBroadcast[BroadcastEraseRecords](drain(bc))
	if !ok || er.Count != 100 {
		t.Fatalf("erase broadcast = %+v (found %t)", er, ok)
	}

	pad.SetButton(0, true) // A
	if err := d.tick(now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, ok := findBroadcast[BroadcastEmergencyStop](drain(bc)); !ok {
		t.Fatalf("no emergency_stop broadcast")
	}

	d.publish(now)
	snap, _ := store.Load()
	if !snap.State.Halted || snap.State.Mode != control.ModeUser {
		t.Fatalf("state after emergency stop = %+v", snap.State)
	}
}

func TestDaemon_DpadRaisesMaxThrottle(t *testing.T) {
	pad := newF710Pad()
	d, _, _ := newTestDaemon(t, virtual.New(pad), 0)
	d.ctrl = control.New(control.Params{
		Deadzone:             0.01,
		SteeringScale:        1,
		ThrottleDir:          -1,
		AutoRecordOnThrottle: true,
		MaxThrottle:          0.5,
		MaxThrottleMin:       0,
		MaxThrottleLimit:     1,
		MaxThrottleStep:      0.01,
		RecordsToErase:       100,
		ChaosSteering:        0.2,
		StopThreshold:        0.5,
	}, slog.New(slog.DiscardHandler))
	connectTestDaemon(t, d)

	pad.SetHat(0, 0, 1) // up
	if err := d.tick(time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := d.ctrl.State().MaxThrottle; got != 0.51 {
		t.Fatalf("max throttle = %v, want 0.51", got)
	}
	if d.latest.Button != input.DpadUp || !d.latest.ButtonState {
		t.Fatalf("latest = %+v", d.latest)
	}
}

func TestDaemon_DisconnectWithoutReconnectEnds(t *testing.T) {
	pad := newF710Pad()
	d, bc, _ := newTestDaemon(t, virtual.New(pad), 0)
	connectTestDaemon(t, d)

	now := time.Now()
	pad.SetAxis(0, 0.8)
	pad.SetAxis(3, -1)
	if err := d.tick(now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	drain(bc)

	pad.Unplug()
	err := d.tick(now)
	if !errors.Is(err, tracker.ErrDeviceDisconnected) {
		t.Fatalf("tick error = %v, want ErrDeviceDisconnected", err)
	}
	if !pad.Closed() {
		t.Fatalf("pad not closed after disconnect")
	}

	st := d.ctrl.State()
	if st.Steering != 0 || st.Throttle != 0 || st.Recording {
		t.Fatalf("state after disconnect = %+v", st)
	}

	dc, ok := findBroadcast[BroadcastDeviceDisconnected](drain(bc))
	if !ok || dc.Device != "Logitech Gamepad F710" {
		t.Fatalf("disconnect broadcast = %+v (found %t)", dc, ok)
	}
}

func TestDaemon_RunPublishesStopOnFinalDisconnect(t *testing.T) {
	pad := newF710Pad()
	d, bc, store := newTestDaemon(t, virtual.New(pad), 0)

	done := make(chan error, 1)
	go func() { done <- d.run(context.Background(), nil) }()

	pad.SetAxis(3, -1)
	waitUntil(t, time.Second, func() bool {
		snap, ok := store.Load()
		return ok && snap.Connected && snap.State.Throttle != 0
	}, "throttle never published")

	pad.Unplug()
	var err error
	select {
	case err = <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not return after disconnect")
	}
	if !errors.Is(err, tracker.ErrDeviceDisconnected) {
		t.Fatalf("run error = %v, want ErrDeviceDisconnected", err)
	}

	snap, ok := store.Load()
	if !ok {
		t.Fatalf("no snapshot stored")
	}
	if snap.Connected || snap.Session != "" {
		t.Fatalf("snapshot still connected: %+v", snap)
	}
	if snap.State.Throttle != 0 || snap.Output.Throttle != 0 || snap.Output.Steering != 0 {
		t.Fatalf("snapshot still driving: %+v", snap)
	}

	var last BroadcastControlState
	found := false
	for _, b := range drain(bc) {
		if cs, ok := b.(BroadcastControlState); ok {
			last, found = cs, true
		}
	}
	if !found || last.Snapshot.Connected || last.Snapshot.State.Throttle != 0 {
		t.Fatalf("last control_state = %+v (found %t)", last, found)
	}
}

func TestDaemon_ReconnectAfterInterval(t *testing.T) {
	pad := newF710Pad()
	d, _, _ := newTestDaemon(t, virtual.New(pad), time.Second)
	connectTestDaemon(t, d)
	first := d.session

	now := time.Now()
	pad.Unplug()
	if err := d.tick(now); err != nil {
		t.Fatalf("tick with reconnect enabled: %v", err)
	}
	if d.tr != nil {
		t.Fatalf("tracker should be dropped after disconnect")
	}

	if err := d.tick(now.Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if pad.Opens() != 1 {
		t.Fatalf("reopened before the interval elapsed (opens=%d)", pad.Opens())
	}

	if err := d.tick(now.Add(time.Second)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if pad.Opens() != 2 || d.tr == nil {
		t.Fatalf("expected reconnect (opens=%d)", pad.Opens())
	}
	if d.session == "" || d.session == first {
		t.Fatalf("reconnect reused session %q", d.session)
	}
}

func TestDaemon_ReconnectWaitsForDevice(t *testing.T) {
	pad := newF710Pad()
	src := virtual.New(pad)
	d, _, _ := newTestDaemon(t, src, time.Second)
	connectTestDaemon(t, d)

	now := time.Now()
	pad.Unplug()
	src.Detach()
	if err := d.tick(now); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Nothing attached: the attempt fails quietly.
	if err := d.tick(now.Add(time.Second)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if d.tr != nil {
		t.Fatalf("connected with no device attached")
	}

	src.Attach(pad)
	if err := d.tick(now.Add(2 * time.Second)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if d.tr == nil {
		t.Fatalf("expected reconnect once the device is back")
	}
}

func TestDaemon_InjectedEvents(t *testing.T) {
	pad := newF710Pad()
	d, bc, _ := newTestDaemon(t, virtual.New(pad), time.Second)
	connectTestDaemon(t, d)
	drain(bc)

	d.inject(input.ButtonChanged{Name: input.ButtonStart, State: true})
	if got := d.ctrl.State().Mode; got != control.ModeLocalAngle {
		t.Fatalf("mode = %v, want local_angle", got)
	}
	if d.latest.Button != input.ButtonStart {
		t.Fatalf("latest = %+v", d.latest)
	}

	// Dropped while no device is open.
	pad.Unplug()
	if err := d.tick(time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	d.inject(input.AxisChanged{Name: input.RightStickVert, Value: -1})
	if got := d.ctrl.State().Throttle; got != 0 {
		t.Fatalf("injected throttle applied while disconnected: %v", got)
	}
}

func TestDaemon_PublishBroadcastsOnlyOnChange(t *testing.T) {
	pad := newF710Pad()
	d, bc, _ := newTestDaemon(t, virtual.New(pad), 0)
	connectTestDaemon(t, d)
	drain(bc)

	now := time.Now()
	d.publish(now)
	d.publish(now.Add(50 * time.Millisecond))

	n := 0
	for _, b := range drain(bc) {
		if _, ok := b.(BroadcastControlState); ok {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("control state broadcasts = %d, want 1", n)
	}

	pad.SetAxis(0, 0.25)
	if err := d.tick(now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	d.publish(now)
	if _, ok := findBroadcast[BroadcastControlState](drain(bc)); !ok {
		t.Fatalf("no broadcast after steering change")
	}
}

func TestDaemon_EmitDropsWhenQueueFull(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	bc := make(chan StateBroadcast, 1)
	d := newDaemon(daemonConfig{}, virtual.New(), control.New(control.DefaultParams(), logger), nil, bc, nil, logger)

	d.emit(BroadcastEmergencyStop{})
	d.emit(BroadcastEmergencyStop{}) // must not block

	if len(bc) != 1 {
		t.Fatalf("queued = %d, want 1", len(bc))
	}
}

func TestDaemon_RunFailsWithoutDevice(t *testing.T) {
	d, _, _ := newTestDaemon(t, virtual.New(), 0)
	err := d.run(context.Background(), nil)
	if !errors.Is(err, tracker.ErrDeviceNotFound) {
		t.Fatalf("run error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDaemon_RunStopsOnCancel(t *testing.T) {
	pad := newF710Pad()
	d, _, store := newTestDaemon(t, virtual.New(pad), 0)

	ctx, cancel := context.WithCancel(context.Background())
	injected := make(chan input.Event, 1)
	done := make(chan error, 1)
	go func() { done <- d.run(ctx, injected) }()

	injected <- input.ButtonChanged{Name: input.ButtonStart, State: true}
	waitUntil(t, time.Second, func() bool {
		snap, ok := store.Load()
		return ok && snap.State.Mode == control.ModeLocalAngle
	}, "injected event not applied")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
	if !pad.Closed() {
		t.Fatalf("pad left open after shutdown")
	}
}

func TestRunEffect(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	var got []StateBroadcast
	emit := func(b StateBroadcast) { got = append(got, b) }

	cmds := []control.Command{
		control.CmdEraseRecords{Count: 7},
		control.CmdEmergencyStop{},
		control.CmdModeChanged{Mode: control.ModeLocal},
	}
	for _, c := range cmds {
		if err := runEffect(c, logger, emit); err != nil {
			t.Fatalf("runEffect(%s): %v", c, err)
		}
	}

	if len(got) != 3 {
		t.Fatalf("broadcasts = %d, want 3", len(got))
	}
	if b, ok := got[0].(BroadcastEraseRecords); !ok || b.Count != 7 {
		t.Fatalf("first broadcast = %#v", got[0])
	}
	if _, ok := got[1].(BroadcastEmergencyStop); !ok {
		t.Fatalf("second broadcast = %#v", got[1])
	}
	if b, ok := got[2].(BroadcastModeChanged); !ok || b.Mode != control.ModeLocal {
		t.Fatalf("third broadcast = %#v", got[2])
	}

	if commandLabel(cmds[0]) != "erase_records" || commandLabel(cmds[2]) != "mode_changed" {
		t.Fatalf("unexpected command labels")
	}
}
