package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/rs/xid"

	"joydrive/internal/control"
	"joydrive/internal/input"
	"joydrive/internal/tracker"
)

// ============================================================================
// Daemon loop
// ============================================================================
//
// One goroutine owns the tracker and the controller. Each tick it polls the
// device, dispatches the resulting named events, runs the emitted commands
// and publishes a snapshot. Events injected over IPC are dispatched between
// ticks through the same path.
//
// When the device goes away the controller gets a safety stop. With a
// reconnect interval the loop keeps running and retries the open; without
// one the disconnect ends the daemon.
//
// ============================================================================

const defaultRateHz = 20

type daemonConfig struct {
	DeviceIndex       int
	Binding           input.Binding
	RateHz            int
	ReconnectInterval time.Duration
}

type daemon struct {
	cfg        daemonConfig
	src        tracker.Source
	ctrl       *control.Controller
	store      *snapshotStore
	broadcasts chan<- StateBroadcast
	metrics    *metrics
	logger     *slog.Logger

	tr          *tracker.Tracker
	session     string
	device      string
	latest      input.Latest
	nextAttempt time.Time

	published     bool
	lastState     control.State
	lastLatest    input.Latest
	lastConnected bool
}

func newDaemon(
	cfg daemonConfig,
	src tracker.Source,
	ctrl *control.Controller,
	store *snapshotStore,
	broadcasts chan<- StateBroadcast,
	m *metrics,
	logger *slog.Logger,
) *daemon {
	if cfg.RateHz <= 0 {
		cfg.RateHz = defaultRateHz
	}
	if m == nil {
		m = newMetrics()
	}
	return &daemon{
		cfg:        cfg,
		src:        src,
		ctrl:       ctrl,
		store:      store,
		broadcasts: broadcasts,
		metrics:    m,
		logger:     logger,
	}
}

// runSession pins the calling goroutine to its OS thread, opens the configured
// backend and runs the daemon loop on it. SDL needs every call on one thread.
func runSession(
	ctx context.Context,
	cfg Config,
	ctrl *control.Controller,
	store *snapshotStore,
	broadcasts chan<- StateBroadcast,
	injected <-chan input.Event,
	m *metrics,
	logger *slog.Logger,
) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	binding, err := cfg.Binding()
	if err != nil {
		return err
	}

	src, release, err := openBackend(cfg.BackendInput())
	if err != nil {
		return err
	}
	defer release()

	d := newDaemon(daemonConfig{
		DeviceIndex:       cfg.Input.DeviceIndex,
		Binding:           binding,
		RateHz:            cfg.Loop.RateHz,
		ReconnectInterval: cfg.ReconnectInterval(),
	}, src, ctrl, store, broadcasts, m, logger)

	return d.run(ctx, injected)
}

// run opens the device and loops until ctx is canceled or the device is lost
// for good. The initial open is not retried.
func (d *daemon) run(ctx context.Context, injected <-chan input.Event) error {
	if err := d.connect(); err != nil {
		return err
	}
	defer d.closeSession()

	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.RateHz))
	defer ticker.Stop()

	d.publish(time.Now())

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping (context canceled)")
			return nil

		case ev, ok := <-injected:
			if !ok {
				injected = nil
				continue
			}
			d.inject(ev)
			d.publish(time.Now())

		case now := <-ticker.C:
			if err := d.tick(now); err != nil {
				// Consumers must see the safety-stopped, disconnected state.
				d.publish(now)
				return err
			}
			d.publish(now)
		}
	}
}

// tick is one poll cycle, or one reconnect attempt while disconnected.
func (d *daemon) tick(now time.Time) error {
	if d.tr == nil {
		if d.cfg.ReconnectInterval > 0 && !now.Before(d.nextAttempt) {
			d.nextAttempt = now.Add(d.cfg.ReconnectInterval)
			if err := d.connect(); err != nil {
				d.logger.Debug("reconnect attempt failed", "index", d.cfg.DeviceIndex, "error", err)
				return nil
			}
			d.metrics.reconnects.Inc()
		}
		return nil
	}

	start := time.Now()
	events, err := d.tr.Poll()
	d.metrics.pollSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, tracker.ErrDeviceDisconnected) {
			return fmt.Errorf("poll joystick: %w", err)
		}
		d.onDisconnect(err)
		if d.cfg.ReconnectInterval <= 0 {
			return fmt.Errorf("joystick %d: %w", d.cfg.DeviceIndex, err)
		}
		d.nextAttempt = now.Add(d.cfg.ReconnectInterval)
		return nil
	}

	d.dispatch(events, "device")
	return nil
}

// inject dispatches an event that arrived over IPC. Injected input is
// dropped while no session is open.
func (d *daemon) inject(ev input.Event) {
	if d.tr == nil {
		d.logger.Debug("dropping injected event (no device)", "event", fmt.Sprintf("%+v", ev))
		return
	}
	d.dispatch([]input.Event{ev}, "ipc")
}

func (d *daemon) dispatch(events []input.Event, source string) {
	if len(events) == 0 {
		return
	}
	d.latest = input.LatestOf(d.latest, events)
	d.metrics.observeEvents(events, source)

	for _, cmd := range d.ctrl.DispatchAll(events) {
		d.metrics.commands.WithLabelValues(commandLabel(cmd)).Inc()
		if err := runEffect(cmd, d.logger, d.emit); err != nil {
			d.logger.Error("command failed", "command", cmd.String(), "error", err)
		}
	}
}

func (d *daemon) connect() error {
	id := xid.New().String()
	tr, err := tracker.Open(d.src, d.cfg.DeviceIndex, d.cfg.Binding, d.logger.With("session", id))
	if err != nil {
		return err
	}

	d.tr = tr
	d.session = id
	d.device = tr.Name()
	d.latest = input.Latest{}

	axes, buttons, hats := tr.Counts()
	d.logger.Info("joystick session started",
		"session", id,
		"device", d.device,
		"index", tr.Index(),
		"axes", axes,
		"buttons", buttons,
		"hats", hats)

	d.metrics.setConnected(true)
	d.emit(BroadcastDeviceConnected{
		Session: id,
		Device:  d.device,
		Index:   tr.Index(),
		Axes:    axes,
		Buttons: buttons,
		Hats:    hats,
		At:      time.Now().UTC(),
	})
	return nil
}

func (d *daemon) onDisconnect(err error) {
	d.ctrl.SafetyStop()
	d.metrics.disconnects.Inc()
	d.metrics.setConnected(false)

	d.logger.Warn("joystick disconnected; steering and throttle zeroed",
		"session", d.session,
		"device", d.device,
		"error", err)

	d.emit(BroadcastDeviceDisconnected{
		Session: d.session,
		Device:  d.device,
		Reason:  err.Error(),
		At:      time.Now().UTC(),
	})

	d.tr = nil
	d.session = ""
	d.device = ""
}

func (d *daemon) closeSession() {
	if d.tr == nil {
		return
	}
	if err := d.tr.Close(); err != nil {
		d.logger.Warn("close joystick", "session", d.session, "error", err)
	}
	d.tr = nil
	d.metrics.setConnected(false)
}

// publish stores the current snapshot and broadcasts it when anything other
// than the per-cycle output changed.
func (d *daemon) publish(now time.Time) {
	snap := Snapshot{
		Session:   d.session,
		Device:    d.device,
		Connected: d.tr != nil,
		State:     d.ctrl.State(),
		Output:    d.ctrl.Output(),
		Latest:    d.latest,
		At:        now.UTC(),
	}
	if d.store != nil {
		d.store.Store(snap)
	}
	d.metrics.observeState(snap.State)

	changed := !d.published ||
		snap.State != d.lastState ||
		snap.Latest != d.lastLatest ||
		snap.Connected != d.lastConnected
	if changed {
		d.emit(BroadcastControlState{Snapshot: snap})
	}

	d.published = true
	d.lastState = snap.State
	d.lastLatest = snap.Latest
	d.lastConnected = snap.Connected
}

// emit never blocks the loop; a full queue drops the broadcast.
func (d *daemon) emit(b StateBroadcast) {
	if d.broadcasts == nil {
		return
	}
	select {
	case d.broadcasts <- b:
	default:
		d.logger.Warn("broadcast queue full, dropping", "broadcast", b.String())
	}
}

func commandLabel(cmd control.Command) string {
	switch cmd.(type) {
	case control.CmdEraseRecords:
		return "erase_records"
	case control.CmdEmergencyStop:
		return "emergency_stop"
	case control.CmdModeChanged:
		return "mode_changed"
	default:
		return "unknown"
	}
}
