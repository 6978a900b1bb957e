package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"joydrive/internal/control"
	"joydrive/internal/input"
)

// Snapshot is the externally visible daemon state. The daemon loop builds a
// fresh value every cycle; readers (IPC, websocket) only ever see copies.
type Snapshot struct {
	Session   string         `json:"session,omitempty"`
	Device    string         `json:"device,omitempty"`
	Connected bool           `json:"connected"`
	State     control.State  `json:"state"`
	Output    control.Output `json:"output"`
	Latest    input.Latest   `json:"latest"`
	At        time.Time      `json:"at"`
}

// snapshotStore publishes the latest Snapshot to other goroutines.
type snapshotStore struct {
	p atomic.Pointer[Snapshot]
}

func (s *snapshotStore) Store(snap Snapshot) {
	s.p.Store(&snap)
}

// Load returns the latest snapshot and false if none was published yet.
func (s *snapshotStore) Load() (Snapshot, bool) {
	p := s.p.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return *p, true
}

// ============================================================================
// Broadcasts
// ============================================================================
//
// StateBroadcast values are emitted by the daemon loop and fanned out to
// websocket clients by RunBroadcaster.

type StateBroadcast interface {
	broadcastMarker()
	String() string
}

// BroadcastControlState carries the snapshot after the control state or the
// latest input changed.
type BroadcastControlState struct {
	Snapshot Snapshot
}

func (BroadcastControlState) broadcastMarker() {}
func (b BroadcastControlState) String() string {
	return fmt.Sprintf("BroadcastControlState(mode=%s, halted=%t)", b.Snapshot.State.Mode, b.Snapshot.State.Halted)
}

type BroadcastDeviceConnected struct {
	Session string
	Device  string
	Index   int
	Axes    int
	Buttons int
	Hats    int
	At      time.Time
}

func (BroadcastDeviceConnected) broadcastMarker() {}
func (b BroadcastDeviceConnected) String() string {
	return fmt.Sprintf("BroadcastDeviceConnected(session=%s, device=%q)", b.Session, b.Device)
}

type BroadcastDeviceDisconnected struct {
	Session string
	Device  string
	Reason  string
	At      time.Time
}

func (BroadcastDeviceDisconnected) broadcastMarker() {}
func (b BroadcastDeviceDisconnected) String() string {
	return fmt.Sprintf("BroadcastDeviceDisconnected(session=%s, reason=%q)", b.Session, b.Reason)
}

// BroadcastEraseRecords asks an attached recorder to drop its last Count records.
type BroadcastEraseRecords struct {
	Count int
	At    time.Time
}

func (BroadcastEraseRecords) broadcastMarker() {}
func (b BroadcastEraseRecords) String() string {
	return fmt.Sprintf("BroadcastEraseRecords(count=%d)", b.Count)
}

type BroadcastEmergencyStop struct {
	At time.Time
}

func (BroadcastEmergencyStop) broadcastMarker() {}
func (BroadcastEmergencyStop) String() string   { return "BroadcastEmergencyStop()" }

type BroadcastModeChanged struct {
	Mode control.Mode
	At   time.Time
}

func (BroadcastModeChanged) broadcastMarker() {}
func (b BroadcastModeChanged) String() string {
	return fmt.Sprintf("BroadcastModeChanged(mode=%s)", b.Mode)
}
