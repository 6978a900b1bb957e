// Package virtual is an in-memory controller source. The daemon uses it when
// no hardware is attached and all input arrives over IPC; tests use it to
// script raw samples.
package virtual

import (
	"fmt"
	"sync"

	"joydrive/internal/tracker"
)

// Source holds a fixed set of virtual pads.
type Source struct {
	mu   sync.Mutex
	pads []*Pad
}

// New returns a source with the given pads attached at indices 0..n-1.
func New(pads ...*Pad) *Source {
	return &Source{pads: pads}
}

// Attach appends a pad and returns its index.
func (s *Source) Attach(p *Pad) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pads = append(s.pads, p)
	return len(s.pads) - 1
}

// Detach removes every pad, as if all devices were unplugged.
func (s *Source) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pads = nil
}

func (s *Source) DeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pads)
}

func (s *Source) Open(index int) (tracker.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.pads) {
		return nil, fmt.Errorf("virtual pad %d: %w", index, tracker.ErrDeviceNotFound)
	}
	p := s.pads[index]
	p.mu.Lock()
	p.opened++
	p.closed = false
	p.mu.Unlock()
	return p, nil
}

// Pad is a scripted controller. Setters may be called from any goroutine.
type Pad struct {
	mu sync.Mutex

	name    string
	axes    []float64
	buttons []bool
	hats    [][2]int
	pending []tracker.RawEvent

	opened int
	closed bool
}

// NewPad returns a pad with all samples at rest.
func NewPad(name string, axes, buttons, hats int) *Pad {
	return &Pad{
		name:    name,
		axes:    make([]float64, axes),
		buttons: make([]bool, buttons),
		hats:    make([][2]int, hats),
	}
}

func (p *Pad) SetAxis(i int, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.axes[i] = v
}

func (p *Pad) SetButton(i int, pressed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buttons[i] = pressed
}

func (p *Pad) SetHat(i, horz, vert int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hats[i] = [2]int{horz, vert}
}

// Unplug queues a quit event, delivered on the next poll.
func (p *Pad) Unplug() {
	p.Push(tracker.RawEvent{Kind: tracker.RawQuit, Detail: "unplugged"})
}

// Push queues a raw source event.
func (p *Pad) Push(ev tracker.RawEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, ev)
}

// Closed reports whether the last opened handle was closed.
func (p *Pad) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Opens reports how many times the pad was opened.
func (p *Pad) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

func (p *Pad) Name() string     { return p.name }
func (p *Pad) AxisCount() int   { return len(p.axes) }
func (p *Pad) ButtonCount() int { return len(p.buttons) }
func (p *Pad) HatCount() int    { return len(p.hats) }

func (p *Pad) Axis(i int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.axes[i]
}

func (p *Pad) Button(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buttons[i]
}

func (p *Pad) Hat(i int) (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hats[i][0], p.hats[i][1]
}

func (p *Pad) PollEvents() []tracker.RawEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	return out
}

func (p *Pad) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
