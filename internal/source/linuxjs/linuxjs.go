//go:build linux

// Package linuxjs reads controllers through the Linux joystick API
// (/dev/input/jsN) without cgo.
package linuxjs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"joydrive/internal/tracker"
)

// ============================================================================
// ioctl numbers and js_event layout (linux/joystick.h)
// ============================================================================

const (
	jsiocgAxes    = 0x80016a11 // JSIOCGAXES
	jsiocgButtons = 0x80016a12 // JSIOCGBUTTONS
	jsiocgName    = 0x80006a13 // JSIOCGNAME(0); length goes in bits 16..29

	jsEventButton = 0x01
	jsEventAxis   = 0x02
	jsEventInit   = 0x80

	jsEventSize = 8 // u32 time, s16 value, u8 type, u8 number

	nameLen = 128

	// hatThreshold is the magnitude past which a d-pad axis counts as pressed.
	hatThreshold = 16384
)

// DefaultDir is where the kernel exposes joystick nodes.
const DefaultDir = "/dev/input"

// Source enumerates /dev/input/js* nodes in numeric order.
type Source struct {
	// Dir defaults to DefaultDir.
	Dir string

	// HatAxes lists (horizontal, vertical) axis pairs to expose as hats.
	// The xpad driver reports the d-pad as axes 6 and 7.
	HatAxes [][2]int
}

func (s *Source) dir() string {
	if s.Dir == "" {
		return DefaultDir
	}
	return s.Dir
}

// nodes returns the joystick device paths sorted by their numeric suffix.
func (s *Source) nodes() []string {
	paths, err := filepath.Glob(filepath.Join(s.dir(), "js*"))
	if err != nil {
		return nil
	}
	type node struct {
		path string
		n    int
	}
	var out []node
	for _, p := range paths {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(p), "js"))
		if err != nil {
			continue
		}
		out = append(out, node{p, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })

	res := make([]string, len(out))
	for i, n := range out {
		res[i] = n.path
	}
	return res
}

func (s *Source) DeviceCount() int { return len(s.nodes()) }

// Open opens the index-th joystick node non-blocking and queries its layout.
func (s *Source) Open(index int) (tracker.Device, error) {
	nodes := s.nodes()
	if index < 0 || index >= len(nodes) {
		return nil, fmt.Errorf("joystick node %d: %w", index, tracker.ErrDeviceNotFound)
	}
	path := nodes[index]

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var axes, buttons uint8
	if err := ioctl(fd, jsiocgAxes, unsafe.Pointer(&axes)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: JSIOCGAXES: %w", path, err)
	}
	if err := ioctl(fd, jsiocgButtons, unsafe.Pointer(&buttons)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: JSIOCGBUTTONS: %w", path, err)
	}
	name := make([]byte, nameLen)
	if err := ioctl(fd, jsiocgName+(nameLen<<16), unsafe.Pointer(&name[0])); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: JSIOCGNAME: %w", path, err)
	}

	var hats [][2]int
	for _, pair := range s.HatAxes {
		if pair[0] < 0 || pair[1] < 0 || pair[0] >= int(axes) || pair[1] >= int(axes) {
			continue
		}
		hats = append(hats, pair)
	}

	return &device{
		fd:      fd,
		path:    path,
		name:    unix.ByteSliceToString(name),
		axes:    make([]int16, axes),
		buttons: make([]bool, buttons),
		hats:    hats,
		buf:     make([]byte, jsEventSize*64),
	}, nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

type device struct {
	fd   int
	path string
	name string

	axes    []int16
	buttons []bool
	hats    [][2]int

	buf    []byte
	closed bool
}

func (d *device) Name() string     { return d.name }
func (d *device) AxisCount() int   { return len(d.axes) }
func (d *device) ButtonCount() int { return len(d.buttons) }
func (d *device) HatCount() int    { return len(d.hats) }

// Axis scales the raw int16 into [-1, 1].
func (d *device) Axis(i int) float64 {
	return scaleAxis(d.axes[i])
}

func (d *device) Button(i int) bool { return d.buttons[i] }

// Hat folds an axis pair into a hat reading. The joystick API reports "up"
// as a negative vertical value; hats report it as +1.
func (d *device) Hat(i int) (int, int) {
	p := d.hats[i]
	return axisDirection(d.axes[p[0]]), -axisDirection(d.axes[p[1]])
}

// PollEvents checks for hangup, then reads every queued js_event into the
// sample arrays until the kernel reports EAGAIN.
func (d *device) PollEvents() []tracker.RawEvent {
	if d.closed {
		return []tracker.RawEvent{{Kind: tracker.RawQuit, Detail: "closed"}}
	}

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(fds, 0); err == nil && fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return []tracker.RawEvent{{Kind: tracker.RawQuit, Detail: d.path + ": hangup"}}
	}

	var out []tracker.RawEvent
	for {
		n, err := unix.Read(d.fd, d.buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return out
			}
			return append(out, tracker.RawEvent{Kind: tracker.RawQuit, Detail: fmt.Sprintf("%s: %v", d.path, err)})
		}
		if n == 0 {
			return append(out, tracker.RawEvent{Kind: tracker.RawQuit, Detail: d.path + ": eof"})
		}
		for off := 0; off+jsEventSize <= n; off += jsEventSize {
			d.apply(d.buf[off : off+jsEventSize])
		}
		if n < len(d.buf) {
			return out
		}
	}
}

func (d *device) apply(b []byte) {
	value := int16(binary.NativeEndian.Uint16(b[4:6]))
	typ := b[6] &^ jsEventInit
	num := int(b[7])

	switch typ {
	case jsEventAxis:
		if num < len(d.axes) {
			d.axes[num] = value
		}
	case jsEventButton:
		if num < len(d.buttons) {
			d.buttons[num] = value != 0
		}
	}
}

func (d *device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}

func scaleAxis(v int16) float64 {
	f := float64(v) / 32767
	if f < -1 {
		return -1
	}
	return f
}

func axisDirection(v int16) int {
	switch {
	case v > hatThreshold:
		return 1
	case v < -hatThreshold:
		return -1
	default:
		return 0
	}
}
