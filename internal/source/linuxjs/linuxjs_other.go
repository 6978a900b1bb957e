//go:build !linux

package linuxjs

import (
	"errors"

	"joydrive/internal/tracker"
)

// DefaultDir is where the kernel exposes joystick nodes.
const DefaultDir = "/dev/input"

// Source is only functional on Linux.
type Source struct {
	Dir     string
	HatAxes [][2]int
}

func (s *Source) DeviceCount() int { return 0 }

func (s *Source) Open(index int) (tracker.Device, error) {
	return nil, errors.New("linux joystick API is not available on this platform")
}
