package main

import (
	"fmt"

	"joydrive/internal/source/linuxjs"
	"joydrive/internal/source/portable"
	"joydrive/internal/source/virtual"
	"joydrive/internal/tracker"
)

// virtualPadName is the device name reported by the virtual backend.
const virtualPadName = "joydrive virtual pad"

// openBackend builds the input source named by cfg.Input.Backend. The returned
// release func must be called once the source is no longer used, from the
// same goroutine that polls it.
func openBackend(cfg InputConfig) (tracker.Source, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case backendSDL:
		return newSDLSource()
	case backendLinuxJS:
		return &linuxjs.Source{Dir: cfg.LinuxJSDir, HatAxes: cfg.HatAxes}, noop, nil
	case backendPortable:
		return &portable.Source{HatAxes: cfg.HatAxes}, noop, nil
	case backendVirtual:
		// Sized like the xpad layout so every built-in model resolves.
		return virtual.New(virtual.NewPad(virtualPadName, 8, 11, 1)), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown input backend %q", cfg.Backend)
	}
}
