package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"joydrive/internal/input"
	"joydrive/internal/tracker"
)

// ============================================================================
// probe subcommand
// ============================================================================
// Prints every raw axis, button and hat change of one controller together
// with the name the configured binding gives it. Unbound indices are shown
// too, which is the point: it is how a new controller's layout is mapped.
// ============================================================================

func printProbeUsage() {
	fmt.Printf("joydrive probe v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  joydrive probe [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Lists attached controllers, then prints raw changes of the selected one")
	fmt.Println("  with their bound names until interrupted or the controller is unplugged.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string      YAML config file (backend, model and binding are used)")
	fmt.Println("  -backend string     Input backend: sdl|linuxjs|portable (default from config)")
	fmt.Println("  -device-index int   Controller index (default from config)")
	fmt.Println("  -model string       Built-in binding model (default from config)")
	fmt.Println("  -rate-hz int        Sample rate (default from config)")
	fmt.Println()
}

func runProbeSubcommand(args []string) int {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	backend := fs.String("backend", "", "Input backend: sdl|linuxjs|portable")
	deviceIndex := fs.Int("device-index", -1, "Controller index")
	model := fs.String("model", "", "Built-in binding model")
	rateHz := fs.Int("rate-hz", 0, "Sample rate")
	fs.Usage = printProbeUsage
	_ = fs.Parse(args)

	cfg := DefaultConfig()
	if *configPath != "" {
		c, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		cfg = c
	}

	var o FlagOverrides
	if *backend != "" {
		o.Backend = backend
	}
	if *deviceIndex >= 0 {
		o.DeviceIndex = deviceIndex
	}
	if *model != "" {
		o.Model = model
	}
	if *rateHz > 0 {
		o.RateHz = rateHz
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	binding, err := cfg.Binding()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	src, release, err := openBackend(cfg.BackendInput())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer release()

	interval := time.Second / time.Duration(cfg.Loop.RateHz)
	if err := probe(ctx, os.Stdout, src, cfg.Input.DeviceIndex, binding, interval); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// listDevices writes one line per attached controller.
func listDevices(w io.Writer, src tracker.Source) {
	n := src.DeviceCount()
	fmt.Fprintf(w, "%d controller(s) attached\n", n)
	for i := 0; i < n; i++ {
		dev, err := src.Open(i)
		if err != nil {
			fmt.Fprintf(w, "  %d: <%v>\n", i, err)
			continue
		}
		fmt.Fprintf(w, "  %d: %q axes=%d buttons=%d hats=%d\n", i, dev.Name(), dev.AxisCount(), dev.ButtonCount(), dev.HatCount())
		_ = dev.Close()
	}
}

// probe samples one device every interval and prints raw changes until ctx
// is done or the device quits.
func probe(ctx context.Context, w io.Writer, src tracker.Source, index int, binding input.Binding, interval time.Duration) error {
	listDevices(w, src)

	if n := src.DeviceCount(); index < 0 || index >= n {
		return fmt.Errorf("probe joystick %d (%d attached): %w", index, n, tracker.ErrDeviceNotFound)
	}
	dev, err := src.Open(index)
	if err != nil {
		return fmt.Errorf("probe joystick %d: %w", index, err)
	}
	defer dev.Close()

	resolved, err := binding.Resolve(dev.ButtonCount(), dev.HatCount())
	if err != nil {
		return fmt.Errorf("probe joystick %d: %w", index, err)
	}

	p := newProber(w, dev, resolved)
	fmt.Fprintf(w, "probing %d: %q (ctrl-c to stop)\n", index, dev.Name())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.sample(); err != nil {
			if errors.Is(err, tracker.ErrDeviceDisconnected) {
				fmt.Fprintln(w, "controller disconnected")
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type prober struct {
	w        io.Writer
	dev      tracker.Device
	resolved input.Resolved

	axes    []float64
	buttons []bool
	hats    [][2]int
}

func newProber(w io.Writer, dev tracker.Device, resolved input.Resolved) *prober {
	return &prober{
		w:        w,
		dev:      dev,
		resolved: resolved,
		axes:     make([]float64, dev.AxisCount()),
		buttons:  make([]bool, dev.ButtonCount()),
		hats:     make([][2]int, dev.HatCount()),
	}
}

func (p *prober) sample() error {
	for _, ev := range p.dev.PollEvents() {
		if ev.Kind == tracker.RawQuit {
			return tracker.ErrDeviceDisconnected
		}
	}

	for i := range p.axes {
		v := p.dev.Axis(i)
		if v == p.axes[i] {
			continue
		}
		p.axes[i] = v
		name, _ := p.resolved.AxisName(i)
		fmt.Fprintf(p.w, "axis %d %s = %+.3f\n", i, label(name), v)
	}

	for i := range p.buttons {
		pressed := p.dev.Button(i)
		if pressed == p.buttons[i] {
			continue
		}
		p.buttons[i] = pressed
		name, _ := p.resolved.ButtonName(i)
		fmt.Fprintf(p.w, "button %d %s %s\n", i, label(name), pressedWord(pressed))
	}

	numButtons := len(p.buttons)
	for h := range p.hats {
		horz, vert := p.dev.Hat(h)
		if p.hats[h] == [2]int{horz, vert} {
			continue
		}
		prev := input.HatButtons(p.hats[h][0], p.hats[h][1])
		p.hats[h] = [2]int{horz, vert}
		fmt.Fprintf(p.w, "hat %d = (%d, %d)\n", h, horz, vert)

		now := input.HatButtons(horz, vert)
		for s := input.HatLeft; s <= input.HatUp; s++ {
			if now[s] == prev[s] {
				continue
			}
			idx := input.HatButtonIndex(numButtons, h, s)
			name, _ := p.resolved.ButtonName(idx)
			fmt.Fprintf(p.w, "  hat %d %s -> button %d %s %s\n", h, s, idx, label(name), pressedWord(now[s]))
		}
	}
	return nil
}

func label(name string) string {
	if name == "" {
		return "(unbound)"
	}
	return "(" + name + ")"
}

func pressedWord(pressed bool) string {
	if pressed {
		return "pressed"
	}
	return "released"
}
