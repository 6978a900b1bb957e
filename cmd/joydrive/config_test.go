package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"joydrive/internal/input"
	"joydrive/internal/source/linuxjs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "joydrive.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Control.ThrottleDir != -1 {
		t.Fatalf("default throttle_dir = %v, want -1", cfg.Control.ThrottleDir)
	}
	if got := cfg.ReconnectInterval(); got != time.Second {
		t.Fatalf("default reconnect interval = %v, want 1s", got)
	}
}

func TestLoadConfigFile_CustomBindingAndTriggers(t *testing.T) {
	path := writeConfig(t, `
input:
  backend: linuxjs
  device_index: 1
  hat_axes: [[6, 7]]
  binding:
    axes:
      0: left_stick_horz
      1: left_stick_vert
    buttons:
      0: a_button
      3: y_button
    hats:
      0: {left: dpad_left, right: dpad_right, down: dpad_down, up: dpad_up}
control:
  max_throttle: 0.5
  triggers:
    button_down:
      a_button: toggle_mode
      y_button: emergency_stop
    axis_change:
      left_stick_horz: set_steering
      left_stick_vert: set_throttle
loop:
  rate_hz: 50
logging:
  level: debug
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Input.Backend != backendLinuxJS || cfg.Input.DeviceIndex != 1 {
		t.Fatalf("input = %+v", cfg.Input)
	}
	if len(cfg.Input.HatAxes) != 1 || cfg.Input.HatAxes[0] != [2]int{6, 7} {
		t.Fatalf("hat_axes = %v", cfg.Input.HatAxes)
	}

	b, err := cfg.Binding()
	if err != nil {
		t.Fatalf("Binding: %v", err)
	}
	if b.Axes[1] != "left_stick_vert" || b.Buttons[3] != "y_button" || b.Hats[0].Up != "dpad_up" {
		t.Fatalf("binding = %+v", b)
	}

	// Unset fields keep their defaults.
	if cfg.Control.Deadzone != DefaultConfig().Control.Deadzone {
		t.Fatalf("deadzone = %v, want default", cfg.Control.Deadzone)
	}
	if cfg.Params().MaxThrottle != 0.5 {
		t.Fatalf("max_throttle = %v, want 0.5", cfg.Params().MaxThrottle)
	}
	if cfg.IPC.SocketPath != "/tmp/joydrive.sock" {
		t.Fatalf("ipc socket = %q", cfg.IPC.SocketPath)
	}

	tm, err := cfg.TriggerMaps()
	if err != nil {
		t.Fatalf("TriggerMaps: %v", err)
	}
	if len(tm.ButtonDown) != 2 || len(tm.AxisChange) != 2 || len(tm.ButtonUp) != 0 {
		t.Fatalf("trigger maps sizes = %d/%d/%d", len(tm.ButtonDown), len(tm.ButtonUp), len(tm.AxisChange))
	}
}

func TestLoadConfigFile_RejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "input:\n  backnd: sdl\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "loop:\n  rate_hz: 10\n---\nloop:\n  rate_hz: 20\n")
	_, err := LoadConfigFile(path)
	if err == nil || !strings.Contains(err.Error(), "trailing document") {
		t.Fatalf("err = %v, want trailing document error", err)
	}
}

func TestLoadConfigFile_AllowsTrailingComments(t *testing.T) {
	path := writeConfig(t, "loop:\n  rate_hz: 10\n# tuned on the bench\n")
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Loop.RateHz != 10 {
		t.Fatalf("rate_hz = %d, want 10", cfg.Loop.RateHz)
	}
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.Model = ""
	cfg.Input.Binding = nil

	model := "xpad_linux"
	port := 0
	autoRecord := false
	level := "warn"
	FlagOverrides{
		Model:      &model,
		HTTPPort:   &port,
		AutoRecord: &autoRecord,
		LogLevel:   &level,
	}.Apply(&cfg)

	if cfg.Input.Model != "xpad_linux" {
		t.Fatalf("model = %q", cfg.Input.Model)
	}
	if cfg.HTTP.Port != 0 {
		t.Fatalf("http port = %d, want 0 (explicit zero applies)", cfg.HTTP.Port)
	}
	if cfg.Control.AutoRecordOnThrottle {
		t.Fatalf("auto record still enabled")
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Input.Backend != backendSDL {
		t.Fatalf("unset override changed backend to %q", cfg.Input.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFlagOverrides_ModelReplacesFileBinding(t *testing.T) {
	path := writeConfig(t, "input:\n  binding:\n    axes: {0: left_stick_horz}\n    buttons: {0: a_button}\n")
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	model := "f710"
	FlagOverrides{Model: &model}.Apply(&cfg)

	if cfg.Input.Binding != nil {
		t.Fatalf("file binding should be dropped by -model")
	}
	b, err := cfg.Binding()
	if err != nil {
		t.Fatalf("Binding: %v", err)
	}
	if b.Axes[2] != "trigger" {
		t.Fatalf("expected f710 binding, got %+v", b.Axes)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Input.Backend = "hid" }, "input.backend"},
		{"device index", func(c *Config) { c.Input.DeviceIndex = -1 }, "input.device_index"},
		{"model", func(c *Config) { c.Input.Model = "ps5" }, "input.model"},
		{"hat axes", func(c *Config) { c.Input.HatAxes = [][2]int{{6, 6}} }, "input.hat_axes"},
		{"throttle dir", func(c *Config) { c.Control.ThrottleDir = 0.5 }, "throttle_dir"},
		{"deadzone", func(c *Config) { c.Control.Deadzone = 1 }, "deadzone"},
		{"rate", func(c *Config) { c.Loop.RateHz = 0 }, "loop.rate_hz"},
		{"reconnect", func(c *Config) { c.Loop.ReconnectIntervalMS = -5 }, "loop.reconnect_interval_ms"},
		{"socket", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestConfigValidate_UnknownTriggerAction(t *testing.T) {
	path := writeConfig(t, "control:\n  triggers:\n    button_down:\n      a_button: launch_rockets\n")
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "control.triggers") {
		t.Fatalf("expected control.triggers error, got %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/joydrive.sock"); got != filepath.Join(home, "joydrive.sock") {
		t.Fatalf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/tmp/x"); got != "/tmp/x" {
		t.Fatalf("ExpandPath changed absolute path: %q", got)
	}
	if got := ExpandPath("~user/x"); got != "~user/x" {
		t.Fatalf("ExpandPath expanded ~user: %q", got)
	}
}

func TestBackendInput_XpadDpadOnLinuxJS(t *testing.T) {
	cfg := DefaultConfig()
	backend, model := backendLinuxJS, "xpad_linux"
	FlagOverrides{Backend: &backend, Model: &model}.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	src, release, err := openBackend(cfg.BackendInput())
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer release()

	js, ok := src.(*linuxjs.Source)
	if !ok {
		t.Fatalf("source = %T, want *linuxjs.Source", src)
	}
	if len(js.HatAxes) != 1 || js.HatAxes[0] != [2]int{6, 7} {
		t.Fatalf("hat axes = %v, want [[6 7]]", js.HatAxes)
	}

	binding, err := cfg.Binding()
	if err != nil {
		t.Fatalf("Binding: %v", err)
	}
	const buttons = 11
	r, err := binding.Resolve(buttons, len(js.HatAxes))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for slot, want := range map[input.HatSlot]string{
		input.HatUp:   input.DpadUp,
		input.HatDown: input.DpadDown,
	} {
		name, ok := r.ButtonName(input.HatButtonIndex(buttons, 0, slot))
		if !ok || name != want {
			t.Fatalf("hat slot %s = %q (bound %t), want %q", slot, name, ok, want)
		}
	}
}

func TestBackendInput_ConfiguredHatAxesWin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.Model = "xpad_linux"
	cfg.Input.HatAxes = [][2]int{{4, 5}}

	in := cfg.BackendInput()
	if len(in.HatAxes) != 1 || in.HatAxes[0] != [2]int{4, 5} {
		t.Fatalf("hat axes = %v, want [[4 5]]", in.HatAxes)
	}

	cfg.Input.HatAxes = nil
	cfg.Input.Model = "f710"
	if in := cfg.BackendInput(); len(in.HatAxes) != 0 {
		t.Fatalf("f710 hat axes = %v, want none", in.HatAxes)
	}
}
