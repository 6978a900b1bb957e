package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"joydrive/internal/control"
	"joydrive/internal/input"
)

// Config is the top-level YAML configuration for the joydrive daemon.
//
// Defaults, file, then flag overrides, then Validate. Everything past
// Validate may assume a well-formed config.
type Config struct {
	Input   InputConfig   `yaml:"input"`
	Control ControlConfig `yaml:"control"`
	Loop    LoopConfig    `yaml:"loop"`
	IPC     IPCConfig     `yaml:"ipc"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	// Backend is one of: sdl, linuxjs, portable, virtual.
	Backend     string `yaml:"backend"`
	DeviceIndex int    `yaml:"device_index"`

	// Model names a built-in binding. Ignored when Binding is set.
	Model   string         `yaml:"model"`
	Binding *input.Binding `yaml:"binding,omitempty"`

	// HatAxes folds axis pairs into hats for backends without a hat API
	// (linuxjs, portable). Empty means the binding's own hat axes.
	HatAxes [][2]int `yaml:"hat_axes,omitempty"`

	// LinuxJSDir overrides /dev/input for the linuxjs backend.
	LinuxJSDir string `yaml:"linuxjs_dir,omitempty"`
}

type ControlConfig struct {
	Deadzone             float64 `yaml:"deadzone"`
	SteeringScale        float64 `yaml:"steering_scale"`
	ThrottleDir          float64 `yaml:"throttle_dir"`
	AutoRecordOnThrottle bool    `yaml:"auto_record_on_throttle"`

	MaxThrottle      float64 `yaml:"max_throttle"`
	MaxThrottleMin   float64 `yaml:"max_throttle_min"`
	MaxThrottleLimit float64 `yaml:"max_throttle_limit"`
	MaxThrottleStep  float64 `yaml:"max_throttle_step"`

	RecordsToErase int     `yaml:"records_to_erase"`
	ChaosSteering  float64 `yaml:"chaos_steering"`
	ChaosJitter    float64 `yaml:"chaos_jitter"`
	StopThreshold  float64 `yaml:"stop_threshold"`

	// Triggers replaces the default trigger tables when set.
	Triggers *control.TriggerConfig `yaml:"triggers,omitempty"`
}

type LoopConfig struct {
	RateHz int `yaml:"rate_hz"`
	// ReconnectIntervalMS > 0 keeps the daemon running after a disconnect
	// and retries opening the device at this interval. 0 exits instead.
	ReconnectIntervalMS int `yaml:"reconnect_interval_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	// Port 0 disables the HTTP server (state websocket and metrics).
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	backendSDL      = "sdl"
	backendLinuxJS  = "linuxjs"
	backendPortable = "portable"
	backendVirtual  = "virtual"
)

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	p := control.DefaultParams()
	return Config{
		Input: InputConfig{
			Backend: backendSDL,
			Model:   "f710",
		},
		Control: ControlConfig{
			Deadzone:             p.Deadzone,
			SteeringScale:        p.SteeringScale,
			ThrottleDir:          p.ThrottleDir,
			AutoRecordOnThrottle: p.AutoRecordOnThrottle,
			MaxThrottle:          p.MaxThrottle,
			MaxThrottleMin:       p.MaxThrottleMin,
			MaxThrottleLimit:     p.MaxThrottleLimit,
			MaxThrottleStep:      p.MaxThrottleStep,
			RecordsToErase:       p.RecordsToErase,
			ChaosSteering:        p.ChaosSteering,
			ChaosJitter:          p.ChaosJitter,
			StopThreshold:        p.StopThreshold,
		},
		Loop: LoopConfig{
			RateHz:              defaultRateHz,
			ReconnectIntervalMS: 1000,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/joydrive.sock",
		},
		HTTP: HTTPConfig{
			Port: 3002,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments may follow the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values that were explicitly set. A nil pointer
// means "not set"; a non-nil one is applied even if it is a zero value.
type FlagOverrides struct {
	Backend     *string
	DeviceIndex *int
	Model       *string

	Deadzone       *float64
	SteeringScale  *float64
	ThrottleDir    *float64
	AutoRecord     *bool
	MaxThrottle    *float64
	RecordsToErase *int

	RateHz              *int
	ReconnectIntervalMS *int

	IPCSocketPath *string
	HTTPPort      *int

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Backend != nil {
		cfg.Input.Backend = *o.Backend
	}
	if o.DeviceIndex != nil {
		cfg.Input.DeviceIndex = *o.DeviceIndex
	}
	if o.Model != nil {
		cfg.Input.Model = *o.Model
		// An explicit model on the command line wins over a file binding.
		cfg.Input.Binding = nil
	}

	if o.Deadzone != nil {
		cfg.Control.Deadzone = *o.Deadzone
	}
	if o.SteeringScale != nil {
		cfg.Control.SteeringScale = *o.SteeringScale
	}
	if o.ThrottleDir != nil {
		cfg.Control.ThrottleDir = *o.ThrottleDir
	}
	if o.AutoRecord != nil {
		cfg.Control.AutoRecordOnThrottle = *o.AutoRecord
	}
	if o.MaxThrottle != nil {
		cfg.Control.MaxThrottle = *o.MaxThrottle
	}
	if o.RecordsToErase != nil {
		cfg.Control.RecordsToErase = *o.RecordsToErase
	}

	if o.RateHz != nil {
		cfg.Loop.RateHz = *o.RateHz
	}
	if o.ReconnectIntervalMS != nil {
		cfg.Loop.ReconnectIntervalMS = *o.ReconnectIntervalMS
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	switch c.Input.Backend {
	case backendSDL, backendLinuxJS, backendPortable, backendVirtual:
	default:
		return fmt.Errorf("input.backend must be one of %q, %q, %q, %q", backendSDL, backendLinuxJS, backendPortable, backendVirtual)
	}
	if c.Input.DeviceIndex < 0 {
		return errors.New("input.device_index must be >= 0")
	}
	if _, err := c.Binding(); err != nil {
		return err
	}
	for i, p := range c.Input.HatAxes {
		if p[0] < 0 || p[1] < 0 || p[0] == p[1] {
			return fmt.Errorf("input.hat_axes[%d] must be two distinct non-negative axis indices", i)
		}
	}

	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if _, err := c.TriggerMaps(); err != nil {
		return fmt.Errorf("control.triggers: %w", err)
	}

	if c.Loop.RateHz <= 0 || c.Loop.RateHz > 1000 {
		return errors.New("loop.rate_hz must be between 1 and 1000")
	}
	if c.Loop.ReconnectIntervalMS < 0 {
		return errors.New("loop.reconnect_interval_ms must be >= 0")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// Binding returns the configured name binding: the inline binding if present,
// otherwise the named built-in model.
func (c *Config) Binding() (input.Binding, error) {
	if c.Input.Binding != nil {
		if err := c.Input.Binding.Validate(); err != nil {
			return input.Binding{}, fmt.Errorf("input.binding: %w", err)
		}
		return *c.Input.Binding, nil
	}
	b, err := input.Model(c.Input.Model)
	if err != nil {
		return input.Binding{}, fmt.Errorf("input.model: %w", err)
	}
	return b, nil
}

// BackendInput is the input section as handed to openBackend, with hat axes
// defaulted from the binding when none are configured.
func (c *Config) BackendInput() InputConfig {
	in := c.Input
	if len(in.HatAxes) > 0 {
		return in
	}
	if b, err := c.Binding(); err == nil && len(b.HatAxes) > 0 {
		in.HatAxes = append([][2]int(nil), b.HatAxes...)
	}
	return in
}

// Params converts the control section into controller parameters.
func (c *Config) Params() control.Params {
	return control.Params{
		Deadzone:             c.Control.Deadzone,
		SteeringScale:        c.Control.SteeringScale,
		ThrottleDir:          c.Control.ThrottleDir,
		AutoRecordOnThrottle: c.Control.AutoRecordOnThrottle,
		MaxThrottle:          c.Control.MaxThrottle,
		MaxThrottleMin:       c.Control.MaxThrottleMin,
		MaxThrottleLimit:     c.Control.MaxThrottleLimit,
		MaxThrottleStep:      c.Control.MaxThrottleStep,
		RecordsToErase:       c.Control.RecordsToErase,
		ChaosSteering:        c.Control.ChaosSteering,
		ChaosJitter:          c.Control.ChaosJitter,
		StopThreshold:        c.Control.StopThreshold,
	}
}

// TriggerMaps builds the configured trigger tables, or the defaults.
func (c *Config) TriggerMaps() (control.TriggerMaps, error) {
	if c.Control.Triggers == nil {
		return control.DefaultTriggerMaps(), nil
	}
	return c.Control.Triggers.Build()
}

// ReconnectInterval is zero when reconnecting is disabled.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Loop.ReconnectIntervalMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
