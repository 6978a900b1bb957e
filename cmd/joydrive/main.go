package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"joydrive/internal/control"
	"joydrive/internal/input"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("joydrive v%s\n", version)
	fmt.Println("Joystick teleoperation daemon for small autonomous vehicles")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  joydrive [OPTIONS]")
	fmt.Println("  joydrive probe [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads a game controller, turns axis and button changes into named")
	fmt.Println("  events and drives steering, throttle, drive mode and recording from")
	fmt.Println("  them. State is published over a Unix socket, a websocket and /metrics.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file; flags override file values")
	fmt.Println()
	fmt.Println("  -backend string")
	fmt.Println("        Input backend: sdl|linuxjs|portable|virtual (default \"sdl\")")
	fmt.Println()
	fmt.Println("  -device-index int")
	fmt.Println("        Controller index (default 0)")
	fmt.Println()
	fmt.Println("  -model string")
	fmt.Printf("        Built-in binding: %s (default \"f710\")\n", strings.Join(input.ModelNames(), "|"))
	fmt.Println()
	fmt.Println("  -deadzone float")
	fmt.Printf("        Axis deadzone (default %.2f)\n", control.DefaultParams().Deadzone)
	fmt.Println()
	fmt.Println("  -steering-scale float")
	fmt.Println("        Steering multiplier (default 1.0)")
	fmt.Println()
	fmt.Println("  -throttle-dir float")
	fmt.Println("        Throttle axis direction, -1 or 1 (default -1)")
	fmt.Println()
	fmt.Println("  -auto-record")
	fmt.Println("        Record while throttle is applied in user mode (default true)")
	fmt.Println()
	fmt.Println("  -max-throttle float")
	fmt.Println("        Initial max throttle (default 1.0)")
	fmt.Println()
	fmt.Println("  -records-to-erase int")
	fmt.Printf("        Records dropped by erase_last_N_records (default %d)\n", control.DefaultParams().RecordsToErase)
	fmt.Println()
	fmt.Println("  -rate-hz int")
	fmt.Printf("        Poll loop frequency in Hz (default %d)\n", defaultRateHz)
	fmt.Println()
	fmt.Println("  -reconnect-interval-ms int")
	fmt.Println("        Retry opening a lost controller at this interval; 0 exits instead (default 1000)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/joydrive.sock\")")
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Println("        Port for /ws/state and /metrics; 0 disables (default 3002)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  probe")
	fmt.Println("        Print raw controller changes with their bound names")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Logitech F710 through SDL")
	fmt.Println("  joydrive")
	fmt.Println()
	fmt.Println("  # Xbox pad through the kernel joystick API")
	fmt.Println("  joydrive -backend linuxjs -model xpad_linux")
	fmt.Println()
	fmt.Println("  # No controller; drive over IPC with joydrive-ctl")
	fmt.Println("  joydrive -backend virtual")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The emergency stop latches until the daemon is restarted")
	fmt.Println("  - linuxjs needs read access to /dev/input/js* (add user to 'input' group)")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "probe" {
		os.Exit(runProbeSubcommand(os.Args[2:]))
	}

	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "YAML config file")

		backend     = flag.String("backend", backendSDL, "Input backend: sdl|linuxjs|portable|virtual")
		deviceIndex = flag.Int("device-index", 0, "Controller index")
		model       = flag.String("model", "f710", "Built-in binding model")

		deadzone       = flag.Float64("deadzone", control.DefaultParams().Deadzone, "Axis deadzone")
		steeringScale  = flag.Float64("steering-scale", 1.0, "Steering multiplier")
		throttleDir    = flag.Float64("throttle-dir", -1.0, "Throttle axis direction")
		autoRecord     = flag.Bool("auto-record", true, "Record while throttle is applied in user mode")
		maxThrottle    = flag.Float64("max-throttle", 1.0, "Initial max throttle")
		recordsToErase = flag.Int("records-to-erase", control.DefaultParams().RecordsToErase, "Records dropped by erase_last_N_records")

		rateHz              = flag.Int("rate-hz", defaultRateHz, "Poll loop frequency in Hz")
		reconnectIntervalMS = flag.Int("reconnect-interval-ms", 1000, "Controller reopen interval in ms; 0 exits on disconnect")

		ipcSocketPath = flag.String("ipc-socket", "/tmp/joydrive.sock", "Unix domain socket path for IPC")
		httpPort      = flag.Int("http-port", 3002, "Port for /ws/state and /metrics; 0 disables")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")

		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		c, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = c
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			o.Backend = backend
		case "device-index":
			o.DeviceIndex = deviceIndex
		case "model":
			o.Model = model
		case "deadzone":
			o.Deadzone = deadzone
		case "steering-scale":
			o.SteeringScale = steeringScale
		case "throttle-dir":
			o.ThrottleDir = throttleDir
		case "auto-record":
			o.AutoRecord = autoRecord
		case "max-throttle":
			o.MaxThrottle = maxThrottle
		case "records-to-erase":
			o.RecordsToErase = recordsToErase
		case "rate-hz":
			o.RateHz = rateHz
		case "reconnect-interval-ms":
			o.ReconnectIntervalMS = reconnectIntervalMS
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-port":
			o.HTTPPort = httpPort
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("joydrive stopped", "error", err)
		os.Exit(1)
	}
}

// run starts the daemon goroutines and blocks until a signal arrives or one
// of them fails.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	triggers, err := cfg.TriggerMaps()
	if err != nil {
		return err
	}
	ctrl := control.New(cfg.Params(), logger, control.WithTriggers(triggers))

	m := newMetrics()
	store := &snapshotStore{}
	broadcasts := make(chan StateBroadcast, 64)
	injected := make(chan input.Event, 64)

	logger.Debug("configuration",
		"backend", cfg.Input.Backend,
		"device_index", cfg.Input.DeviceIndex,
		"model", cfg.Input.Model,
		"custom_binding", cfg.Input.Binding != nil,
		"custom_triggers", cfg.Control.Triggers != nil,
		"deadzone", cfg.Control.Deadzone,
		"throttle_dir", cfg.Control.ThrottleDir,
		"max_throttle", cfg.Control.MaxThrottle,
		"rate_hz", cfg.Loop.RateHz,
		"reconnect_interval_ms", cfg.Loop.ReconnectIntervalMS)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The loop owns broadcasts; closing it lets the broadcaster drain and exit.
		defer close(broadcasts)
		return runSession(gctx, cfg, ctrl, store, broadcasts, injected, m, logger)
	})

	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, injected, store, m, logger)
	})

	if cfg.HTTP.Port > 0 {
		hub := NewHub(logger, m, HubConfig{})
		state := NewStateServer(logger, hub, store)

		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, hub, broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Port, newHTTPMux(state, m), logger)
		})
	} else {
		// Nobody consumes broadcasts; keep the queue from filling.
		g.Go(func() error {
			for range broadcasts {
			}
			return nil
		})
	}

	logger.Info("listening",
		"backend", cfg.Input.Backend,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"rate_hz", cfg.Loop.RateHz)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}
