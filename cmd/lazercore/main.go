package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("lazercore v%s\n", version)
	fmt.Println("Keyboard remapping daemon: SOCD, type alchemy, sentence case and RGB indicators")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  lazercore [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to /dev/input and write access to /dev/uinput")
	fmt.Println("  - Use lazerctl to send events over the IPC socket")
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		inputDevice = flag.String("input-device", "", "Keyboard input device (overrides input.devices)")
		grab        = flag.Bool("grab", true, "Grab input devices exclusively")
		ledWsURL    = flag.String("led-ws-url", "", "RGB controller websocket URL")
		socdMode    = flag.String("socd-mode", "last", "Initial SOCD mode: last, neutral or first")
		storePath   = flag.String("store-path", "", "Settings file path (forces the file backend)")
		ipcSocket   = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		httpListen  = flag.String("http-listen", defaultHTTPListen, "HTTP listen address (empty disables)")
		tickHz      = flag.Int("tick-hz", defaultTickHz, "Indicator refresh rate in Hz")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	// Only flags given on the command line override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-device":
			ov.InputDevice = inputDevice
		case "grab":
			ov.Grab = grab
		case "led-ws-url":
			ov.LEDWsURL = ledWsURL
		case "socd-mode":
			ov.SocdMode = socdMode
		case "store-path":
			ov.StorePath = storePath
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocket
		case "http-listen":
			ov.HTTPListen = httpListen
		case "tick-hz":
			ov.TickHz = tickHz
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	level, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(level)

	if err := run(cfg, logger); err != nil {
		logger.Error("lazercore exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	rcfg, err := cfg.ReducerConfig()
	if err != nil {
		return err
	}
	state, err := cfg.NewState()
	if err != nil {
		return err
	}

	store, closeStore := openStore(cfg.Store, logger)
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(reg)

	kbd, err := NewVirtualKeyboard(cfg.Output.Name)
	if err != nil {
		return fmt.Errorf("virtual keyboard: %w (tip: load the uinput module and check /dev/uinput permissions)", err)
	}
	defer kbd.Close()

	keyboards, err := openKeyboards(cfg.Input.Devices, cfg.Output.Name, logger)
	if err != nil {
		return fmt.Errorf("input devices: %w (tip: run as root or add user to 'input' group)", err)
	}
	encoders, err := openEncoders(cfg.Input.EncoderDevices)
	if err != nil {
		closeDevices(keyboards)
		return err
	}

	fx := &Effects{
		Keyboard: kbd,
		Store:    store,
		Metrics:  metrics,
		Host: &HostHooks{
			BootloaderCommand: cfg.Deferred.BootloaderCommand,
			NKROCommand:       cfg.Deferred.NKROCommand,
			Logger:            logger,
		},
	}
	if cfg.LEDs.WsURL != "" {
		link, err := NewLEDLink(cfg.LEDs.WsURL, logger)
		if err != nil {
			return fmt.Errorf("led link: %w", err)
		}
		defer link.Close()
		fx.LEDs = link
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan Event, defaultEventQueueLen)
	broadcasts := make(chan StateBroadcast, 128)

	loaded, err := loadSettings(ctx, store, rcfg.Defaults, logger)
	if err != nil {
		// A broken store must not leave the keyboard dead; run on defaults.
		logger.Error("settings store unavailable, using defaults", "error", err)
		loaded = SettingsLoaded{Settings: rcfg.Defaults, Valid: true}
	}
	events <- loaded

	hub := NewHub(logger, HubConfig{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, fx, rcfg, state, cfg.TickHz, broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gctx, hub, broadcasts, logger)
		return nil
	})
	if cfg.HTTP.Listen != "" {
		srv := NewServer(logger, events, hub, reg)
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Listen, srv.Handler(), logger)
		})
	}
	for _, dev := range keyboards {
		g.Go(func() error {
			return runInputReader(gctx, dev, cfg.Input.Grab, events, logger)
		})
	}
	for _, dev := range encoders {
		g.Go(func() error {
			return runInputReader(gctx, dev, false, events, logger)
		})
	}

	logger.Info("lazercore started",
		"keyboards", len(keyboards),
		"encoders", len(encoders),
		"store", cfg.Store.Backend,
		"socd_mode", cfg.Socd.Mode,
	)

	err = g.Wait()
	logger.Info("lazercore stopped")
	return err
}

func openStore(sc StoreConfig, logger *slog.Logger) (Store, func()) {
	if sc.Backend == "redis" {
		rs := NewRedisStore(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB, sc.Redis.Key)
		logger.Info("settings store", "backend", "redis", "addr", sc.Redis.Addr, "key", sc.Redis.Key)
		return rs, func() { _ = rs.Close() }
	}
	path := ExpandPath(sc.Path)
	logger.Info("settings store", "backend", "file", "path", path)
	return NewFileStore(path), func() {}
}
