package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/pthm-cable/mould/config"
	"github.com/pthm-cable/mould/game"
	"github.com/pthm-cable/mould/gpu"
	"github.com/pthm-cable/mould/gpu/glcompute"
	"github.com/pthm-cable/mould/gpu/lanes"
	"github.com/pthm-cable/mould/renderer"
	"github.com/pthm-cable/mould/renderer/colormap"
	"github.com/pthm-cable/mould/renderer/terminal"
	"github.com/pthm-cable/mould/stream"
	"github.com/pthm-cable/mould/systems"
	"github.com/pthm-cable/mould/telemetry"
	"github.com/pthm-cable/mould/ui"
)

const title = "Mould"

type flags struct {
	configPath     string
	headless       bool
	terminal       bool
	logStats       bool
	statsWindow    float64
	outputDir      string
	seed           int64
	maxTicks       int
	stepsPerUpdate int
	device         string
	streamAddr     string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	flag.BoolVar(&f.headless, "headless", false, "Run without a display")
	flag.BoolVar(&f.terminal, "terminal", false, "Show the field in the terminal instead of a window")
	flag.BoolVar(&f.logStats, "log-stats", false, "Output stats and perf windows via slog")
	flag.Float64Var(&f.statsWindow, "stats-window", 0, "Stats window size in seconds (0 = use config)")
	flag.StringVar(&f.outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")
	flag.Int64Var(&f.seed, "seed", 0, "RNG seed (0 = use config, then time-based)")
	flag.IntVar(&f.maxTicks, "max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	flag.IntVar(&f.stepsPerUpdate, "steps-per-update", 1, "Simulation ticks per update call (higher = faster runs)")
	flag.StringVar(&f.device, "device", "", "Parallel device: lanes or opengl (empty = use config)")
	flag.StringVar(&f.streamAddr, "stream-addr", "", "Serve websocket snapshots on this address (empty = use config)")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(f); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if err := config.Init(f.configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Cfg()
	if err := applyOverrides(cfg, f); err != nil {
		return err
	}

	rng, seed := systems.NewSource(cfg.Simulation.Seed)
	runID := telemetry.NewRunID()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The opengl device needs a GL context even without a visible window.
	needWindow := !f.headless && !f.terminal
	if needWindow || cfg.GPU.Device == config.DeviceOpenGL {
		renderer.OpenWindow(cfg.Screen, title, !needWindow)
		defer renderer.CloseWindow()
	}

	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer dev.Release()

	g, err := game.NewGame(dev, cfg, rng, game.Options{
		RunID:          runID,
		LogStats:       f.logStats,
		OutputDir:      f.outputDir,
		StepsPerUpdate: f.stepsPerUpdate,
	})
	if err != nil {
		return err
	}
	defer g.Unload()

	slog.Info("starting simulation",
		"run_id", runID,
		"seed", seed,
		"device", dev.Name(),
		"agents", cfg.Simulation.AgentCount,
		"res_x", cfg.Simulation.ResX,
		"res_y", cfg.Simulation.ResY,
		"max_ticks", f.maxTicks,
		"steps_per_update", g.StepsPerUpdate(),
	)

	if cfg.Stream.Addr != "" {
		hub := stream.NewHub(cfg.Simulation.ResX, cfg.Simulation.ResY, colormap.Gain(cfg.Derived.Deposit32), cfg.Stream.EveryNTicks)
		if _, err := hub.Start(cfg.Stream.Addr); err != nil {
			return err
		}
		defer hub.Close()
		g.AddPresenter(hub)
	}

	stopSignals := []game.StopSignal{game.UntilDone(ctx)}
	if f.maxTicks > 0 {
		stopSignals = append(stopSignals, game.UntilTick(g.Orchestrator(), f.maxTicks))
	}

	var clock game.Clock
	switch {
	case f.headless:
		clock = game.FixedClock{DT: cfg.Simulation.DT}

	case f.terminal:
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("opening terminal: %w", err)
		}
		disp, err := terminal.New(screen, colormap.Gain(cfg.Derived.Deposit32), cfg.Screen.TargetFPS)
		if err != nil {
			return err
		}
		defer disp.Close()
		disp.SetPauser(g)
		g.AddPresenter(disp)
		stopSignals = append(stopSignals, disp)
		clock = game.NewWallClock(cfg.Simulation.MaxDT)

	default:
		win, err := renderer.NewWindow(cfg.Simulation.ResX, cfg.Simulation.ResY, cfg.Derived.Deposit32)
		if err != nil {
			return err
		}
		defer win.Unload()
		overlay := ui.NewOverlay(g, win, ui.Info{
			Title:  title,
			Device: dev.Name(),
			Agents: cfg.Simulation.AgentCount,
			ResX:   cfg.Simulation.ResX,
			ResY:   cfg.Simulation.ResY,
			StepDT: cfg.Simulation.DT,
		})
		win.SetOverlay(overlay.Draw)
		g.AddPresenter(win)
		stopSignals = append(stopSignals, game.WindowOpen())
		clock = game.FrameClock{MaxDT: cfg.Simulation.MaxDT}
	}

	runErr := g.Run(clock, game.All(stopSignals...))

	slog.Info("simulation stopped",
		"tick", g.Tick(),
		"sim_time", g.SimTime(),
		"interrupted", ctx.Err() != nil,
	)
	g.Perf().LogStats()
	return runErr
}

// applyOverrides folds command-line overrides into the loaded config.
func applyOverrides(cfg *config.Config, f flags) error {
	if f.seed != 0 {
		cfg.Simulation.Seed = f.seed
	}
	if f.statsWindow > 0 {
		cfg.Telemetry.StatsWindow = f.statsWindow
	}
	if f.device != "" {
		cfg.GPU.Device = f.device
	}
	if f.streamAddr != "" {
		cfg.Stream.Addr = f.streamAddr
	}
	if f.headless && f.terminal {
		return errors.New("-headless and -terminal are mutually exclusive")
	}
	if err := cfg.Refresh(); err != nil {
		return fmt.Errorf("applying flags: %w", err)
	}
	return nil
}

// openDevice creates the parallel device named in config.
func openDevice(cfg *config.Config) (gpu.Device, error) {
	switch cfg.GPU.Device {
	case config.DeviceOpenGL:
		dev, err := glcompute.New()
		if err != nil {
			return nil, fmt.Errorf("opening opengl device: %w", err)
		}
		version, gpuName := dev.Version()
		slog.Info("opengl device ready", "version", version, "renderer", gpuName)
		return dev, nil
	case config.DeviceLanes:
		dev := lanes.New(cfg.GPU.Workers)
		slog.Info("lanes device ready", "workers", dev.Workers())
		return dev, nil
	default:
		return nil, fmt.Errorf("%w: unknown device %q", config.ErrInvalidConfig, cfg.GPU.Device)
	}
}
