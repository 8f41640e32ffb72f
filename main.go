package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/renderer"
	"github.com/pthm-cable/army/renderer/rlview"
	"github.com/pthm-cable/army/renderer/stream"
	"github.com/pthm-cable/army/renderer/term"
	"github.com/pthm-cable/army/swarm"
	"github.com/pthm-cable/army/telemetry"
)

type options struct {
	configPath  string
	headless    bool
	view        string
	seed        int64
	maxTicks    uint64
	outputDir   string
	logStats    bool
	logLevel    string
	logFormat   string
	metricsAddr string
	streamAddr  string
	trace       string
	realtime    bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	flag.BoolVar(&o.headless, "headless", false, "Run without a view")
	flag.StringVar(&o.view, "view", "raylib", "View to open when not headless: raylib | term")
	flag.Int64Var(&o.seed, "seed", 0, "RNG seed (0 = swarm.seed, then time-based)")
	flag.Uint64Var(&o.maxTicks, "max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	flag.StringVar(&o.outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")
	flag.BoolVar(&o.logStats, "log-stats", false, "Log window stats via slog")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level: debug | info | warn | error")
	flag.StringVar(&o.logFormat, "log-format", "json", "Log format: json | text")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&o.streamAddr, "stream-addr", "", "Serve the websocket frame stream on this address")
	flag.StringVar(&o.trace, "trace", "", "Tick tracing exporter (stdout); empty disables tracing")
	flag.BoolVar(&o.realtime, "realtime", false, "Pace headless runs at the configured tick rate")
	flag.Parse()

	if err := run(o); err != nil {
		slog.Error("army failed", "error", err)
		os.Exit(1)
	}
}

func run(o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	// A terminal view owns stdout and stderr.
	logOut := io.Writer(os.Stderr)
	if !o.headless && o.view == "term" {
		logOut = io.Discard
		if o.outputDir != "" {
			if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
				return err
			}
			f, err := os.Create(filepath.Join(o.outputDir, "army.log"))
			if err != nil {
				return err
			}
			defer f.Close()
			logOut = f
		}
	}
	logger := telemetry.NewLogger(logOut, o.logLevel, o.logFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:  o.trace != "",
		Exporter: o.trace,
	}, logger)
	if err != nil {
		return err
	}
	defer telemetry.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	sim, err := swarm.New(cfg, swarm.Options{Seed: o.seed, Logger: logger, Perf: perf})
	if err != nil {
		return err
	}
	defer sim.Close()

	var output *telemetry.OutputManager
	if o.outputDir != "" {
		output, err = telemetry.NewOutputManager(o.outputDir)
		if err != nil {
			return err
		}
		defer output.Close()
		if err := output.WriteConfig(sim.Config()); err != nil {
			return err
		}
	}

	coll := telemetry.NewCollector(cfg.Telemetry.StatsWindow, telemetry.CollectorOptions{
		Output:   output,
		Perf:     perf,
		Logger:   logger,
		LogStats: o.logStats,
	})
	observers := []swarm.Observer{coll}

	if o.metricsAddr != "" {
		metrics, err := telemetry.NewMetrics(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		counts := sim.TypeCounts()
		for _, p := range sim.Table().Profiles() {
			metrics.SetAgents(p.Name, counts[p.ID])
		}
		observers = append(observers, metrics)
		srv := serve(o.metricsAddr, "/metrics", metrics.Handler(), logger)
		defer shutdownServer(srv, logger)
	}

	var renderers []renderer.Renderer
	if o.streamAddr != "" {
		ss := stream.NewServer(cfg.Stream, logger)
		renderers = append(renderers, ss)
		srv := serve(o.streamAddr, "/stream", ss.Handler(), logger)
		defer shutdownServer(srv, logger)
		defer ss.Close()
	}

	clock := swarm.NewClock(sim, observers...)

	switch {
	case o.headless:
		if err := attach(sim, renderers, nil); err != nil {
			return err
		}
		logger.Info("starting headless simulation",
			"seed", sim.Seed(),
			"max_ticks", o.maxTicks,
			"realtime", o.realtime,
		)
		if o.realtime {
			err = clock.RunRealtime(ctx, o.maxTicks)
		} else {
			err = clock.Run(ctx, o.maxTicks)
		}

	case o.view == "raylib":
		viewer := rlview.Open(cfg.Screen, perf)
		defer viewer.Close()
		if err := attach(sim, append(renderers, viewer), viewer.Models()); err != nil {
			return err
		}
		err = viewer.Run(ctx, advancer(ctx, stop, clock, sim, o.maxTicks))

	case o.view == "term":
		screen, serr := tcell.NewScreen()
		if serr != nil {
			return serr
		}
		if err := screen.Init(); err != nil {
			return err
		}
		defer screen.Fini()
		view := term.New(screen, cfg.Swarm.SpawnExtent*1.5)
		if err := attach(sim, append(renderers, view), nil); err != nil {
			return err
		}
		err = view.Run(ctx, cfg.Screen.TargetFPS, advancer(ctx, stop, clock, sim, o.maxTicks))

	default:
		return fmt.Errorf("unknown view %q", o.view)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := coll.Err(); err != nil {
		logger.Warn("telemetry output failed", "error", err)
	}

	logger.Info("simulation finished",
		"tick", sim.Tick(),
		"sim_time", sim.SimTime().String(),
		"dropped_ticks", clock.Dropped(),
		"digest", sim.Digest(),
	)
	return nil
}

func attach(sim *swarm.Simulation, rs []renderer.Renderer, src renderer.ModelSource) error {
	if len(rs) == 0 {
		return nil
	}
	return sim.Attach(renderer.Multi(rs...), src)
}

// advancer feeds wall time from a view's frame loop into the clock and stops
// the run once maxTicks is reached.
func advancer(ctx context.Context, stop context.CancelFunc, clock *swarm.Clock, sim *swarm.Simulation, maxTicks uint64) func(time.Duration) {
	return func(elapsed time.Duration) {
		clock.Advance(ctx, elapsed)
		if maxTicks > 0 && sim.Tick() >= maxTicks {
			stop()
		}
	}
}

func serve(addr, path string, h http.Handler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("listening", "addr", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http server shutdown failed", "addr", srv.Addr, "error", err)
	}
}
