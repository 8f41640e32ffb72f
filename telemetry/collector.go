// Package telemetry provides tick timing, swarm statistics, CSV output, metrics and tracing.
package telemetry

import "log/slog"

// Collector accumulates tick samples into windows and produces WindowStats.
// At each window end the stats are logged and written to the output, if set.
type Collector struct {
	windowTicks uint64
	out         *OutputManager
	perf        *PerfCollector
	logger      *slog.Logger
	logStats    bool

	// Current window tracking
	windowStartTick uint64
	ticks           int
	tickTimeSum     float64 // microseconds
	candidates      int
	neighbors       int
	agentTicks      int

	speeds  []float64
	last    WindowStats
	flushes int
	err     error
}

// CollectorOptions configures a Collector. Zero values disable the feature.
type CollectorOptions struct {
	Output   *OutputManager
	Perf     *PerfCollector // perf stats are written alongside each window
	Logger   *slog.Logger
	LogStats bool
}

// NewCollector creates a collector that flushes every windowTicks ticks.
func NewCollector(windowTicks int, opts CollectorOptions) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		windowTicks: uint64(windowTicks),
		out:         opts.Output,
		perf:        opts.Perf,
		logger:      logger,
		logStats:    opts.LogStats,
	}
}

// ObserveTick records one tick and flushes the window when it is full.
func (c *Collector) ObserveTick(s TickSample) {
	c.ticks++
	c.tickTimeSum += float64(s.Duration.Nanoseconds()) / 1e3
	c.candidates += s.Candidates
	c.neighbors += s.Neighbors
	c.agentTicks += len(s.Positions)

	if c.ShouldFlush(s.Tick) {
		c.flush(s)
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

func (c *Collector) flush(s TickSample) {
	var shape shapeStats
	shape, c.speeds = computeShape(s.Positions, s.Velocities, c.speeds)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   s.Tick,
		SimTimeSec:      s.SimTime.Seconds(),
		Agents:          len(s.Positions),
		SpeedMean:       shape.speedMean,
		SpeedStd:        shape.speedStd,
		SpeedP10:        shape.speedP10,
		SpeedP50:        shape.speedP50,
		SpeedP90:        shape.speedP90,
		CentroidX:       shape.centroid.X,
		CentroidZ:       shape.centroid.Z,
		FlockRadius:     shape.flockRadius,
		MaxRadius:       shape.maxRadius,
		Polarization:    shape.polar,
	}
	if c.agentTicks > 0 {
		stats.MeanNeighbors = float64(c.neighbors) / float64(c.agentTicks)
	}
	if c.candidates > 0 {
		stats.GridPrecision = float64(c.neighbors) / float64(c.candidates)
	}
	if c.ticks > 0 {
		stats.MeanTickUS = c.tickTimeSum / float64(c.ticks)
	}

	if c.logStats {
		stats.LogStats(c.logger)
	}
	if err := c.out.WriteTelemetry(stats); err != nil {
		c.fail(err)
	}
	if c.perf != nil {
		ps := c.perf.Stats()
		if c.logStats {
			ps.LogStats(c.logger)
		}
		if err := c.out.WritePerf(ps, s.Tick); err != nil {
			c.fail(err)
		}
	}

	c.last = stats
	c.flushes++
	c.windowStartTick = s.Tick
	c.ticks = 0
	c.tickTimeSum = 0
	c.candidates = 0
	c.neighbors = 0
	c.agentTicks = 0
}

func (c *Collector) fail(err error) {
	if c.err == nil {
		c.logger.Error("telemetry output failed", "error", err)
		c.err = err
	}
}

// Last returns the most recently flushed window and whether one exists.
func (c *Collector) Last() (WindowStats, bool) {
	return c.last, c.flushes > 0
}

// Err returns the first output error, if any.
func (c *Collector) Err() error {
	return c.err
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() uint64 {
	return c.windowTicks
}
