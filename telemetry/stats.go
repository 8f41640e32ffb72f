package telemetry

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/army/units"
)

// TickSample is a read-only view of the swarm right after a tick.
// The slices alias simulation buffers and are only valid during the call
// that received the sample.
type TickSample struct {
	Tick       uint64
	SimTime    time.Duration
	Duration   time.Duration // wall time spent in the tick
	Positions  []r3.Vec
	Velocities []r3.Vec
	Types      []units.TypeID
	Candidates int // grid candidates examined
	Neighbors  int // candidates within perception radius
}

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick uint64  `csv:"-"`
	WindowEndTick   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	Agents          int     `csv:"agents"`

	// Speed distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Flock shape (sampled at window end)
	CentroidX    float64 `csv:"centroid_x"`
	CentroidZ    float64 `csv:"centroid_z"`
	FlockRadius  float64 `csv:"flock_radius"` // mean distance to centroid
	MaxRadius    float64 `csv:"max_radius"`
	Polarization float64 `csv:"polarization"` // |mean heading vector|, 1 = all aligned

	// Averaged over the window
	MeanNeighbors float64 `csv:"mean_neighbors"` // per agent per tick
	GridPrecision float64 `csv:"grid_precision"` // neighbors / candidates
	MeanTickUS    float64 `csv:"mean_tick_us"`
}

// shapeStats holds the end-of-window portion of WindowStats.
type shapeStats struct {
	speedMean, speedStd           float64
	speedP10, speedP50, speedP90  float64
	centroid                      r3.Vec
	flockRadius, maxRadius, polar float64
}

// computeShape fills the end-of-window statistics. speeds is scratch space
// and is returned grown to len(velocities).
func computeShape(positions, velocities []r3.Vec, speeds []float64) (shapeStats, []float64) {
	var s shapeStats
	n := len(positions)
	if n == 0 {
		return s, speeds
	}

	speeds = slices.Grow(speeds[:0], n)
	var heading r3.Vec
	for i, v := range velocities {
		sp := r3.Norm(v)
		speeds = append(speeds, sp)
		if sp > 0 {
			heading = r3.Add(heading, r3.Scale(1/sp, v))
		}
		s.centroid = r3.Add(s.centroid, positions[i])
	}
	inv := 1 / float64(n)
	s.centroid = r3.Scale(inv, s.centroid)
	s.polar = r3.Norm(heading) * inv

	for _, p := range positions {
		d := r3.Norm(r3.Sub(p, s.centroid))
		s.flockRadius += d
		s.maxRadius = math.Max(s.maxRadius, d)
	}
	s.flockRadius *= inv

	if n > 1 {
		s.speedMean, s.speedStd = stat.MeanStdDev(speeds, nil)
	} else {
		s.speedMean = speeds[0]
	}
	slices.Sort(speeds)
	s.speedP10 = stat.Quantile(0.10, stat.Empirical, speeds, nil)
	s.speedP50 = stat.Quantile(0.50, stat.Empirical, speeds, nil)
	s.speedP90 = stat.Quantile(0.90, stat.Empirical, speeds, nil)

	return s, speeds
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("agents", s.Agents),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("centroid_x", s.CentroidX),
		slog.Float64("centroid_z", s.CentroidZ),
		slog.Float64("flock_radius", s.FlockRadius),
		slog.Float64("max_radius", s.MaxRadius),
		slog.Float64("polarization", s.Polarization),
		slog.Float64("mean_neighbors", s.MeanNeighbors),
		slog.Float64("grid_precision", s.GridPrecision),
		slog.Float64("mean_tick_us", s.MeanTickUS),
	)
}

// LogStats logs the window stats.
func (s WindowStats) LogStats(logger *slog.Logger) {
	logger.Info("stats", "window", s)
}
