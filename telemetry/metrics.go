package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/spatial/r3"
)

// Metrics exposes swarm Prometheus metrics. A nil *Metrics is a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	TickDuration  prometheus.Histogram
	TicksTotal    prometheus.Counter
	Agents        *prometheus.GaugeVec
	MeanSpeed     prometheus.Gauge
	FlockRadius   prometheus.Gauge
	Candidates    prometheus.Gauge
	Neighbors     prometheus.Gauge
	GridPrecision prometheus.Gauge
}

// NewMetrics registers swarm metrics against the provided registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{gatherer: gatherer}
	var err error

	m.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_tick_duration_seconds",
		Help:    "Wall time spent simulating one tick.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.025, 0.05},
	}), "swarm_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	m.TicksTotal, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_ticks_total",
		Help: "Number of completed simulation ticks.",
	}), "swarm_ticks_total")
	if err != nil {
		return nil, err
	}

	m.Agents, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarm_agents",
		Help: "Number of agents by unit type.",
	}, []string{"unit"}), "swarm_agents")
	if err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&m.MeanSpeed, "swarm_mean_speed", "Mean agent speed in units per tick."},
		{&m.FlockRadius, "swarm_flock_radius", "Mean agent distance to the swarm centroid."},
		{&m.Candidates, "swarm_neighbor_candidates", "Grid candidates examined in the last tick."},
		{&m.Neighbors, "swarm_neighbors", "Candidates within perception radius in the last tick."},
		{&m.GridPrecision, "swarm_grid_precision_ratio", "Share of grid candidates that were true neighbors in the last tick."},
	}
	for _, g := range gauges {
		*g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}), g.name)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Gatherer returns the Prometheus gatherer associated with the metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

// Handler returns an HTTP handler serving the registered metrics.
func (m *Metrics) Handler() http.Handler {
	gatherer := m.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetAgents records the agent count of one unit type.
func (m *Metrics) SetAgents(unit string, n int) {
	if m == nil {
		return
	}
	m.Agents.WithLabelValues(unit).Set(float64(n))
}

// ObserveTick records one tick.
func (m *Metrics) ObserveTick(s TickSample) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(s.Duration.Seconds())
	m.TicksTotal.Inc()
	m.Candidates.Set(float64(s.Candidates))
	m.Neighbors.Set(float64(s.Neighbors))
	if s.Candidates > 0 {
		m.GridPrecision.Set(float64(s.Neighbors) / float64(s.Candidates))
	}

	n := len(s.Positions)
	if n == 0 {
		return
	}
	var centroid r3.Vec
	for _, p := range s.Positions {
		centroid = r3.Add(centroid, p)
	}
	centroid = r3.Scale(1/float64(n), centroid)

	var speed, radius float64
	for i, v := range s.Velocities {
		speed += r3.Norm(v)
		radius += r3.Norm(r3.Sub(s.Positions[i], centroid))
	}
	m.MeanSpeed.Set(speed / float64(n))
	m.FlockRadius.Set(radius / float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
