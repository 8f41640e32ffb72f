package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
)

func TestMetricsObserveTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.ObserveTick(sampleAt(1))
	m.ObserveTick(sampleAt(2))

	if got := testutil.ToFloat64(m.TicksTotal); got != 2 {
		t.Errorf("swarm_ticks_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MeanSpeed); got != 0.4 {
		t.Errorf("swarm_mean_speed = %v, want 0.4", got)
	}
	if got := testutil.ToFloat64(m.FlockRadius); got != 2 {
		t.Errorf("swarm_flock_radius = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.GridPrecision); got != 0.5 {
		t.Errorf("swarm_grid_precision_ratio = %v, want 0.5", got)
	}
	if count := histogramSampleCount(t, reg, "swarm_tick_duration_seconds"); count != 2 {
		t.Errorf("swarm_tick_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestMetricsAgentsByUnit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.SetAgents("MELEE", 600)
	m.SetAgents("TANK", 200)

	if got := testutil.ToFloat64(m.Agents.WithLabelValues("MELEE")); got != 600 {
		t.Errorf("swarm_agents{unit=MELEE} = %v, want 600", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		`swarm_agents{unit="MELEE"} 600`,
		`swarm_agents{unit="TANK"} 200`,
		"swarm_ticks_total",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("expected %q in /metrics output", metric)
		}
	}
}

func TestMetricsReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second NewMetrics: %v", err)
	}
	first.TicksTotal.Inc()
	if got := testutil.ToFloat64(second.TicksTotal); got != 1 {
		t.Errorf("re-registered counter = %v, want shared value 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveTick(sampleAt(1))
	m.SetAgents("MELEE", 1)
	if m.Gatherer() != nil {
		t.Error("nil Metrics has a gatherer")
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{Enabled: true, Writer: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(ctx, "swarm.tick")
	span.End()
	ShutdownWithTimeout(ctx, shutdown, nil)

	if !strings.Contains(buf.String(), "swarm.tick") {
		t.Errorf("exported spans = %q, want swarm.tick", buf.String())
	}

	// Restore the noop provider for other tests.
	if _, err := InitTracing(ctx, TracingConfig{}, nil); err != nil {
		t.Fatalf("InitTracing disabled: %v", err)
	}
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Error("InitTracing with unknown exporter succeeded, want error")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return sampleCount(h)
			}
		}
	}
	return 0
}

func sampleCount(h *dto.Histogram) uint64 {
	return h.GetSampleCount()
}
