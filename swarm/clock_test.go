package swarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/telemetry"
)

func TestClockAdvance(t *testing.T) {
	s := newSim(t, testConfig(20, config.UpdateSnapshot))
	c := NewClock(s)
	ctx := context.Background()
	step := c.StepDuration()

	if step != time.Second/60 {
		t.Fatalf("StepDuration = %v, want 1/60 s", step)
	}

	tests := []struct {
		elapsed  time.Duration
		wantRun  int
		wantTick uint64
	}{
		{step / 2, 0, 0},
		{step / 2, 1, 1},
		{3 * step, 3, 4},
		{0, 0, 4},
		{-time.Second, 0, 4},
		{time.Second, 5, 9}, // capped at max_catch_up
		{step, 1, 10},
	}
	for i, tt := range tests {
		if got := c.Advance(ctx, tt.elapsed); got != tt.wantRun {
			t.Errorf("step %d: Advance(%v) = %d, want %d", i, tt.elapsed, got, tt.wantRun)
		}
		if got := s.Tick(); got != tt.wantTick {
			t.Errorf("step %d: Tick = %d, want %d", i, got, tt.wantTick)
		}
	}
	if c.Dropped() == 0 {
		t.Error("Dropped = 0 after falling a second behind")
	}
	if got, want := s.SimTime(), 10*step; got != want {
		t.Errorf("SimTime = %v, want %v", got, want)
	}
}

func TestClockRunStopsAtMaxTicks(t *testing.T) {
	s := newSim(t, testConfig(20, config.UpdateSnapshot))
	c := NewClock(s)

	if err := c.Run(context.Background(), 7); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Tick() != 7 {
		t.Errorf("Tick = %d, want 7", s.Tick())
	}
}

func TestClockRunCancelled(t *testing.T) {
	s := newSim(t, testConfig(20, config.UpdateSnapshot))
	c := NewClock(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if err := c.RunRealtime(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("RunRealtime error = %v, want context.Canceled", err)
	}
	if s.Tick() != 0 {
		t.Errorf("Tick = %d after cancelled runs, want 0", s.Tick())
	}
}

func TestClockRunRealtime(t *testing.T) {
	cfg := testConfig(20, config.UpdateSnapshot)
	cfg.Clock.TickRate = 500
	s := newSim(t, cfg)
	c := NewClock(s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.RunRealtime(ctx, 3); err != nil {
		t.Fatalf("RunRealtime: %v", err)
	}
	if s.Tick() < 3 {
		t.Errorf("Tick = %d, want at least 3", s.Tick())
	}
}

func TestClockNotifiesObservers(t *testing.T) {
	s := newSim(t, testConfig(50, config.UpdateSnapshot))

	var ticks []uint64
	var agents int
	obs := ObserverFunc(func(sample telemetry.TickSample) {
		ticks = append(ticks, sample.Tick)
		agents = len(sample.Positions)
	})
	c := NewClock(s, obs, nil)

	if err := c.Run(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 3 || ticks[0] != 1 || ticks[2] != 3 {
		t.Errorf("observed ticks = %v, want [1 2 3]", ticks)
	}
	if agents != 50 {
		t.Errorf("sample held %d agents, want 50", agents)
	}
}

func TestClockCollectorWindow(t *testing.T) {
	s := newSim(t, testConfig(80, config.UpdateSnapshot))
	coll := telemetry.NewCollector(10, telemetry.CollectorOptions{Logger: quietLogger()})
	c := NewClock(s, coll)

	if err := c.Run(context.Background(), 25); err != nil {
		t.Fatal(err)
	}
	stats, ok := coll.Last()
	if !ok {
		t.Fatal("collector never flushed")
	}
	if stats.Agents != 80 || stats.WindowEndTick != 20 {
		t.Errorf("last window = %+v, want 80 agents ending at tick 20", stats)
	}
	if stats.SpeedMean <= 0 || stats.GridPrecision <= 0 || stats.GridPrecision > 1 {
		t.Errorf("implausible stats %+v", stats)
	}
}

func TestClockTracesTicks(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(noop.NewTracerProvider())
	})

	s := newSim(t, testConfig(30, config.UpdateSnapshot))
	c := NewClock(s)
	if err := c.Run(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	for i, sp := range spans {
		if sp.Name != "swarm.tick" {
			t.Errorf("span %d name = %q", i, sp.Name)
		}
		var tick int64
		for _, kv := range sp.Attributes {
			if kv.Key == "tick" {
				tick = kv.Value.AsInt64()
			}
		}
		if tick != int64(i+1) {
			t.Errorf("span %d tick = %d, want %d", i, tick, i+1)
		}
	}
}

func TestClockStepDoesNotAllocate(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	for _, mode := range []string{config.UpdateSnapshot, config.UpdateSequential} {
		t.Run(mode, func(t *testing.T) {
			s := newSim(t, testConfig(1000, mode))
			c := NewClock(s)
			ctx := context.Background()
			c.Step(ctx)

			allocs := testing.AllocsPerRun(50, func() { c.Step(ctx) })
			if allocs != 0 {
				t.Errorf("Clock.Step allocated %v times per tick, want 0", allocs)
			}
		})
	}
}
