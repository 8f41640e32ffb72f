package swarm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pthm-cable/army/swarm"

// Clock drives a Simulation with a fixed time step. A tick either runs
// completely or not at all; elapsed time that does not fill a step carries
// over to the next Advance.
type Clock struct {
	sim        *Simulation
	step       time.Duration
	maxCatchUp int
	tracer     trace.Tracer

	acc     time.Duration
	dropped int
}

// NewClock creates a clock stepping sim at clock.tick_rate. Observers are
// registered on sim and notified after every tick.
func NewClock(sim *Simulation, observers ...Observer) *Clock {
	cfg := sim.Config()
	sim.AddObserver(observers...)
	return &Clock{
		sim:        sim,
		step:       cfg.Derived.TickDuration,
		maxCatchUp: cfg.Clock.MaxCatchUp,
		tracer:     otel.Tracer(tracerName),
	}
}

// StepDuration returns the simulated time per tick.
func (c *Clock) StepDuration() time.Duration {
	return c.step
}

// Dropped returns how many ticks were skipped because an Advance call was
// further behind than clock.max_catch_up.
func (c *Clock) Dropped() int {
	return c.dropped
}

// Step runs exactly one tick. A tracer whose first span carries no valid
// span context is a noop one and is dropped, so untraced ticks do not allocate.
func (c *Clock) Step(ctx context.Context) {
	if c.tracer == nil {
		c.sim.Step()
		return
	}
	_, span := c.tracer.Start(ctx, "swarm.tick")
	if !span.SpanContext().IsValid() {
		c.tracer = nil
	}
	c.sim.Step()
	if span.IsRecording() {
		st := c.sim.solver.Stats()
		span.SetAttributes(
			attribute.Int64("tick", int64(c.sim.Tick())),
			attribute.Int("candidates", st.Candidates),
			attribute.Int("neighbors", st.Neighbors),
		)
	}
	span.End()
}

// Advance adds elapsed wall time and runs every whole tick it covers, up to
// clock.max_catch_up. Ticks beyond that are dropped. Returns the ticks run.
func (c *Clock) Advance(ctx context.Context, elapsed time.Duration) int {
	if elapsed > 0 {
		c.acc += elapsed
	}
	n := 0
	for c.acc >= c.step && n < c.maxCatchUp {
		c.Step(ctx)
		c.acc -= c.step
		n++
	}
	if c.acc >= c.step {
		c.dropped += int(c.acc / c.step)
		c.acc %= c.step
	}
	return n
}

// Run steps as fast as possible until maxTicks ticks have completed (0 means
// no limit) or ctx is done, in which case ctx's error is returned.
func (c *Clock) Run(ctx context.Context, maxTicks uint64) error {
	for maxTicks == 0 || c.sim.Tick() < maxTicks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.Step(ctx)
	}
	return nil
}

// RunRealtime steps at wall-clock pace until maxTicks ticks have completed
// (0 means no limit) or ctx is done.
func (c *Clock) RunRealtime(ctx context.Context, maxTicks uint64) error {
	ticker := time.NewTicker(c.step)
	defer ticker.Stop()

	last := time.Now()
	for maxTicks == 0 || c.sim.Tick() < maxTicks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.Advance(ctx, now.Sub(last))
			last = now
		}
	}
	return nil
}
