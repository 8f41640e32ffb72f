package telemetry

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/config"
)

func sampleAt(tick uint64) TickSample {
	return TickSample{
		Tick:       tick,
		SimTime:    time.Duration(tick) * time.Second / 60,
		Duration:   500 * time.Microsecond,
		Positions:  []r3.Vec{{X: -2}, {X: 2}},
		Velocities: []r3.Vec{{Z: 0.4}, {Z: 0.4}},
		Candidates: 4,
		Neighbors:  2,
	}
}

func TestCollectorFlushesEveryWindow(t *testing.T) {
	c := NewCollector(10, CollectorOptions{})

	for tick := uint64(1); tick <= 9; tick++ {
		c.ObserveTick(sampleAt(tick))
	}
	if _, ok := c.Last(); ok {
		t.Fatal("window flushed before it was full")
	}

	c.ObserveTick(sampleAt(10))
	stats, ok := c.Last()
	if !ok {
		t.Fatal("window not flushed at tick 10")
	}
	if stats.WindowStartTick != 0 || stats.WindowEndTick != 10 {
		t.Errorf("window = [%d, %d], want [0, 10]", stats.WindowStartTick, stats.WindowEndTick)
	}
	if stats.Agents != 2 {
		t.Errorf("Agents = %d, want 2", stats.Agents)
	}
	if stats.MeanNeighbors != 1 {
		t.Errorf("MeanNeighbors = %v, want 1", stats.MeanNeighbors)
	}
	if stats.GridPrecision != 0.5 {
		t.Errorf("GridPrecision = %v, want 0.5", stats.GridPrecision)
	}
	if stats.MeanTickUS != 500 {
		t.Errorf("MeanTickUS = %v, want 500", stats.MeanTickUS)
	}
	if stats.FlockRadius != 2 {
		t.Errorf("FlockRadius = %v, want 2", stats.FlockRadius)
	}
	if c.ShouldFlush(15) {
		t.Error("ShouldFlush(15) = true right after a flush at 10")
	}
	if !c.ShouldFlush(20) {
		t.Error("ShouldFlush(20) = false, want true")
	}
}

func TestCollectorLogsStats(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := NewCollector(1, CollectorOptions{Logger: logger, LogStats: true})

	c.ObserveTick(sampleAt(1))

	out := buf.String()
	if !strings.Contains(out, `"msg":"stats"`) || !strings.Contains(out, "flock_radius") {
		t.Errorf("log output = %s, want stats record with flock_radius", out)
	}
}

func TestCollectorWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	perf := NewPerfCollector(4)
	perf.StartTick()
	perf.StartPhase(PhaseSteering)
	perf.EndTick()

	c := NewCollector(5, CollectorOptions{Output: om, Perf: perf})
	for tick := uint64(1); tick <= 15; tick++ {
		c.ObserveTick(sampleAt(tick))
	}
	if err := c.Err(); err != nil {
		t.Fatalf("collector error: %v", err)
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var rows []WindowStats
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		t.Fatalf("reading stats.csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("stats.csv has %d rows, want 3", len(rows))
	}
	for i, want := range []uint64{5, 10, 15} {
		if rows[i].WindowEndTick != want {
			t.Errorf("row %d window_end = %d, want %d", i, rows[i].WindowEndTick, want)
		}
	}

	perfCSV, err := os.ReadFile(filepath.Join(dir, "perf.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(perfCSV)), "\n")
	if len(lines) != 4 {
		t.Errorf("perf.csv has %d lines, want header + 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "window_end,") {
		t.Errorf("perf.csv header = %q", lines[0])
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}
}

func TestNilOutputManager(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v, want nil, nil", om, err)
	}
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Errorf("WriteTelemetry on nil = %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("Close on nil = %v", err)
	}
	if om.Dir() != "" {
		t.Errorf("Dir() on nil = %q", om.Dir())
	}
}
