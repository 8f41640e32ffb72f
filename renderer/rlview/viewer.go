// Package rlview draws the swarm in 3D with raylib. Every agent is a rig of
// boxes and spheres tinted by its type, with a walk cycle on the legs.
package rlview

import (
	"context"
	"fmt"
	"sort"
	"time"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/config"
	"github.com/pthm-cable/army/renderer"
	"github.com/pthm-cable/army/telemetry"
)

// Viewer is a Renderer that owns the raylib window.
type Viewer struct {
	renderer.Buffers

	cfg    config.ScreenConfig
	camera rl.Camera3D
	models *Models
	perf   *telemetry.PerfCollector
	gait   renderer.Gait

	tick    uint64
	simTime time.Duration
	paused  bool
	orbit   bool

	stats     telemetry.PerfStats
	statsTick uint64
}

// Open creates the window and the shared meshes. Call Close when done.
func Open(cfg config.ScreenConfig, perf *telemetry.PerfCollector) *Viewer {
	rl.SetConfigFlags(rl.FlagMsaa4xHint | rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Width), int32(cfg.Height), "Army")
	rl.SetTargetFPS(int32(cfg.TargetFPS))

	p := cfg.CameraPosition
	return &Viewer{
		cfg: cfg,
		camera: rl.Camera3D{
			Position:   rl.NewVector3(float32(p[0]), float32(p[1]), float32(p[2])),
			Target:     rl.NewVector3(0, 0, 0),
			Up:         rl.NewVector3(0, 1, 0),
			Fovy:       float32(cfg.FOV),
			Projection: rl.CameraPerspective,
		},
		models: NewModels(),
		perf:   perf,
		gait:   renderer.DefaultGait,
	}
}

// Models returns the ModelSource to attach the viewer with.
func (v *Viewer) Models() *Models {
	return v.models
}

// EndFrame implements renderer.FrameEnder.
func (v *Viewer) EndFrame(tick uint64, simTime time.Duration) {
	v.tick = tick
	v.simTime = simTime
}

// Run draws until the window closes or ctx is done. Each frame advance is
// called with the frame time unless the view is paused.
func (v *Viewer) Run(ctx context.Context, advance func(elapsed time.Duration)) error {
	for !rl.WindowShouldClose() {
		if ctx.Err() != nil {
			return nil
		}
		if rl.IsKeyPressed(rl.KeySpace) {
			v.paused = !v.paused
		}
		if rl.IsKeyPressed(rl.KeyO) {
			v.orbit = !v.orbit
		}
		if !v.paused {
			advance(time.Duration(float64(rl.GetFrameTime()) * float64(time.Second)))
		}
		if v.perf != nil {
			v.perf.RecordFrame()
		}
		v.Draw()
	}
	return nil
}

// Draw renders one frame.
func (v *Viewer) Draw() {
	if v.orbit {
		rl.UpdateCamera(&v.camera, rl.CameraOrbital)
	}

	rl.BeginDrawing()
	rl.ClearBackground(rl.NewColor(30, 32, 36, 255))

	rl.BeginMode3D(v.camera)
	rl.DrawGrid(100, 1)
	v.drawUnits()
	rl.EndMode3D()

	v.drawHUD()
	rl.EndDrawing()
}

func (v *Viewer) drawUnits() {
	for _, b := range v.Buckets() {
		v.TakeDirty(b.Type)
		body, ok := b.Model.Mesh.(*Body)
		if !ok {
			continue
		}
		t := v.simTime.Seconds() * body.Speed
		for _, tr := range v.Transforms(b.Type) {
			for _, part := range body.Parts {
				center := r3.Add(part.Center, v.gait.Offset(t, tr.Position, part.Center))
				rl.DrawMesh(v.models.mesh(part.Shape), body.Material, toMatrix(tr.PartMatrix(center, part.Size)))
			}
		}
	}
}

func (v *Viewer) drawHUD() {
	w := float32(rl.GetScreenWidth())
	h := float32(rl.GetScreenHeight())

	agents := 0
	for _, b := range v.Buckets() {
		agents += b.Capacity
	}
	gui.StatusBar(rl.Rectangle{X: 0, Y: h - 24, Width: w, Height: 24},
		fmt.Sprintf("tick %d   t=%.1fs   agents %d   [space] pause  [o] orbit", v.tick, v.simTime.Seconds(), agents))

	label := "Pause"
	if v.paused {
		label = "Resume"
	}
	if gui.Button(rl.Rectangle{X: w - 130, Y: 10, Width: 120, Height: 30}, label) {
		v.paused = !v.paused
	}

	rl.DrawFPS(10, 10)
	if v.perf == nil {
		return
	}
	if v.tick >= v.statsTick+30 || v.stats.PhasePct == nil {
		v.stats = v.perf.Stats()
		v.statsTick = v.tick
	}
	names := make([]string, 0, len(v.stats.PhasePct))
	for name := range v.stats.PhasePct {
		names = append(names, name)
	}
	sort.Strings(names)

	y := float32(36)
	gui.Label(rl.Rectangle{X: 10, Y: y, Width: 240, Height: 20}, fmt.Sprintf("tick %.2fms", float64(v.stats.AvgTickDuration)/float64(time.Millisecond)))
	for _, name := range names {
		y += 20
		gui.Label(rl.Rectangle{X: 10, Y: y, Width: 240, Height: 20}, fmt.Sprintf("%-13s %5.1f%%", name, v.stats.PhasePct[name]))
	}
}

// Close releases GPU resources and closes the window.
func (v *Viewer) Close() {
	v.models.Unload()
	rl.CloseWindow()
}
