// Package term draws the swarm top-down in a terminal with tcell.
package term

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/army/camera"
	"github.com/pthm-cable/army/renderer"
	"github.com/pthm-cable/army/units"
)

// Arrows indexed by screen octant, clockwise from east. Screen rows grow with +Z.
var arrows = [8]rune{'→', '↘', '↓', '↙', '←', '↖', '↑', '↗'}

const (
	panStep  = 0.1 // fraction of the visible span
	zoomStep = 1.25
)

// Glyph returns the arrow for a heading as seen from above with +Z down.
func Glyph(yaw float64) rune {
	o := int(math.Round((math.Pi/2 - yaw) / (math.Pi / 4)))
	return arrows[((o%8)+8)%8]
}

// View is a Renderer that draws every agent as a heading arrow in its type's color.
type View struct {
	renderer.Buffers

	screen tcell.Screen
	cam    *camera.Camera
	styles []tcell.Style
	hud    tcell.Style

	tick    uint64
	simTime time.Duration
	paused  bool
}

// New creates a view on an initialized screen showing an extent × extent
// square of the world centered at the origin. Non-positive extents show 200.
func New(screen tcell.Screen, extent float64) *View {
	w, h := screen.Size()
	return &View{
		screen: screen,
		cam:    camera.New(float64(w), float64(h-1), extent),
		hud:    tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true),
	}
}

// Allocate implements renderer.Renderer and derives one style per bucket.
func (v *View) Allocate(buckets []renderer.Bucket) error {
	if err := v.Buffers.Allocate(buckets); err != nil {
		return err
	}
	v.styles = make([]tcell.Style, len(buckets))
	for i, b := range buckets {
		c := b.Model.Color
		v.styles[i] = tcell.StyleDefault.Foreground(tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B)))
	}
	return nil
}

// EndFrame implements renderer.FrameEnder.
func (v *View) EndFrame(tick uint64, simTime time.Duration) {
	v.tick = tick
	v.simTime = simTime
}

// Project maps a world position to a screen cell. Row 0 is the status line.
func (v *View) Project(pos r3.Vec) (x, y int, ok bool) {
	w, h := v.screen.Size()
	v.cam.Resize(float64(w), float64(h-1))
	x, y, ok = v.cam.Cell(pos.X, pos.Z)
	return x, y + 1, ok
}

// CenterOn moves the camera so the world point under screen cell (x, y) is
// at the middle of the view.
func (v *View) CenterOn(x, y int) {
	w, h := v.screen.Size()
	v.cam.Resize(float64(w), float64(h-1))
	wx, wz := v.cam.ScreenToWorld(float64(x)+0.5, float64(y-1)+0.5)
	v.cam.X, v.cam.Z = wx, wz
}

// Camera returns the view's camera.
func (v *View) Camera() *camera.Camera {
	return v.cam
}

// Draw renders the current buffers and status line, then shows the screen.
func (v *View) Draw() {
	v.screen.Clear()

	agents, visible := 0, 0
	minX, minZ, maxX, maxZ := v.cam.VisibleWorldBounds()
	for _, b := range v.Buckets() {
		style := v.styles[b.Type]
		for _, tr := range v.Transforms(b.Type) {
			p := tr.Position
			if p.X < minX || p.X >= maxX || p.Z < minZ || p.Z >= maxZ {
				continue
			}
			if x, y, ok := v.Project(p); ok {
				v.screen.SetContent(x, y, Glyph(tr.Yaw), nil, style)
				visible++
			}
		}
		agents += b.Capacity
		v.TakeDirty(b.Type)
	}

	status := fmt.Sprintf(" tick %d  t=%.1fs  agents %d  visible %d  zoom %.2g  [space] pause  [arrows] pan  [+-0] zoom  [click] center  [q] quit",
		v.tick, v.simTime.Seconds(), agents, visible, v.cam.Zoom)
	if v.paused {
		status += "  PAUSED"
	}
	v.drawText(0, 0, status, v.hud)
	v.screen.Show()
}

func (v *View) drawText(x, y int, s string, style tcell.Style) {
	w, _ := v.screen.Size()
	for _, r := range s {
		if x >= w {
			return
		}
		v.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

// Style returns the style used for a unit type.
func (v *View) Style(t units.TypeID) tcell.Style {
	if int(t) >= len(v.styles) {
		return tcell.StyleDefault
	}
	return v.styles[t]
}

// Run polls input and, fps times a second, calls advance with the elapsed wall
// time and redraws. It returns when ctx is done or the user quits.
func (v *View) Run(ctx context.Context, fps int, advance func(elapsed time.Duration)) error {
	if fps <= 0 {
		fps = 30
	}
	v.screen.EnableMouse()
	defer v.screen.DisableMouse()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go v.screen.ChannelEvents(events, quit)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if v.handleEvent(ev) {
				return nil
			}
		case now := <-ticker.C:
			if !v.paused {
				advance(now.Sub(last))
			}
			last = now
			v.Draw()
		}
	}
}

// handleEvent reports whether the view should close.
func (v *View) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch {
		case ev.Key() == tcell.KeyEscape, ev.Key() == tcell.KeyCtrlC, ev.Rune() == 'q':
			return true
		case ev.Rune() == ' ':
			v.paused = !v.paused
		case ev.Key() == tcell.KeyLeft:
			v.cam.Pan(-panStep, 0)
		case ev.Key() == tcell.KeyRight:
			v.cam.Pan(panStep, 0)
		case ev.Key() == tcell.KeyUp:
			v.cam.Pan(0, -panStep)
		case ev.Key() == tcell.KeyDown:
			v.cam.Pan(0, panStep)
		case ev.Rune() == '+', ev.Rune() == '=':
			v.cam.ZoomBy(zoomStep)
		case ev.Rune() == '-':
			v.cam.ZoomBy(1 / zoomStep)
		case ev.Rune() == '0':
			v.cam.Reset()
		}
	case *tcell.EventMouse:
		if ev.Buttons()&tcell.Button1 != 0 {
			x, y := ev.Position()
			if y > 0 {
				v.CenterOn(x, y)
			}
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return false
}
