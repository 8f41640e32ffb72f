// Package camera provides a top-down 2D camera over the XZ ground plane.
package camera

// Camera maps world X/Z to viewport cells. X grows right and Z grows down.
// Cells need not be square: at zoom 1 the viewport spans Extent world units
// on both axes.
type Camera struct {
	// Center of the view in world coordinates
	X, Z float64

	// Zoom level (1.0 shows Extent units across, 2.0 half that)
	Zoom float64

	// World units across the viewport at zoom 1
	Extent float64

	// Viewport dimensions in cells
	ViewportW, ViewportH float64

	MinZoom, MaxZoom float64
}

// New creates a camera centered on the origin with 1:1 zoom.
func New(viewportW, viewportH, extent float64) *Camera {
	if extent <= 0 {
		extent = 200
	}
	return &Camera{
		Zoom:      1.0,
		Extent:    extent,
		ViewportW: viewportW,
		ViewportH: viewportH,
		MinZoom:   0.25,
		MaxZoom:   16,
	}
}

func (c *Camera) span() float64 {
	return c.Extent / c.Zoom
}

// WorldToScreen converts world coordinates to viewport coordinates.
func (c *Camera) WorldToScreen(wx, wz float64) (sx, sy float64) {
	s := c.span()
	sx = c.ViewportW/2 + (wx-c.X)/s*c.ViewportW
	sy = c.ViewportH/2 + (wz-c.Z)/s*c.ViewportH
	return sx, sy
}

// ScreenToWorld converts viewport coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float64) (wx, wz float64) {
	s := c.span()
	wx = c.X + (sx-c.ViewportW/2)/c.ViewportW*s
	wz = c.Z + (sy-c.ViewportH/2)/c.ViewportH*s
	return wx, wz
}

// Cell returns the viewport cell containing a world point and whether it is
// inside the viewport.
func (c *Camera) Cell(wx, wz float64) (x, y int, ok bool) {
	if c.ViewportW <= 0 || c.ViewportH <= 0 {
		return 0, 0, false
	}
	sx, sy := c.WorldToScreen(wx, wz)
	if sx < 0 || sy < 0 || sx >= c.ViewportW || sy >= c.ViewportH {
		return 0, 0, false
	}
	return int(sx), int(sy), true
}

// Resize updates the viewport dimensions.
func (c *Camera) Resize(viewportW, viewportH float64) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH
}

// Pan moves the camera by a fraction of the visible span on each axis.
func (c *Camera) Pan(fx, fz float64) {
	s := c.span()
	c.X += fx * s
	c.Z += fz * s
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float64) {
	c.Zoom = min(max(zoom, c.MinZoom), c.MaxZoom)
}

// ZoomBy multiplies the current zoom by the given factor.
func (c *Camera) ZoomBy(factor float64) {
	c.SetZoom(c.Zoom * factor)
}

// Reset returns the camera to the origin at zoom 1.
func (c *Camera) Reset() {
	c.X, c.Z = 0, 0
	c.Zoom = 1.0
}

// VisibleWorldBounds returns the world-coordinate bounds of the visible area.
func (c *Camera) VisibleWorldBounds() (minX, minZ, maxX, maxZ float64) {
	half := c.span() / 2
	return c.X - half, c.Z - half, c.X + half, c.Z + half
}
