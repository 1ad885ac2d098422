// Package viewport owns zoom and pan of the image preview and keeps trap
// markers anchored to image-relative coordinates at a constant screen size.
//
// Zoom has no floor or ceiling. Very large or small values are allowed.
package viewport

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

const (
	ZoomStep           = 1.25
	WheelZoomInFactor  = 1.1
	WheelZoomOutFactor = 0.9
	DoubleClickFactor  = 2.0

	MarkerSize       = 24.0
	ActiveMarkerSize = 32.0
)

// Presets are the absolute zoom levels offered as buttons.
var Presets = []float64{0.5, 1, 2, 4}

var ErrNotPreset = errors.New("zoom is not a preset value")

// Point in screen pixels unless stated otherwise.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Viewport state of one preview pane.
type Viewport struct {
	Zoom     float64 `json:"zoom"`
	Pan      Point   `json:"pan"`
	Dragging bool    `json:"dragging"`

	anchor Point
}

// New returns the reset state: zoom 1, no pan.
func New() Viewport {
	return Viewport{Zoom: 1}
}

func (v *Viewport) ZoomIn()      { v.Zoom *= ZoomStep }
func (v *Viewport) ZoomOut()     { v.Zoom /= ZoomStep }
func (v *Viewport) DoubleClick() { v.Zoom *= DoubleClickFactor }

// Wheel zooms only while the modifier key is held, so plain scrolling still
// scrolls the page. A positive deltaY zooms out. Reports whether zoom changed.
func (v *Viewport) Wheel(deltaY float64, modifier bool) bool {
	if !modifier {
		return false
	}
	if deltaY > 0 {
		v.Zoom *= WheelZoomOutFactor
	} else {
		v.Zoom *= WheelZoomInFactor
	}
	return true
}

// SetPreset jumps to one of Presets, ignoring the current zoom.
func (v *Viewport) SetPreset(zoom float64) error {
	for _, p := range Presets {
		if p == zoom {
			v.Zoom = zoom
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrNotPreset, zoom)
}

// BeginDrag starts panning when the primary button is down.
func (v *Viewport) BeginDrag(pointer Point, primary bool) bool {
	if !primary {
		return false
	}
	v.Dragging = true
	v.anchor = pointer.Sub(v.Pan)
	return true
}

// DragTo keeps the point grabbed at drag start under the pointer.
func (v *Viewport) DragTo(pointer Point) bool {
	if !v.Dragging {
		return false
	}
	v.Pan = pointer.Sub(v.anchor)
	return true
}

func (v *Viewport) EndDrag() {
	v.Dragging = false
}

func (v *Viewport) Reset() {
	*v = New()
}

// ImageTransform is the effective screen transform of the image container.
// CSS applies scale(z) translate(pan/z), which maps p to z*p + pan.
func (v Viewport) ImageTransform() Affine {
	return Affine{Scale: v.Zoom, OffsetX: v.Pan.X, OffsetY: v.Pan.Y}
}

// CSS renders the container transform.
func (v Viewport) CSS() string {
	return "scale(" + num(v.Zoom) + ") translate(" + num(v.Pan.X/v.Zoom) + "px, " + num(v.Pan.Y/v.Zoom) + "px)"
}

// Marker is the placement of one trap marker inside the scaled image container.
type Marker struct {
	TrapID      string              `json:"trapId"`
	Severity    evaluation.Severity `json:"severity"`
	LeftPercent float64             `json:"leftPercent"`
	TopPercent  float64             `json:"topPercent"`
	Size        float64             `json:"size"`
	Scale       float64             `json:"scale"`
	Active      bool                `json:"active"`
	CSS         string              `json:"css"`
}

// LocalTransform is the marker's own scale around its center.
func (m Marker) LocalTransform() Affine {
	return Affine{Scale: m.Scale}
}

// ScreenSize is the rendered size after the parent's zoom and the local counter-scale.
func (m Marker) ScreenSize(parent Affine) float64 {
	return m.Size * Compose(parent, m.LocalTransform()).Scale
}

// ScreenCenter maps the marker anchor to screen space for an image box of w x h.
// Scaling around the center leaves the center in place, so only the parent applies.
func (m Marker) ScreenCenter(parent Affine, w, h float64) Point {
	return parent.Apply(Point{X: m.LeftPercent / 100 * w, Y: m.TopPercent / 100 * h})
}

// Markers places every trap. Positions stay in percent; only size is compensated.
func (v Viewport) Markers(traps []evaluation.Trap, activeID string) []Marker {
	out := make([]Marker, 0, len(traps))
	inv := 1 / v.Zoom
	for _, t := range traps {
		size := MarkerSize
		active := activeID != "" && t.ID == activeID
		if active {
			size = ActiveMarkerSize
		}
		out = append(out, Marker{
			TrapID:      t.ID,
			Severity:    t.Severity,
			LeftPercent: t.Location.X,
			TopPercent:  t.Location.Y,
			Size:        size,
			Scale:       inv,
			Active:      active,
			CSS:         "translate(-50%, -50%) scale(" + num(inv) + ")",
		})
	}
	return out
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
