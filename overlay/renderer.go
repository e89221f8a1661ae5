// Package overlay draws the diagnostic views: the annotated camera frame and
// a top-down map of the localized pots.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"plantbot/control"
	"plantbot/tracking"

	"gocv.io/x/gocv"
)

// Renderer draws localization results onto camera frames
type Renderer struct {
	potColor     color.RGBA
	otherColor   color.RGBA
	closestColor color.RGBA
	spanColor    color.RGBA
	statusColor  color.RGBA
}

// NewRenderer returns a renderer with the default palette
func NewRenderer() *Renderer {
	return &Renderer{
		potColor:     color.RGBA{R: 0x11, G: 0x8a, B: 0x28, A: 255}, // #118a28
		otherColor:   color.RGBA{R: 0x00, G: 0x7f, B: 0xff, A: 180},
		closestColor: color.RGBA{R: 255, G: 0, B: 0, A: 255},
		spanColor:    color.RGBA{R: 255, G: 255, B: 0, A: 255},
		statusColor:  color.RGBA{R: 0, G: 255, B: 0, A: 255},
	}
}

// Draw annotates img in place with every box of res and the current phase
func (r *Renderer) Draw(img gocv.Mat, res tracking.Result, phase control.Phase) {
	for _, a := range res.Annotations {
		if a.Pot {
			r.drawPot(img, a)
		} else {
			r.drawOther(img, a)
		}
	}

	if res.Closest != nil {
		r.drawCornerBrackets(img, res.Closest.Box, r.closestColor, 2, 15)
		r.drawCrosshair(img, center(res.Closest.Box), r.closestColor)
	}

	status := phase.String()
	if res.Closest != nil {
		status = fmt.Sprintf("%s  %.2fm  %+.1fdeg", status, res.Closest.DistanceM(), deg(res.Closest.AngleRad))
	}
	gocv.PutText(&img, status, image.Point{10, 25}, gocv.FontHersheySimplex, 0.6, r.statusColor, 2)
}

func (r *Renderer) drawPot(img gocv.Mat, a tracking.Annotation) {
	gocv.Rectangle(&img, a.Box, r.potColor, 2)

	if a.Span[0] != a.Span[1] {
		gocv.Line(&img, a.Span[0], a.Span[1], r.spanColor, 1)
		gocv.Circle(&img, a.Span[0], 5, color.RGBA{R: 255, A: 255}, -1)
		gocv.Circle(&img, a.Span[1], 5, color.RGBA{B: 255, A: 255}, -1)
	}

	gocv.PutText(&img, a.Label, labelPos(a.Box, 10), gocv.FontHersheySimplex, 0.5, r.potColor, 2)
}

func (r *Renderer) drawOther(img gocv.Mat, a tracking.Annotation) {
	gocv.Rectangle(&img, a.Box, r.otherColor, 2)
	gocv.Circle(&img, center(a.Box), 3, r.otherColor, -1)
	gocv.PutText(&img, a.Label, labelPos(a.Box, 8), gocv.FontHersheySimplex, 0.4, r.otherColor, 1)
}

// labelPos puts the label above the box, or below it when the box touches
// the top edge.
func labelPos(rect image.Rectangle, above int) image.Point {
	p := image.Point{rect.Min.X, rect.Min.Y - above}
	if p.Y < 15 {
		p.Y = rect.Max.Y + 20
	}
	return p
}

func center(rect image.Rectangle) image.Point {
	return image.Point{rect.Min.X + rect.Dx()/2, rect.Min.Y + rect.Dy()/2}
}

func (r *Renderer) drawCrosshair(img gocv.Mat, c image.Point, col color.RGBA) {
	const (
		size      = 12
		gap       = 3
		thickness = 2
	)
	gocv.Line(&img, image.Point{c.X - size, c.Y}, image.Point{c.X - gap, c.Y}, col, thickness)
	gocv.Line(&img, image.Point{c.X + gap, c.Y}, image.Point{c.X + size, c.Y}, col, thickness)
	gocv.Line(&img, image.Point{c.X, c.Y - size}, image.Point{c.X, c.Y - gap}, col, thickness)
	gocv.Line(&img, image.Point{c.X, c.Y + gap}, image.Point{c.X, c.Y + size}, col, thickness)
	gocv.Circle(&img, c, 2, col, -1)
}

func (r *Renderer) drawCornerBrackets(img gocv.Mat, rect image.Rectangle, col color.RGBA, thickness, length int) {
	// top-left
	gocv.Line(&img, rect.Min, image.Point{rect.Min.X + length, rect.Min.Y}, col, thickness)
	gocv.Line(&img, rect.Min, image.Point{rect.Min.X, rect.Min.Y + length}, col, thickness)

	// top-right
	gocv.Line(&img, image.Point{rect.Max.X, rect.Min.Y}, image.Point{rect.Max.X - length, rect.Min.Y}, col, thickness)
	gocv.Line(&img, image.Point{rect.Max.X, rect.Min.Y}, image.Point{rect.Max.X, rect.Min.Y + length}, col, thickness)

	// bottom-left
	gocv.Line(&img, image.Point{rect.Min.X, rect.Max.Y}, image.Point{rect.Min.X + length, rect.Max.Y}, col, thickness)
	gocv.Line(&img, image.Point{rect.Min.X, rect.Max.Y}, image.Point{rect.Min.X, rect.Max.Y - length}, col, thickness)

	// bottom-right
	gocv.Line(&img, rect.Max, image.Point{rect.Max.X - length, rect.Max.Y}, col, thickness)
	gocv.Line(&img, rect.Max, image.Point{rect.Max.X, rect.Max.Y - length}, col, thickness)
}
