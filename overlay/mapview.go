package overlay

import (
	"image"
	"image/color"
	"math"

	"plantbot/tracking"

	"gocv.io/x/gocv"
)

// PixelsPerMetre is the map scale; one grid cell is one metre
const PixelsPerMetre = 100

var (
	gridColor  = color.RGBA{R: 50, G: 50, B: 50, A: 255}
	robotColor = color.RGBA{B: 255, A: 255}
	potColor   = color.RGBA{R: 255, A: 255}
)

// MapView renders a top-down local map with the robot at the bottom centre
type MapView struct {
	size int
}

// NewMapView returns a square map of size pixels. Sizes below 100 are raised
// to 100.
func NewMapView(size int) *MapView {
	if size < 100 {
		size = 100
	}
	return &MapView{size: size}
}

// Size returns the side length in pixels
func (m *MapView) Size() int { return m.size }

// Robot returns the robot position on the map
func (m *MapView) Robot() image.Point {
	return image.Point{m.size / 2, m.size - 50}
}

// Project maps a pot estimate to map pixels. Positions outside the map are
// returned as-is; drawing clips them.
func (m *MapView) Project(t tracking.TargetEstimate) image.Point {
	x, y := t.Ground()
	r := m.Robot()
	return image.Point{
		X: r.X + int(math.Round(x*PixelsPerMetre)),
		Y: r.Y - int(math.Round(y*PixelsPerMetre)),
	}
}

// Render draws a fresh map for the given estimates. The caller owns the
// returned Mat.
func (m *MapView) Render(estimates []tracking.TargetEstimate) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), m.size, m.size, gocv.MatTypeCV8UC3)

	for p := 0; p < m.size; p += PixelsPerMetre {
		gocv.Line(&img, image.Point{p, 0}, image.Point{p, m.size}, gridColor, 1)
		gocv.Line(&img, image.Point{0, p}, image.Point{m.size, p}, gridColor, 1)
	}

	gocv.Circle(&img, m.Robot(), 10, robotColor, -1)
	for _, t := range estimates {
		gocv.Circle(&img, m.Project(t), 5, potColor, -1)
	}
	return img
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }
