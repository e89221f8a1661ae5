package overlay

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"plantbot/control"
	"plantbot/logging"
	"plantbot/tracking"
)

func bgr(img gocv.Mat, row, col int) [3]uint8 {
	v := img.GetVecbAt(row, col)
	return [3]uint8{v[0], v[1], v[2]}
}

func blank(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
}

func TestMapViewProjection(t *testing.T) {
	m := NewMapView(1000)
	assert.Equal(t, image.Point{500, 950}, m.Robot())

	tests := []struct {
		name  string
		est   tracking.TargetEstimate
		point image.Point
	}{
		{"straight ahead", tracking.TargetEstimate{DistanceCM: 100}, image.Point{500, 850}},
		{"left of centre", tracking.TargetEstimate{DistanceCM: 200, AngleRad: math.Pi / 6}, image.Point{400, 777}},
		{"right of centre", tracking.TargetEstimate{DistanceCM: 200, AngleRad: -math.Pi / 6}, image.Point{600, 777}},
		{"beyond the map", tracking.TargetEstimate{DistanceCM: 2000}, image.Point{500, -1050}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.point, m.Project(tt.est))
		})
	}
}

func TestMapViewMinimumSize(t *testing.T) {
	assert.Equal(t, 100, NewMapView(0).Size())
	assert.Equal(t, 640, NewMapView(640).Size())
}

func TestMapViewRender(t *testing.T) {
	m := NewMapView(1000)
	img := m.Render([]tracking.TargetEstimate{
		{DistanceCM: 100},
		{DistanceCM: 50000}, // off the map, clipped
	})
	defer img.Close()

	require.Equal(t, 1000, img.Rows())
	require.Equal(t, 1000, img.Cols())

	assert.Equal(t, [3]uint8{255, 0, 0}, bgr(img, 950, 500), "robot")
	assert.Equal(t, [3]uint8{0, 0, 255}, bgr(img, 850, 500), "pot")
	assert.Equal(t, [3]uint8{50, 50, 50}, bgr(img, 10, 100), "grid")
	assert.Equal(t, [3]uint8{0, 0, 0}, bgr(img, 10, 150), "background")
}

func TestRendererDrawsPotBoxAndSpan(t *testing.T) {
	img := blank(640, 480)
	defer img.Close()

	res := tracking.Result{
		Annotations: []tracking.Annotation{{
			Box:   image.Rect(200, 100, 300, 200),
			Label: "pot 0.91 bbox:120cm mask:118cm",
			Pot:   true,
			Span:  [2]image.Point{{210, 180}, {290, 180}},
		}},
	}
	NewRenderer().Draw(img, res, control.Searching)

	assert.Equal(t, [3]uint8{0x28, 0x8a, 0x11}, bgr(img, 150, 300), "box edge")
	assert.Equal(t, [3]uint8{0, 255, 255}, bgr(img, 180, 250), "span line")
	assert.Equal(t, [3]uint8{0, 0, 255}, bgr(img, 180, 210), "left span end")
	assert.Equal(t, [3]uint8{255, 0, 0}, bgr(img, 180, 290), "right span end")
	assert.Equal(t, [3]uint8{0, 0, 0}, bgr(img, 150, 250), "box interior")
}

func TestRendererMarksClosest(t *testing.T) {
	img := blank(640, 480)
	defer img.Close()

	box := image.Rect(200, 100, 300, 200)
	res := tracking.Result{
		Closest:     &tracking.TargetEstimate{DistanceCM: 90, Box: box},
		Annotations: []tracking.Annotation{{Box: box, Label: "pot", Pot: true}},
	}
	NewRenderer().Draw(img, res, control.Approaching)

	assert.Equal(t, [3]uint8{0, 0, 255}, bgr(img, 100, 205), "corner bracket")
	assert.Equal(t, [3]uint8{0, 0, 255}, bgr(img, 150, 250), "crosshair centre")
}

func TestRendererOtherClassLabelBelowTopEdge(t *testing.T) {
	assert.Equal(t, image.Point{10, 62}, labelPos(image.Rect(10, 2, 50, 42), 8))
	assert.Equal(t, image.Point{10, 92}, labelPos(image.Rect(10, 100, 50, 140), 8))

	img := blank(320, 240)
	defer img.Close()
	res := tracking.Result{
		Annotations: []tracking.Annotation{{Box: image.Rect(20, 40, 80, 100), Label: "class 3 0.80"}},
	}
	NewRenderer().Draw(img, res, control.Searching)
	assert.Equal(t, [3]uint8{0, 0, 0}, bgr(img, 90, 30), "box interior")
	assert.NotEqual(t, [3]uint8{0, 0, 0}, bgr(img, 70, 50), "centre dot")
	assert.NotEqual(t, [3]uint8{0, 0, 0}, bgr(img, 70, 80), "box edge")
}

func TestWindowReleasedStopsDrawing(t *testing.T) {
	// no renderer and no HighGUI windows: any drawing past the release
	// check would panic
	w := &Window{log: logging.Nop()}
	w.Release()
	w.Release()

	frame := blank(64, 48)
	defer frame.Close()
	assert.NotPanics(t, func() {
		w.Show(frame, tracking.Result{}, control.Searching)
	})
}
