package detection

import (
	"image"
	"math"
)

// Letterbox maps between frame pixels and the square network input. The frame
// is scaled to fit and centred, the rest is padded.
type Letterbox struct {
	Size  int
	Scale float64
	PadX  float64
	PadY  float64
	Frame image.Point
}

// NewLetterbox computes the transform for a frame of the given size
func NewLetterbox(frameW, frameH, inputSize int) Letterbox {
	lb := Letterbox{Size: inputSize, Frame: image.Pt(frameW, frameH)}
	if frameW <= 0 || frameH <= 0 || inputSize <= 0 {
		return lb
	}
	lb.Scale = math.Min(float64(inputSize)/float64(frameW), float64(inputSize)/float64(frameH))
	lb.PadX = (float64(inputSize) - float64(frameW)*lb.Scale) / 2
	lb.PadY = (float64(inputSize) - float64(frameH)*lb.Scale) / 2
	return lb
}

// Content is the scaled frame size inside the network input
func (lb Letterbox) Content() image.Point {
	return image.Pt(int(math.Round(float64(lb.Frame.X)*lb.Scale)), int(math.Round(float64(lb.Frame.Y)*lb.Scale)))
}

// ToFrame converts a normalized centre/size box from the network output into
// a frame rectangle clipped to the frame bounds.
func (lb Letterbox) ToFrame(cx, cy, w, h float64) image.Rectangle {
	if lb.Scale == 0 {
		return image.Rectangle{}
	}
	size := float64(lb.Size)
	x := (cx*size - lb.PadX) / lb.Scale
	y := (cy*size - lb.PadY) / lb.Scale
	bw := w * size / lb.Scale
	bh := h * size / lb.Scale

	r := image.Rect(
		int(math.Round(x-bw/2)), int(math.Round(y-bh/2)),
		int(math.Round(x+bw/2)), int(math.Round(y+bh/2)),
	)
	return r.Intersect(image.Rectangle{Max: lb.Frame})
}

// DecodeRow turns one output row laid out as [cx, cy, w, h, objectness,
// class scores...] into a detection. ok is false when the best class score is
// at or below minConfidence or the box falls outside the frame.
func (lb Letterbox) DecodeRow(row []float32, minConfidence float64) (Detection, bool) {
	if len(row) < 6 {
		return Detection{}, false
	}
	best, classID := float32(-1), -1
	for i, s := range row[5:] {
		if s > best {
			best, classID = s, i
		}
	}
	if float64(best) <= minConfidence {
		return Detection{}, false
	}
	box := lb.ToFrame(float64(row[0]), float64(row[1]), float64(row[2]), float64(row[3]))
	if box.Empty() {
		return Detection{}, false
	}
	return Detection{ClassID: classID, Confidence: float64(best), Box: box}, true
}
