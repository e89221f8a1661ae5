package geometry

import (
	"image"

	"gocv.io/x/gocv"
)

// Refinement is the bright span found in the lower third of a pot crop.
// Points are in crop coordinates.
type Refinement struct {
	Width int
	Left  image.Point
	Right image.Point
}

// MaskRefine thresholds the lower third of region and measures the span
// between its leftmost and rightmost bright pixels. ok is false when no pixel
// reaches the threshold; the caller then keeps the bounding-box width.
func (e Estimator) MaskRefine(region gocv.Mat) (Refinement, bool) {
	if region.Empty() {
		return Refinement{}, false
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if region.Channels() == 1 {
		region.CopyTo(&gray)
	} else {
		gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
	}

	return BrightSpan(gray.Rows(), gray.Cols(), gray.GetUCharAt, e.cfg.MaskThreshold)
}

// BrightSpan scans the lower third of a rows x cols luma grid for values at or
// above threshold.
func BrightSpan(rows, cols int, luma func(row, col int) uint8, threshold uint8) (Refinement, bool) {
	start := rows * 2 / 3
	left, right := image.Point{X: cols}, image.Point{X: -1}
	for r := start; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if luma(r, c) < threshold {
				continue
			}
			if c < left.X {
				left = image.Pt(c, r)
			}
			if c > right.X {
				right = image.Pt(c, r)
			}
		}
	}
	if right.X < 0 {
		return Refinement{}, false
	}
	return Refinement{Width: right.X - left.X, Left: left, Right: right}, true
}
