package tracking

import (
	"image"
	"math"
)

// Source records which measurement produced an estimate's distance
type Source int

const (
	SourceBox Source = iota
	SourceMask
)

func (s Source) String() string {
	if s == SourceMask {
		return "mask"
	}
	return "bbox"
}

// TargetEstimate is the localized position of one pot relative to the robot
type TargetEstimate struct {
	DistanceCM float64
	AngleRad   float64
	Source     Source
	Box        image.Rectangle

	BoxDistanceCM  float64
	MaskDistanceCM float64 // +Inf unless Refined
	Refined        bool
	Confidence     float64
}

// DistanceM returns the distance in metres
func (t TargetEstimate) DistanceM() float64 {
	return t.DistanceCM / 100
}

// Ground returns the pot position on the floor plane in metres, x to the
// right and y forward.
func (t TargetEstimate) Ground() (x, y float64) {
	d := t.DistanceM()
	return -d * math.Sin(t.AngleRad), d * math.Cos(t.AngleRad)
}

// Annotation is one labelled box for the diagnostic display
type Annotation struct {
	Box   image.Rectangle
	Label string
	Pot   bool
	// Span is the refined bright span in frame coordinates, zero when the
	// refinement did not run or found nothing.
	Span [2]image.Point
}

// Result is everything localized from one frame
type Result struct {
	Closest     *TargetEstimate
	Estimates   []TargetEstimate
	Annotations []Annotation
}
