// Package tracking turns detector output into at most one closest pot per
// frame. It keeps no state between frames.
package tracking

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"plantbot/detection"
	"plantbot/geometry"
	"plantbot/logging"
)

// ErrInvalidBox reports a detection box that is empty, inverted or entirely
// outside the frame.
var ErrInvalidBox = errors.New("invalid detection box")

// Localizer estimates distance and bearing for pot detections
type Localizer struct {
	est geometry.Estimator
	log *logging.Logger
}

// NewLocalizer returns a Localizer using est for all measurements
func NewLocalizer(est geometry.Estimator) *Localizer {
	return &Localizer{est: est, log: logging.Named("LOCALIZE")}
}

// Localize measures every confident pot detection in frame and picks the
// nearest one. Detections of other classes only produce annotations.
func (l *Localizer) Localize(frame gocv.Mat, dets []detection.Detection) Result {
	var res Result
	cfg := l.est.Config()
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	for _, d := range dets {
		if d.Confidence <= cfg.ConfidenceThreshold {
			continue
		}
		if d.ClassID != cfg.PotClassID {
			res.Annotations = append(res.Annotations, Annotation{
				Box:   d.Box,
				Label: fmt.Sprintf("class %d %.2f", d.ClassID, d.Confidence),
			})
			continue
		}

		est, span, err := l.measure(frame, bounds, d)
		if err != nil {
			l.log.Debug().Err(err).Stringer("detection", d).Msg("dropping pot detection")
			continue
		}

		res.Annotations = append(res.Annotations, Annotation{
			Box:   est.Box,
			Label: label(est),
			Pot:   true,
			Span:  span,
		})
		res.Estimates = append(res.Estimates, est)
		if res.Closest == nil || est.DistanceCM < res.Closest.DistanceCM {
			c := est
			res.Closest = &c
		}
	}
	return res
}

func (l *Localizer) measure(frame gocv.Mat, bounds image.Rectangle, d detection.Detection) (TargetEstimate, [2]image.Point, error) {
	var span [2]image.Point
	if d.Box.Empty() || !d.Box.Overlaps(bounds) {
		return TargetEstimate{}, span, fmt.Errorf("%w: %v in %v", ErrInvalidBox, d.Box, bounds)
	}
	box := d.Box.Intersect(bounds)
	cfg := l.est.Config()

	boxDist, err := l.est.Distance(float64(box.Dx()), false)
	if err != nil {
		return TargetEstimate{}, span, fmt.Errorf("bbox distance: %w", err)
	}

	est := TargetEstimate{
		DistanceCM:     boxDist,
		Source:         SourceBox,
		Box:            box,
		BoxDistanceCM:  boxDist,
		MaskDistanceCM: geometry.Unknown,
		Confidence:     d.Confidence,
	}

	region := frame.Region(box)
	ref, ok := l.est.MaskRefine(region)
	region.Close()
	if ok {
		est.Refined = true
		// a zero-width span leaves the mask distance unknown
		est.MaskDistanceCM, _ = l.est.Distance(float64(ref.Width), true)
		est.DistanceCM = est.MaskDistanceCM
		est.Source = SourceMask
		span = [2]image.Point{ref.Left.Add(box.Min), ref.Right.Add(box.Min)}
	}

	// the refinement saturates up close
	if boxDist < cfg.NearFieldCutoffCM {
		est.DistanceCM = boxDist
		est.Source = SourceBox
	}
	if geometry.IsUnknown(est.DistanceCM) {
		return TargetEstimate{}, span, fmt.Errorf("mask distance: %w", geometry.ErrInvalidWidth)
	}

	centerX := float64(box.Min.X+box.Max.X) / 2
	est.AngleRad = l.est.Angle(centerX, float64(bounds.Dx()))
	return est, span, nil
}

func label(e TargetEstimate) string {
	s := fmt.Sprintf("pot %.2f bbox:%.0fcm", e.Confidence, e.BoxDistanceCM)
	if e.Refined && !geometry.IsUnknown(e.MaskDistanceCM) {
		s += fmt.Sprintf(" mask:%.0fcm", e.MaskDistanceCM)
	}
	return s
}
