// Package geometry converts pixel measurements of a pot into a physical
// distance and bearing. Everything here is stateless.
package geometry

import (
	"errors"
	"math"

	"plantbot/config"
)

// ErrInvalidWidth reports a pixel width that cannot produce a distance
var ErrInvalidWidth = errors.New("pixel width must be positive")

// Unknown is the distance returned alongside ErrInvalidWidth. It is never a
// usable estimate.
var Unknown = math.Inf(1)

// IsUnknown reports whether d carries no usable estimate
func IsUnknown(d float64) bool {
	return math.IsInf(d, 0) || math.IsNaN(d)
}

// Estimator applies the pinhole model with the deployment constants
type Estimator struct {
	cfg config.Geometry
}

// New returns an Estimator for cfg
func New(cfg config.Geometry) Estimator {
	return Estimator{cfg: cfg}
}

// Config returns the constants the estimator was built with
func (e Estimator) Config() config.Geometry {
	return e.cfg
}

// Distance returns the distance in centimetres for a target pixelWidth wide.
// useMask selects the focal length calibrated for mask-refined widths.
func (e Estimator) Distance(pixelWidth float64, useMask bool) (float64, error) {
	if pixelWidth <= 0 || math.IsNaN(pixelWidth) {
		return Unknown, ErrInvalidWidth
	}
	focal := e.cfg.FocalLengthBox
	if useMask {
		focal = e.cfg.FocalLengthMask
	}
	return e.cfg.RealTargetWidthCM * focal / pixelWidth, nil
}

// Angle returns the bearing in radians of a point at xCenter. Targets left of
// the image centre give a positive angle, so a positive angle means steer left.
func (e Estimator) Angle(xCenter, imageWidth float64) float64 {
	if imageWidth <= 0 {
		return 0
	}
	relativeX := xCenter - imageWidth/2
	return -(relativeX / imageWidth) * e.cfg.FieldOfViewDeg * math.Pi / 180
}
