package detection

import (
	"fmt"
	"image"
)

// Detection is one box reported by the detector, in frame pixel coordinates
type Detection struct {
	ClassID    int
	Confidence float64
	Box        image.Rectangle
}

func (d Detection) String() string {
	return fmt.Sprintf("class=%d conf=%.2f box=%v", d.ClassID, d.Confidence, d.Box)
}
