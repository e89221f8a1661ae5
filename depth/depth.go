// Package depth reduces a monocular depth map to a short vector of obstacle
// proximities across the field of view.
package depth

import (
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"plantbot/config"
)

// Estimator produces a fixed-length proximity vector for a frame
type Estimator interface {
	Estimate(frame gocv.Mat) ([]float64, error)
}

// MiDaS runs a MiDaS-style relative inverse depth network through OpenCV
// DNN. Larger outputs are nearer.
type MiDaS struct {
	net  gocv.Net
	size int
	bins int
	mu   sync.Mutex
}

// NewMiDaS loads the network at cfg.ModelPath; bins is the output length
func NewMiDaS(cfg config.Depth, bins int) (*MiDaS, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("depth bins must be positive, got %d", bins)
	}
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load depth network from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	size := cfg.InputSize
	if size <= 0 {
		size = 256
	}
	return &MiDaS{net: net, size: size, bins: bins}, nil
}

// Estimate returns bins values in [0,1], left to right across the frame
func (m *MiDaS) Estimate(frame gocv.Mat) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame.Empty() {
		return nil, fmt.Errorf("depth: empty frame")
	}
	// ImageNet mean in BGR order, swapped to RGB by the blob
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(m.size, m.size),
		gocv.NewScalar(123.675, 116.28, 103.53, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("depth: read output: %w", err)
	}
	if len(data) != m.size*m.size {
		return nil, fmt.Errorf("depth: unexpected output size %d for %dx%d", len(data), m.size, m.size)
	}
	return PoolColumns(data, m.size, m.size, m.bins), nil
}

// Close releases the network
func (m *MiDaS) Close() error {
	return m.net.Close()
}

// PoolColumns splits a row-major rows x cols map into bins vertical strips
// and returns the strongest response in each, scaled so the map's range maps
// to [0,1]. A flat map yields zeros.
func PoolColumns(data []float32, rows, cols, bins int) []float64 {
	out := make([]float64, bins)
	if rows <= 0 || cols <= 0 || bins <= 0 || len(data) < rows*cols {
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range data[:rows*cols] {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	span := hi - lo
	if !(span > 0) {
		return out
	}

	for b := 0; b < bins; b++ {
		c0 := b * cols / bins
		c1 := (b + 1) * cols / bins
		best := lo
		for r := 0; r < rows; r++ {
			row := data[r*cols : (r+1)*cols]
			for c := c0; c < c1; c++ {
				if f := float64(row[c]); f > best {
					best = f
				}
			}
		}
		out[b] = (best - lo) / span
	}
	return out
}
