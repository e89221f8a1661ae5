package detection

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"plantbot/config"
)

// candidateFloor drops rows the localizer would never accept. The configured
// confidence threshold is applied later, per class.
const candidateFloor = 0.25

var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// NetProvider runs a YOLO network through the OpenCV DNN module on one
// backend/target pair.
type NetProvider struct {
	kind    string
	backend gocv.NetBackendType
	target  gocv.NetTargetType

	net       gocv.Net
	loaded    bool
	inputSize int
	nms       float32
	mu        sync.Mutex
}

// NewCPUProvider returns a provider on the default OpenCV backend
func NewCPUProvider() *NetProvider {
	return &NetProvider{kind: "CPU", backend: gocv.NetBackendDefault, target: gocv.NetTargetCPU}
}

// NewGPUProvider returns a provider on the CUDA backend
func NewGPUProvider() *NetProvider {
	return &NetProvider{kind: "GPU", backend: gocv.NetBackendCUDA, target: gocv.NetTargetCUDA}
}

// Initialize loads the network. ConfigPath is only needed for darknet weights.
func (p *NetProvider) Initialize(cfg config.Detector) error {
	p.net = gocv.ReadNet(cfg.WeightsPath, cfg.ConfigPath)
	if p.net.Empty() {
		return fmt.Errorf("failed to load YOLO network from %s", cfg.WeightsPath)
	}
	p.loaded = true
	p.net.SetPreferableBackend(p.backend)
	p.net.SetPreferableTarget(p.target)

	p.inputSize = cfg.InputSize
	if p.inputSize <= 0 {
		p.inputSize = 640
	}
	p.nms = float32(cfg.NMSThreshold)
	return nil
}

// Detect letterboxes the frame, runs a forward pass and returns the boxes
// that survive non-maximum suppression.
func (p *NetProvider) Detect(frame gocv.Mat) ([]Detection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return nil, ErrNotInitialized
	}
	if frame.Empty() {
		return nil, fmt.Errorf("%s provider: empty frame", p.kind)
	}

	lb := NewLetterbox(frame.Cols(), frame.Rows(), p.inputSize)
	content := lb.Content()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, content, 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMat()
	defer padded.Close()
	top, left := int(lb.PadY), int(lb.PadX)
	gocv.CopyMakeBorder(resized, &padded,
		top, p.inputSize-content.Y-top,
		left, p.inputSize-content.X-left,
		gocv.BorderConstant, padColor)

	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(p.inputSize, p.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	p.net.SetInput(blob, "")
	output := p.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) == 0 {
		return nil, fmt.Errorf("%s provider: empty network output", p.kind)
	}
	stride := dims[len(dims)-1]
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%s provider: read output: %w", p.kind, err)
	}

	return suppress(decodeOutput(data, stride, lb), p.nms), nil
}

// decodeOutput walks a flat row-major output tensor
func decodeOutput(data []float32, stride int, lb Letterbox) []Detection {
	if stride < 6 {
		return nil
	}
	var out []Detection
	for off := 0; off+stride <= len(data); off += stride {
		if d, ok := lb.DecodeRow(data[off:off+stride], candidateFloor); ok {
			out = append(out, d)
		}
	}
	return out
}

func suppress(dets []Detection, nms float32) []Detection {
	if len(dets) < 2 || nms <= 0 {
		return dets
	}
	boxes := make([]image.Rectangle, len(dets))
	scores := make([]float32, len(dets))
	for i, d := range dets {
		boxes[i] = d.Box
		scores[i] = float32(d.Confidence)
	}
	keep := gocv.NMSBoxes(boxes, scores, candidateFloor, nms)
	out := make([]Detection, 0, len(keep))
	for _, i := range keep {
		out = append(out, dets[i])
	}
	return out
}

// Close releases the network
func (p *NetProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return nil
	}
	p.loaded = false
	return p.net.Close()
}

// GetProviderInfo returns information about the provider
func (p *NetProvider) GetProviderInfo() ProviderInfo {
	info := ProviderInfo{Type: p.kind, Backend: "OpenCV CPU", Device: "CPU"}
	if p.kind == "GPU" {
		info.Backend, info.Device = "OpenCV CUDA", "NVIDIA GPU"
	}
	return info
}
