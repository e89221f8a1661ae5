package detection

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"plantbot/config"
	"plantbot/logging"
)

type fakeProvider struct {
	kind      string
	initErr   error
	detectErr error
	dets      []Detection
	closed    bool
}

func (f *fakeProvider) Initialize(config.Detector) error { return f.initErr }
func (f *fakeProvider) Detect(gocv.Mat) ([]Detection, error) {
	return f.dets, f.detectErr
}
func (f *fakeProvider) Close() error                  { f.closed = true; return nil }
func (f *fakeProvider) GetProviderInfo() ProviderInfo { return ProviderInfo{Type: f.kind} }

func testManager(gpuPresent bool, gpu, cpu *fakeProvider) *ProviderManager {
	return &ProviderManager{
		log:      logging.Nop(),
		probeGPU: func() bool { return gpuPresent },
		newGPU:   func() InferenceProvider { return gpu },
		newCPU:   func() InferenceProvider { return cpu },
	}
}

func TestProviderManagerSelection(t *testing.T) {
	cfg := config.Calibrated().Detector
	cfg.InputSize = 32

	t.Run("gpu works", func(t *testing.T) {
		gpu, cpu := &fakeProvider{kind: "GPU"}, &fakeProvider{kind: "CPU"}
		pm := testManager(true, gpu, cpu)
		require.NoError(t, pm.Initialize(cfg))
		assert.Equal(t, "GPU", pm.GetProviderInfo().Type)
	})

	t.Run("gpu test inference fails", func(t *testing.T) {
		gpu := &fakeProvider{kind: "GPU", detectErr: errors.New("no kernel image")}
		cpu := &fakeProvider{kind: "CPU"}
		pm := testManager(true, gpu, cpu)
		require.NoError(t, pm.Initialize(cfg))
		assert.Equal(t, "CPU", pm.GetProviderInfo().Type)
		assert.True(t, gpu.closed)
	})

	t.Run("gpu init fails", func(t *testing.T) {
		gpu := &fakeProvider{kind: "GPU", initErr: errors.New("cuda")}
		pm := testManager(true, gpu, &fakeProvider{kind: "CPU"})
		require.NoError(t, pm.Initialize(cfg))
		assert.Equal(t, "CPU", pm.GetProviderInfo().Type)
	})

	t.Run("no gpu", func(t *testing.T) {
		pm := testManager(false, nil, &fakeProvider{kind: "CPU"})
		require.NoError(t, pm.Initialize(cfg))
		assert.Equal(t, "CPU", pm.GetProviderInfo().Type)
	})

	t.Run("gpu not preferred", func(t *testing.T) {
		c := cfg
		c.PreferGPU = false
		pm := testManager(true, &fakeProvider{kind: "GPU"}, &fakeProvider{kind: "CPU"})
		require.NoError(t, pm.Initialize(c))
		assert.Equal(t, "CPU", pm.GetProviderInfo().Type)
	})

	t.Run("everything fails", func(t *testing.T) {
		cpuErr := errors.New("missing weights")
		pm := testManager(false, nil, &fakeProvider{kind: "CPU", initErr: cpuErr})
		err := pm.Initialize(cfg)
		assert.ErrorIs(t, err, cpuErr)
	})
}

func TestProviderManagerDetect(t *testing.T) {
	pm := testManager(false, nil, &fakeProvider{kind: "CPU", dets: []Detection{
		{ClassID: 1, Confidence: 0.9, Box: image.Rect(0, 0, 10, 10)},
	}})

	_, err := pm.Detect(gocv.NewMat())
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, pm.Initialize(config.Calibrated().Detector))
	frame := gocv.NewMat()
	defer frame.Close()
	dets, err := pm.Detect(frame)
	require.NoError(t, err)
	assert.Len(t, dets, 1)
	require.NoError(t, pm.Close())
}
