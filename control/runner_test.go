package control

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"plantbot/camera"
	"plantbot/config"
	"plantbot/detection"
	"plantbot/geometry"
	"plantbot/timeutil"
	"plantbot/tracking"
)

type sliceSource struct {
	frames [][]byte
	next   int
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if s.next >= len(s.frames) {
		return nil, camera.ErrEndOfStream
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

// scriptedDetector returns one entry per call
type scriptedDetector struct {
	script [][]detection.Detection
	errs   map[int]error
	calls  int
}

func (d *scriptedDetector) Detect(gocv.Mat) ([]detection.Detection, error) {
	i := d.calls
	d.calls++
	if err := d.errs[i]; err != nil {
		return nil, err
	}
	if i < len(d.script) {
		return d.script[i], nil
	}
	return nil, nil
}

type countingDisplay struct{ shown []Phase }

func (c *countingDisplay) Show(_ gocv.Mat, _ tracking.Result, p Phase) { c.shown = append(c.shown, p) }

func jpegFrame(t *testing.T) []byte {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 720, 1280, gocv.MatTypeCV8UC3)
	defer mat.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func newRunner(t *testing.T, src camera.Source, det detection.Detector, rec *recordingActuator) (*Runner, *countingDisplay) {
	t.Helper()
	cfg := config.Calibrated()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	disp := &countingDisplay{}
	return &Runner{
		Source:     src,
		Detector:   det,
		Localizer:  tracking.NewLocalizer(geometry.New(cfg.Geometry)),
		Controller: NewController(rec, NewThresholdStrategy(cfg.Approach), cfg.Approach, cfg.Holds, WithClock(clock)),
		Display:    disp,
		Clock:      clock,
	}, disp
}

var (
	farPot   = detection.Detection{ClassID: 1, Confidence: 0.9, Box: image.Rect(600, 300, 680, 400)}  // 300cm
	closePot = detection.Detection{ClassID: 1, Confidence: 0.9, Box: image.Rect(400, 200, 880, 700)} // 50cm, centred
)

func TestRunnerReachesDone(t *testing.T) {
	frame := jpegFrame(t)
	src := &sliceSource{frames: [][]byte{frame, []byte("not a jpeg"), frame, nil, frame, frame, frame}}
	det := &scriptedDetector{script: [][]detection.Detection{
		nil,
		{farPot},
		{closePot},
	}}
	rec := &recordingActuator{}
	r, disp := newRunner(t, src, det, rec)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, Done, r.Controller.Phase())

	frames, skipped := r.Stats()
	assert.Equal(t, 3, frames)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []Phase{Searching, Searching, Approaching}, disp.shown)

	sent := rec.sent()
	require.Len(t, sent, 7)
	assert.True(t, sent[0].IsStop())
	assert.Equal(t, 1.0, sent[1].Vx)
	assert.True(t, sent[len(sent)-1].IsStop())
	// frames after DONE are not read
	assert.Equal(t, 5, src.next)
}

func TestRunnerEndOfStream(t *testing.T) {
	src := &sliceSource{frames: [][]byte{jpegFrame(t)}}
	rec := &recordingActuator{}
	r, _ := newRunner(t, src, &scriptedDetector{}, rec)

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, camera.ErrEndOfStream)
	assert.Equal(t, Searching, r.Controller.Phase())
}

func TestRunnerSkipsDetectorErrors(t *testing.T) {
	frame := jpegFrame(t)
	src := &sliceSource{frames: [][]byte{frame, frame}}
	det := &scriptedDetector{errs: map[int]error{0: errors.New("cuda oom")}}
	rec := &recordingActuator{}
	r, _ := newRunner(t, src, det, rec)

	assert.ErrorIs(t, r.Run(context.Background()), camera.ErrEndOfStream)
	frames, skipped := r.Stats()
	assert.Equal(t, 1, frames)
	assert.Equal(t, 1, skipped)
	assert.Len(t, rec.sent(), 1)
}

func TestRunnerCancelled(t *testing.T) {
	src := &sliceSource{frames: [][]byte{jpegFrame(t)}}
	rec := &recordingActuator{}
	r, _ := newRunner(t, src, &scriptedDetector{}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Empty(t, rec.sent())
}

func TestDecodeFrame(t *testing.T) {
	_, err := decodeFrame([]byte("garbage"))
	assert.ErrorIs(t, err, ErrFrameDecode)

	m, err := decodeFrame(jpegFrame(t))
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 1280, m.Cols())
	assert.Equal(t, 720, m.Rows())
}
