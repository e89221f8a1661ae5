package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"plantbot/camera"
	"plantbot/depth"
	"plantbot/detection"
	"plantbot/logging"
	"plantbot/timeutil"
	"plantbot/tracking"
)

// ErrFrameDecode marks a frame that could not be decoded; the loop skips it
var ErrFrameDecode = errors.New("frame decode failed")

const idleWait = 20 * time.Millisecond

// Display shows diagnostics for a processed frame
type Display interface {
	Show(frame gocv.Mat, res tracking.Result, phase Phase)
}

// Runner is the single-threaded perception-to-motion loop
type Runner struct {
	Source     camera.Source
	Detector   detection.Detector
	Localizer  *tracking.Localizer
	Depth      depth.Estimator // optional
	Controller *Controller
	Display    Display // optional
	Clock      timeutil.Clock

	frames  int
	skipped int
	log     *logging.Logger
}

// Stats reports processed and skipped frame counts
func (r *Runner) Stats() (frames, skipped int) {
	return r.frames, r.skipped
}

// Run processes frames until the controller reaches DONE, the source ends or
// ctx is cancelled. Reaching DONE returns nil.
func (r *Runner) Run(ctx context.Context) error {
	if r.log == nil {
		r.log = logging.Named("CONTROL")
	}
	if r.Clock == nil {
		r.Clock = timeutil.RealClock{}
	}

	for r.Controller.Phase() != Done {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := r.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("frame source: %w", err)
		}
		if data == nil {
			if err := timeutil.Wait(ctx, r.Clock, idleWait); err != nil {
				return err
			}
			continue
		}

		if err := r.processFrame(ctx, data); err != nil {
			return err
		}
	}
	r.log.Info().Int("frames", r.frames).Int("skipped", r.skipped).Msg("approach complete")
	return nil
}

func (r *Runner) processFrame(ctx context.Context, data []byte) error {
	frame, err := decodeFrame(data)
	if err != nil {
		r.skipped++
		r.log.Warn().Err(err).Int("bytes", len(data)).Msg("skipping frame")
		return nil
	}
	defer frame.Close()

	dets, err := r.Detector.Detect(frame)
	if err != nil {
		r.skipped++
		r.log.Warn().Err(err).Msg("detector failed, skipping frame")
		return nil
	}
	r.frames++

	res := r.Localizer.Localize(frame, dets)

	var depthVec []float64
	if r.Depth != nil {
		if depthVec, err = r.Depth.Estimate(frame); err != nil {
			r.log.Warn().Err(err).Msg("depth estimate failed")
			depthVec = nil
		}
	}

	// draw before the step; the close-range sequence blocks for seconds
	if r.Display != nil {
		r.Display.Show(frame, res, r.Controller.Phase())
	}
	return r.Controller.Step(ctx, res.Closest, depthVec)
}

func decodeFrame(data []byte) (gocv.Mat, error) {
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrFrameDecode, err)
	}
	if frame.Empty() {
		frame.Close()
		return gocv.Mat{}, ErrFrameDecode
	}
	return frame, nil
}
