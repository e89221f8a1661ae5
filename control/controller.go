// Package control drives the approach: a per-frame state machine that steers
// toward the nearest pot, then runs the timed close-range sequence.
package control

import (
	"context"
	"errors"
	"math"
	"time"

	"plantbot/config"
	"plantbot/logging"
	"plantbot/motion"
	"plantbot/timeutil"
	"plantbot/tracking"
)

// Mover accepts motion commands; *motion.Handle in production
type Mover interface {
	Move(cmd motion.Command) error
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces the clock used for holds
func WithClock(c timeutil.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithPhaseCallback is called after every phase change
func WithPhaseCallback(fn func(from, to Phase)) Option {
	return func(ctl *Controller) { ctl.onPhase = fn }
}

// Controller owns the approach phase. It is not safe for concurrent use; the
// runner calls Step once per frame.
type Controller struct {
	phase    Phase
	cfg      config.Approach
	holds    config.Holds
	mover    Mover
	strategy Strategy
	clock    timeutil.Clock
	onPhase  func(from, to Phase)
	log      *logging.Logger
}

// NewController returns a controller in SEARCHING
func NewController(mover Mover, strategy Strategy, cfg config.Approach, holds config.Holds, opts ...Option) *Controller {
	c := &Controller{
		phase:    Searching,
		cfg:      cfg,
		holds:    holds,
		mover:    mover,
		strategy: strategy,
		clock:    timeutil.RealClock{},
		log:      logging.Named("CONTROL"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Phase returns the current phase
func (c *Controller) Phase() Phase {
	return c.phase
}

// Step consumes one frame's closest target. Once the target is centred and
// within the stop distance it runs the whole close-range sequence before
// returning. The returned error is non-nil only when ctx ended or the
// actuator was halted; actuator faults are logged and the phase advances.
func (c *Controller) Step(ctx context.Context, closest *tracking.TargetEstimate, depth []float64) error {
	switch c.phase {
	case Done:
		return nil
	case Searching, Approaching:
	default:
		// a previous sequence was aborted mid-way; nothing more is sent
		return nil
	}

	if closest == nil {
		c.setPhase(Searching)
		return c.emit(motion.Stop)
	}

	if c.inPosition(*closest) {
		c.log.Info().
			Float64("distance_m", closest.DistanceM()).
			Float64("angle_deg", closest.AngleRad*180/math.Pi).
			Msg("target reached, starting close-range sequence")
		return c.runSequence(ctx)
	}

	cmd, err := c.strategy.Command(*closest, depth)
	if err != nil {
		c.log.Warn().Err(err).Msg("approach strategy failed, stopping for this frame")
		cmd = motion.Stop
	}
	c.setPhase(Approaching)
	c.log.Debug().
		Float64("distance_m", closest.DistanceM()).
		Float64("angle_deg", closest.AngleRad*180/math.Pi).
		Stringer("cmd", cmd).
		Msg("approaching")
	if err := c.emit(cmd); err != nil {
		return err
	}

	if pulse := c.holds.ApproachPulse.D(); pulse > 0 {
		if err := c.hold(ctx, "approach_pulse", pulse); err != nil {
			return err
		}
		if err := c.emit(motion.Stop); err != nil {
			return err
		}
		return c.hold(ctx, "approach_pulse", pulse)
	}
	return nil
}

func (c *Controller) inPosition(t tracking.TargetEstimate) bool {
	return math.Abs(t.AngleRad) < c.cfg.AngleThresholdRad && t.DistanceM() <= c.cfg.StopDistanceM
}

type sequenceStep struct {
	phase Phase
	cmd   motion.Command
	hold  string
	d     time.Duration
}

func (c *Controller) sequence() []sequenceStep {
	return []sequenceStep{
		{HoldingClose, motion.Stop, "standstill", c.holds.Standstill.D()},
		{Advancing, motion.Command{Vx: c.cfg.CreepSpeed}, "creep", c.holds.Creep.D()},
		{Watering, motion.Stop, "watering", c.holds.Watering.D()},
		{Retreating, motion.Command{Vx: -c.cfg.RetreatSpeed}, "retreat", c.holds.Retreat.D()},
	}
}

// runSequence is open loop: no frame is evaluated until DONE. Cancelling ctx
// aborts it between or during holds without sending anything further.
func (c *Controller) runSequence(ctx context.Context) error {
	for _, s := range c.sequence() {
		c.setPhase(s.phase)
		if err := c.emit(s.cmd); err != nil {
			return err
		}
		if err := c.hold(ctx, s.hold, s.d); err != nil {
			return err
		}
	}
	c.setPhase(Done)
	return c.emit(motion.Stop)
}

func (c *Controller) hold(ctx context.Context, name string, d time.Duration) error {
	c.log.Debug().Str("hold", name).Dur("duration", d).Msg("holding")
	if err := timeutil.Wait(ctx, c.clock, d); err != nil {
		c.log.Warn().Str("hold", name).Stringer("phase", c.phase).Msg("hold interrupted")
		return err
	}
	return nil
}

// emit sends cmd. Faults are reported and swallowed; only a halted actuator
// stops the caller.
func (c *Controller) emit(cmd motion.Command) error {
	err := c.mover.Move(cmd)
	if err == nil {
		return nil
	}
	if errors.Is(err, motion.ErrHalted) {
		return err
	}
	ev := c.log.Error().Err(err).Stringer("cmd", cmd).Stringer("phase", c.phase)
	var fault *motion.FaultError
	if errors.As(err, &fault) {
		ev = ev.Int("status", fault.Status)
	}
	ev.Msg("actuator fault")
	return nil
}

func (c *Controller) setPhase(p Phase) {
	if p == c.phase {
		return
	}
	from := c.phase
	c.phase = p
	c.log.Info().Stringer("from", from).Stringer("to", p).Msg("phase change")
	if c.onPhase != nil {
		c.onPhase(from, p)
	}
}
