package control

import (
	"fmt"
	"math"

	"plantbot/config"
	"plantbot/motion"
	"plantbot/tracking"
)

// Strategy produces the APPROACHING command for a visible target that is not
// yet centred and close.
type Strategy interface {
	Command(target tracking.TargetEstimate, depth []float64) (motion.Command, error)
}

// ThresholdStrategy drives straight when the target is centred and turns on
// the spot toward it otherwise.
type ThresholdStrategy struct {
	cfg config.Approach
}

// NewThresholdStrategy returns the direct steering strategy
func NewThresholdStrategy(cfg config.Approach) ThresholdStrategy {
	return ThresholdStrategy{cfg: cfg}
}

func (s ThresholdStrategy) Command(t tracking.TargetEstimate, _ []float64) (motion.Command, error) {
	if math.Abs(t.AngleRad) < s.cfg.AngleThresholdRad {
		if t.DistanceM() > s.cfg.StopDistanceM {
			return motion.Command{Vx: s.cfg.ForwardSpeed}, nil
		}
		return motion.Stop, nil
	}
	// positive angle is left of centre, positive omega turns left
	if t.AngleRad > 0 {
		return motion.Command{Omega: s.cfg.TurnSpeed}, nil
	}
	return motion.Command{Omega: -s.cfg.TurnSpeed}, nil
}

// Actor maps an observation to a raw action
type Actor interface {
	Forward(obs []float64) ([]float64, error)
}

// PolicyStrategy delegates to a learned actor. The action is squashed with
// tanh and rescaled before it reaches the robot.
type PolicyStrategy struct {
	actor Actor
	cfg   config.Policy
}

// NewPolicyStrategy wraps actor with the observation and action scaling of cfg
func NewPolicyStrategy(actor Actor, cfg config.Policy) PolicyStrategy {
	return PolicyStrategy{actor: actor, cfg: cfg}
}

// observation lays out [1, distance_m + offset, angle, depth...]. The
// leading slot is the presence flag of the trained input layout; the
// controller only consults a strategy with a target, so it is always 1 here.
// Missing depth channels are zeros and extra ones are dropped.
func observation(t tracking.TargetEstimate, depth []float64, cfg config.Policy) []float64 {
	obs := make([]float64, 3+cfg.DepthChannels)
	obs[0] = 1
	obs[1] = t.DistanceM() + cfg.DistanceOffsetM
	obs[2] = t.AngleRad
	copy(obs[3:], depth)
	return obs
}

func (s PolicyStrategy) Command(t tracking.TargetEstimate, depth []float64) (motion.Command, error) {
	out, err := s.actor.Forward(observation(t, depth, s.cfg))
	if err != nil {
		return motion.Stop, fmt.Errorf("policy inference: %w", err)
	}
	if len(out) < 3 {
		return motion.Stop, fmt.Errorf("policy returned %d actions, want 3", len(out))
	}
	squash := func(a float64) float64 {
		return math.Tanh(a*s.cfg.ActionScale) * s.cfg.OutputScale
	}
	return motion.Command{
		Vx:    squash(out[0]),
		Vy:    squash(out[1]),
		Omega: squash(out[2]) * s.cfg.OmegaGain,
	}, nil
}
