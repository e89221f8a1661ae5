// Package motion sends velocity commands to the robot base. Every transport
// speaks the same Actuator contract; Handle wraps one for safe shared use.
package motion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"plantbot/config"
)

// ErrHalted is returned by Handle.Move after Halt
var ErrHalted = errors.New("actuator halted")

// Command is a body-frame velocity request: vx forward, vy left, omega
// counter-clockwise.
type Command struct {
	Vx    float64 `json:"vx"`
	Vy    float64 `json:"vy"`
	Omega float64 `json:"vyaw"`
}

// Stop is the zero-velocity command
var Stop = Command{}

// IsStop reports whether c requests no motion
func (c Command) IsStop() bool {
	return c == Stop
}

func (c Command) String() string {
	return fmt.Sprintf("(vx=%.3f vy=%.3f omega=%.3f)", c.Vx, c.Vy, c.Omega)
}

// Clamp bounds each axis by the matching limit. Non-positive limits leave the
// axis unbounded.
func (c Command) Clamp(l config.Limits) Command {
	return Command{
		Vx:    clampAxis(c.Vx, l.MaxVx),
		Vy:    clampAxis(c.Vy, l.MaxVy),
		Omega: clampAxis(c.Omega, l.MaxOmega),
	}
}

func clampAxis(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}

// FaultError is a non-zero status reported by the robot for a command
type FaultError struct {
	Op     string
	Status int
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s rejected by robot: status %d", e.Op, e.Status)
}

// Actuator is a motion transport. SetTimeout is called before Init.
type Actuator interface {
	Init() error
	SetTimeout(d time.Duration)
	Move(cmd Command) error
	Close() error
}
