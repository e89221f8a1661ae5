package motion

import (
	"sync"

	"plantbot/config"
	"plantbot/logging"
)

// Handle serializes access to an Actuator. The control loop and the interrupt
// handler share one Handle.
type Handle struct {
	mu     sync.Mutex
	act    Actuator
	limits config.Limits
	halted bool
	last   Command
	log    *logging.Logger
}

// NewHandle wraps act; every command is clamped to limits
func NewHandle(act Actuator, limits config.Limits) *Handle {
	return &Handle{act: act, limits: limits, log: logging.Named("MOTION")}
}

// Move sends cmd. After Halt it sends nothing and returns ErrHalted.
func (h *Handle) Move(cmd Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.halted {
		return ErrHalted
	}
	return h.send(cmd)
}

func (h *Handle) send(cmd Command) error {
	c := cmd.Clamp(h.limits)
	if c != cmd {
		h.log.Debug().Stringer("requested", cmd).Stringer("sent", c).Msg("command clamped")
	}
	h.last = c
	return h.act.Move(c)
}

// Halt sends one stop and refuses every later command. Only the first call
// sends; the error of that single attempt is returned and not retried.
func (h *Handle) Halt() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.halted {
		return nil
	}
	h.halted = true
	err := h.send(Stop)
	if err != nil {
		h.log.Error().Err(err).Msg("final stop failed")
	} else {
		h.log.Info().Msg("robot halted")
	}
	return err
}

// Halted reports whether Halt has run
func (h *Handle) Halted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted
}

// Last returns the last command handed to the actuator
func (h *Handle) Last() Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Close halts if needed and releases the transport
func (h *Handle) Close() error {
	h.Halt()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.act.Close()
}
