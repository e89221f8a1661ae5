package motion

import (
	"sync"
	"time"

	"plantbot/logging"
)

// dryRunHistory bounds the commands kept for Sent
const dryRunHistory = 256

// DryRun logs commands instead of moving the robot
type DryRun struct {
	mu   sync.Mutex
	sent []Command
	log  *logging.Logger
}

// NewDryRun returns a logging-only actuator
func NewDryRun() *DryRun {
	return &DryRun{log: logging.Named("MOTION")}
}

func (d *DryRun) Init() error {
	d.log.Warn().Msg("dry run: robot will not move")
	return nil
}

func (d *DryRun) SetTimeout(time.Duration) {}

func (d *DryRun) Move(cmd Command) error {
	d.mu.Lock()
	if len(d.sent) == dryRunHistory {
		copy(d.sent, d.sent[1:])
		d.sent = d.sent[:dryRunHistory-1]
	}
	d.sent = append(d.sent, cmd)
	d.mu.Unlock()
	d.log.Info().Float64("vx", cmd.Vx).Float64("vy", cmd.Vy).Float64("omega", cmd.Omega).Msg("dry run move")
	return nil
}

// Sent returns the most recent commands, oldest first
func (d *DryRun) Sent() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.sent...)
}

func (d *DryRun) Close() error { return nil }
