package motion

import (
	"fmt"

	"plantbot/config"
)

// New builds the actuator selected by cfg.Kind and initializes it after
// applying the configured timeout.
func New(cfg config.Actuator) (Actuator, error) {
	var act Actuator
	switch cfg.Kind {
	case "udp":
		act = NewUDP(cfg.Addr, cfg.Interface)
	case "serial":
		act = NewSerial(cfg.SerialPort, cfg.BaudRate, nil)
	case "http":
		act = NewHTTP(cfg.URL, cfg.User, cfg.Password)
	case "dry-run":
		act = NewDryRun()
	default:
		return nil, fmt.Errorf("unknown actuator kind %q", cfg.Kind)
	}
	if cfg.Timeout > 0 {
		act.SetTimeout(cfg.Timeout.D())
	}
	if err := act.Init(); err != nil {
		act.Close()
		return nil, fmt.Errorf("init %s actuator: %w", cfg.Kind, err)
	}
	return act, nil
}
