// Package camera supplies encoded frames to the control loop. Sources return
// compressed image bytes; decoding happens in the loop so a corrupt frame can
// be skipped there.
package camera

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"plantbot/config"
)

// ErrEndOfStream ends the control loop
var ErrEndOfStream = errors.New("end of frame stream")

// Source yields frames. Next returns nil, nil when no frame is available right
// now; any error ends the loop.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// New opens the source selected by cfg.Kind
func New(cfg config.Source) (Source, error) {
	switch cfg.Kind {
	case "video":
		return OpenVideo(cfg.URL)
	case "dir":
		return OpenDir(cfg.URL)
	case "snapshot":
		return NewSnapshot(cfg.URL, cfg.User, cfg.Password, &http.Client{}), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
