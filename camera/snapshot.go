package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"plantbot/logging"
	"plantbot/pkg/digest"
)

const maxSnapshotFailures = 30

// Snapshot polls a camera's still-image endpoint
type Snapshot struct {
	url      string
	client   *digest.Client
	failures int
	log      *logging.Logger
}

// NewSnapshot returns a source for url. Credentials are answered with
// digest auth when the camera challenges.
func NewSnapshot(url, user, pass string, hc *http.Client) *Snapshot {
	return &Snapshot{
		url:    url,
		client: &digest.Client{HTTP: hc, User: user, Password: pass},
		log:    logging.Named("CAMERA"),
	}
}

func (s *Snapshot) Next(ctx context.Context) ([]byte, error) {
	data, err := s.fetch(ctx)
	if err == nil {
		s.failures = 0
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.failures++
	s.log.Warn().Err(err).Int("failures", s.failures).Msg("snapshot unavailable")
	if s.failures >= maxSnapshotFailures {
		return nil, fmt.Errorf("%w: %v", ErrEndOfStream, err)
	}
	return nil, nil
}

func (s *Snapshot) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *Snapshot) Close() error {
	if s.client.HTTP != nil {
		s.client.HTTP.CloseIdleConnections()
	}
	return nil
}
