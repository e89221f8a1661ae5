package motion

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"plantbot/logging"
	"plantbot/pkg/digest"
)

// HTTPActuator PUTs JSON commands to a motion bridge behind digest auth
type HTTPActuator struct {
	url    string
	client *digest.Client
	log    *logging.Logger
}

type moveReply struct {
	Code int `json:"code"`
}

// NewHTTP returns an actuator for the bridge endpoint at url
func NewHTTP(url, user, pass string) *HTTPActuator {
	return &HTTPActuator{
		url: url,
		client: &digest.Client{
			HTTP:     &http.Client{Timeout: 3 * time.Second},
			User:     user,
			Password: pass,
		},
		log: logging.Named("MOTION"),
	}
}

func (a *HTTPActuator) SetTimeout(d time.Duration) {
	a.client.HTTP.Timeout = d
}

// Init checks that the bridge answers
func (a *HTTPActuator) Init() error {
	req, err := http.NewRequest(http.MethodGet, a.url, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req, nil)
	if err != nil {
		return fmt.Errorf("motion bridge %s: %w", a.url, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("motion bridge %s: unexpected status %d", a.url, resp.StatusCode)
	}
	return nil
}

// Move sends cmd. The bridge answers {"code": n}; a non-zero code is a fault.
func (a *HTTPActuator) Move(cmd Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, a.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req, body)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("move: unexpected status code: %d, body: %s", resp.StatusCode, string(b))
	}
	var reply moveReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("move: decode reply: %w", err)
	}
	if reply.Code != 0 {
		return &FaultError{Op: "move", Status: reply.Code}
	}
	return nil
}

func (a *HTTPActuator) Close() error {
	a.client.HTTP.CloseIdleConnections()
	return nil
}
