package motion

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"plantbot/logging"
)

// The robot bridge speaks one request line and one reply line, matched by a
// per-channel sequence number:
//
//	MOVE <seq> <vx> <vy> <omega>   ->  ACK <seq> <status>
//	SWITCH <seq> 1                 ->  ACK <seq> <status>
//	REMOTE <seq> 1                 ->  ACK <seq> <status>
//
// Status 0 is success. Replies carrying another sequence number belong to an
// earlier request that already timed out and are dropped.

// ErrNoReply means the bridge did not answer before the deadline
var ErrNoReply = errors.New("no reply")

const (
	switchAttempts = 20
	defaultTimeout = 3 * time.Second
)

// lineTransport carries single lines. Receive returns ErrNoReply once the
// deadline has passed.
type lineTransport interface {
	Send(line string) error
	Receive(deadline time.Time) (string, error)
	Close() error
}

func encodeMove(seq uint32, c Command) string {
	return fmt.Sprintf("MOVE %d %.4f %.4f %.4f", seq, c.Vx, c.Vy, c.Omega)
}

func parseAck(reply string) (seq uint32, status int, err error) {
	fields := strings.Fields(reply)
	if len(fields) != 3 || fields[0] != "ACK" {
		return 0, 0, fmt.Errorf("malformed reply %q", reply)
	}
	s, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed sequence in %q: %w", reply, err)
	}
	status, err = strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed status in %q: %w", reply, err)
	}
	return uint32(s), status, nil
}

// lineActuator runs the protocol over a transport opened on Init
type lineActuator struct {
	name    string
	open    func() (lineTransport, error)
	t       lineTransport
	timeout time.Duration
	seq     uint32
	log     *logging.Logger

	retryDelay time.Duration
}

func (a *lineActuator) SetTimeout(d time.Duration) {
	a.timeout = d
}

// Init opens the channel, switches obstacle avoidance on and hands motion
// control to this client.
func (a *lineActuator) Init() error {
	t, err := a.open()
	if err != nil {
		return fmt.Errorf("open %s channel: %w", a.name, err)
	}
	a.t = t

	var lastErr error
	for i := 0; i < switchAttempts; i++ {
		if lastErr = a.request("switch", func(seq uint32) string { return fmt.Sprintf("SWITCH %d 1", seq) }); lastErr == nil {
			break
		}
		time.Sleep(a.retryDelay)
	}
	if lastErr != nil {
		return fmt.Errorf("enable obstacle avoidance: %w", lastErr)
	}
	a.log.Info().Str("transport", a.name).Msg("obstacle avoidance switch on")

	if err := a.request("remote", func(seq uint32) string { return fmt.Sprintf("REMOTE %d 1", seq) }); err != nil {
		return fmt.Errorf("take remote control: %w", err)
	}
	return nil
}

func (a *lineActuator) Move(cmd Command) error {
	return a.request("move", func(seq uint32) string { return encodeMove(seq, cmd) })
}

func (a *lineActuator) request(op string, encode func(seq uint32) string) error {
	if a.t == nil {
		return fmt.Errorf("%s: %s channel not initialized", op, a.name)
	}
	timeout := a.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	deadline := time.Now().Add(timeout)

	a.seq++
	seq := a.seq
	if err := a.t.Send(encode(seq)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for {
		reply, err := a.t.Receive(deadline)
		if errors.Is(err, ErrNoReply) {
			return fmt.Errorf("%s: %w within %v", op, ErrNoReply, timeout)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		got, status, err := parseAck(reply)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if got != seq {
			a.log.Debug().Uint32("want", seq).Uint32("got", got).Int("status", status).Msg("dropping stale reply")
			continue
		}
		if status != 0 {
			return &FaultError{Op: op, Status: status}
		}
		return nil
	}
}

func (a *lineActuator) Close() error {
	if a.t == nil {
		return nil
	}
	err := a.t.Close()
	a.t = nil
	return err
}
