package motion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantbot/config"
)

func TestParseAck(t *testing.T) {
	seq, s, err := parseAck("ACK 4 0")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), seq)
	assert.Equal(t, 0, s)

	seq, s, err = parseAck("ACK 12 3104")
	require.NoError(t, err)
	assert.Equal(t, uint32(12), seq)
	assert.Equal(t, 3104, s)

	for _, bad := range []string{"", "OK 1 0", "ACK", "ACK 0", "ACK x 0", "ACK 1 x", "ACK -1 0", "ACK 1 2 3"} {
		_, _, err := parseAck(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "MOVE 7 0.2000 0.0000 -0.1000", encodeMove(7, Command{Vx: 0.2, Omega: -0.1}))
}

// ack answers line with its own sequence number
func ack(line string, status int) string {
	return fmt.Sprintf("ACK %s %d", strings.Fields(line)[1], status)
}

// udpBridge answers every request with the reply chosen by respond. Each
// line of a multi-line reply goes out as its own datagram.
func udpBridge(t *testing.T, respond func(line string) string) (string, func() []string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var mu sync.Mutex
	var seen []string
	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			line := strings.TrimSpace(string(buf[:n]))
			mu.Lock()
			seen = append(seen, line)
			mu.Unlock()
			if reply := respond(line); reply != "" {
				for _, r := range strings.Split(reply, "\n") {
					conn.WriteToUDP([]byte(r+"\n"), from)
				}
			}
		}
	}()
	return conn.LocalAddr().String(), func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func TestUDPActuator(t *testing.T) {
	addr, seen := udpBridge(t, func(line string) string {
		if strings.HasPrefix(line, "MOVE") && strings.Fields(line)[2] == "9.0000" {
			return ack(line, 7)
		}
		return ack(line, 0)
	})

	act := NewUDP(addr, "")
	act.SetTimeout(time.Second)
	require.NoError(t, act.Init())
	defer act.Close()

	require.NoError(t, act.Move(Command{Vx: 0.2}))

	err := act.Move(Command{Vx: 9})
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 7, fe.Status)

	assert.Equal(t, []string{"SWITCH 1 1", "REMOTE 2 1", "MOVE 3 0.2000 0.0000 0.0000", "MOVE 4 9.0000 0.0000 0.0000"}, seen())
}

func TestUDPActuatorTimeout(t *testing.T) {
	addr, _ := udpBridge(t, func(line string) string {
		if strings.HasPrefix(line, "MOVE") {
			return ""
		}
		return ack(line, 0)
	})

	act := NewUDP(addr, "")
	act.SetTimeout(50 * time.Millisecond)
	require.NoError(t, act.Init())
	defer act.Close()

	err := act.Move(Stop)
	require.ErrorIs(t, err, ErrNoReply)
	assert.Contains(t, err.Error(), "no reply within 50ms")
}

func TestUDPLateReplyIsNotCreditedToNextCommand(t *testing.T) {
	// the first move is answered with a fault only after the second move
	// was sent, ahead of the second move's own ack
	addr, _ := udpBridge(t, func(line string) string {
		switch strings.Fields(line)[1] {
		case "3":
			return ""
		case "4":
			return "ACK 3 3104\n" + ack(line, 0)
		}
		return ack(line, 0)
	})

	act := NewUDP(addr, "")
	act.SetTimeout(100 * time.Millisecond)
	require.NoError(t, act.Init())
	defer act.Close()

	require.ErrorIs(t, act.Move(Command{Vx: 0.2}), ErrNoReply)
	assert.NoError(t, act.Move(Stop))
}

func TestUDPUnknownInterface(t *testing.T) {
	act := NewUDP("127.0.0.1:9", "does-not-exist0")
	assert.Error(t, act.Init())
}

func TestMoveBeforeInit(t *testing.T) {
	act := NewUDP("127.0.0.1:9", "")
	assert.Error(t, act.Move(Stop))
	assert.NoError(t, act.Close())
}

type fakePort struct {
	mu      sync.Mutex
	written bytes.Buffer
	replies *bytes.Buffer
	timeout time.Duration
}

func (p *fakePort) Read(b []byte) (int, error) { return p.replies.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}
func (p *fakePort) Close() error                         { return nil }
func (p *fakePort) SetReadTimeout(d time.Duration) error { p.timeout = d; return nil }

func TestSerialActuator(t *testing.T) {
	// the stale "ACK 2 9" is a duplicate of an earlier reply and is skipped
	port := &fakePort{replies: bytes.NewBufferString("ACK 1 0\nACK 2 0\nACK 3 0\nACK 2 9\nACK 4 5\n")}
	var openedPath string
	var openedBaud int
	act := NewSerial("/dev/ttyUSB0", 115200, func(path string, baud int) (SerialPorter, error) {
		openedPath, openedBaud = path, baud
		return port, nil
	})
	act.SetTimeout(2 * time.Second)
	require.NoError(t, act.Init())

	require.NoError(t, act.Move(Command{Omega: 0.2}))
	var fe *FaultError
	require.True(t, errors.As(act.Move(Stop), &fe))
	assert.Equal(t, 5, fe.Status)

	assert.Equal(t, "/dev/ttyUSB0", openedPath)
	assert.Equal(t, 115200, openedBaud)
	assert.Greater(t, port.timeout, time.Duration(0))
	assert.LessOrEqual(t, port.timeout, 2*time.Second)
	assert.Equal(t, "SWITCH 1 1\nREMOTE 2 1\nMOVE 3 0.0000 0.0000 0.2000\nMOVE 4 0.0000 0.0000 0.0000\n", port.written.String())

	// replies exhausted
	assert.Error(t, act.Move(Stop))
}

// silentPort behaves like go.bug.st/serial once its replies run out: each
// read waits for the read timeout and returns 0, nil.
type silentPort struct {
	fakePort
}

func (p *silentPort) Read(b []byte) (int, error) {
	if p.replies.Len() > 0 {
		return p.replies.Read(b)
	}
	time.Sleep(p.timeout)
	return 0, nil
}

func TestSerialReadTimeoutEndsWait(t *testing.T) {
	port := &silentPort{fakePort{replies: bytes.NewBufferString("ACK 1 0\nACK 2 0\n")}}
	act := NewSerial("/dev/ttyUSB0", 115200, func(string, int) (SerialPorter, error) {
		return port, nil
	})
	act.SetTimeout(20 * time.Millisecond)
	require.NoError(t, act.Init())

	h := NewHandle(act, config.Limits{})
	start := time.Now()
	err := h.Move(Command{Vx: 0.2})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrNoReply)
	assert.Less(t, elapsed, 500*time.Millisecond)

	// the interrupt stop is not held up behind a silent link either
	start = time.Now()
	assert.ErrorIs(t, h.Halt(), ErrNoReply)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSerialOpenFailure(t *testing.T) {
	act := NewSerial("/dev/none", 9600, func(string, int) (SerialPorter, error) {
		return nil, io.ErrClosedPipe
	})
	err := act.Init()
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestHTTPActuator(t *testing.T) {
	var got []Command
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		var c Command
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		got = append(got, c)
		code := 0
		if c.Vx > 5 {
			code = 42
		}
		fmt.Fprintf(w, `{"code":%d}`, code)
	}))
	defer srv.Close()

	act := NewHTTP(srv.URL, "", "")
	act.SetTimeout(time.Second)
	require.NoError(t, act.Init())
	require.NoError(t, act.Move(Command{Vx: 0.2, Omega: 0.1}))

	var fe *FaultError
	require.True(t, errors.As(act.Move(Command{Vx: 6}), &fe))
	assert.Equal(t, 42, fe.Status)
	assert.Equal(t, []Command{{Vx: 0.2, Omega: 0.1}, {Vx: 6}}, got)
	require.NoError(t, act.Close())
}

func TestNewFromConfig(t *testing.T) {
	act, err := New(config.Actuator{Kind: "dry-run"})
	require.NoError(t, err)
	_, ok := act.(*DryRun)
	assert.True(t, ok)

	_, err = New(config.Actuator{Kind: "carrier-pigeon"})
	assert.Error(t, err)
}
