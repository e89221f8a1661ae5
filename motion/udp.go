package motion

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"plantbot/logging"
)

// NewUDP returns an actuator talking to the robot bridge at addr. A non-empty
// iface binds the local end to that interface's IPv4 address, for hosts with
// both Wi-Fi and the robot's wired link.
func NewUDP(addr, iface string) Actuator {
	return &lineActuator{
		name: "udp",
		open: func() (lineTransport, error) {
			return dialUDP(addr, iface)
		},
		timeout:    defaultTimeout,
		retryDelay: 100 * time.Millisecond,
		log:        logging.Named("MOTION"),
	}
}

type udpTransport struct {
	conn *net.UDPConn
	buf  []byte
}

func dialUDP(addr, iface string) (*udpTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	var laddr *net.UDPAddr
	if iface != "" {
		ip, err := interfaceIPv4(iface)
		if err != nil {
			return nil, err
		}
		laddr = &net.UDPAddr{IP: ip}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, err
	}
	return &udpTransport{conn: conn, buf: make([]byte, 512)}, nil
}

func interfaceIPv4(name string) (net.IP, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", name, err)
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", name, err)
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok && n.IP.To4() != nil {
			return n.IP.To4(), nil
		}
	}
	return nil, fmt.Errorf("interface %s has no IPv4 address", name)
}

func (u *udpTransport) Send(line string) error {
	_, err := u.conn.Write([]byte(line + "\n"))
	return err
}

// Receive reads one datagram. A datagram is one reply line.
func (u *udpTransport) Receive(deadline time.Time) (string, error) {
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	n, err := u.conn.Read(u.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", ErrNoReply
		}
		return "", err
	}
	return strings.TrimSpace(string(u.buf[:n])), nil
}

func (u *udpTransport) Close() error {
	return u.conn.Close()
}
