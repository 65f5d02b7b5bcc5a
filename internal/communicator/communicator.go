package communicator

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotOpen is returned by Send on a sender that was never opened or has
// been closed.
var ErrNotOpen = errors.New("udp sender not open")

// ListenFunc opens the local datagram socket; net.ListenUDP in production.
type ListenFunc func(network string, laddr *net.UDPAddr) (*net.UDPConn, error)

// UDPSender writes each payload as one datagram to a fixed destination
// over an unconnected socket. It is not safe for concurrent use; the
// forwarder serializes access.
type UDPSender struct {
	addr    string
	timeout time.Duration
	listen  ListenFunc

	conn *net.UDPConn
	dest *net.UDPAddr
}

// NewUDPSender does NOT open the socket; call Open.
func NewUDPSender(addr string, writeTimeout time.Duration) *UDPSender {
	return &UDPSender{
		addr:    addr,
		timeout: writeTimeout,
		listen:  net.ListenUDP,
	}
}

// WithListen replaces the socket factory. Used to simulate socket
// creation failures.
func (s *UDPSender) WithListen(fn ListenFunc) *UDPSender {
	s.listen = fn
	return s
}

// Open resolves the destination and creates the socket.
func (s *UDPSender) Open() error {
	dest, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.addr, err)
	}
	conn, err := s.listen("udp", nil)
	if err != nil {
		return fmt.Errorf("create udp socket: %w", err)
	}
	s.conn = conn
	s.dest = dest
	return nil
}

// Send issues exactly one datagram. The write deadline bounds the call so
// a full socket buffer cannot stall the caller.
func (s *UDPSender) Send(payload []byte) error {
	if s.conn == nil {
		return ErrNotOpen
	}
	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := s.conn.WriteToUDP(payload, s.dest); err != nil {
		return fmt.Errorf("send to %s: %w", s.dest, err)
	}
	return nil
}

// Close releases the socket. Calling it again is a no-op.
func (s *UDPSender) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Destination is the configured host:port.
func (s *UDPSender) Destination() string {
	return s.addr
}
