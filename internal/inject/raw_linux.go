//go:build linux

package inject

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// RawSink injects complete Ethernet frames through an AF_PACKET socket.
// Requires root or CAP_NET_RAW.
type RawSink struct {
	mu     sync.Mutex
	fd     int
	addr   *unix.SockaddrLinklayer
	closed bool
}

// NewRawSink opens a raw packet socket bound to iface
func NewRawSink(iface string) (*RawSink, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("unknown interface %s: %w", iface, err)
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("failed to open raw socket: %w", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind raw socket to %s: %w", iface, err)
	}

	return &RawSink{fd: fd, addr: addr}, nil
}

// WriteFrame sends one frame on the link
func (s *RawSink) WriteFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	return unix.Sendto(s.fd, frame, 0, s.addr)
}

// Close closes the socket
func (s *RawSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
