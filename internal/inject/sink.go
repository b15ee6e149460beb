package inject

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	ErrRawUnsupported  = errors.New("raw packet sockets are not supported on this platform")
	ErrSinkClosed      = errors.New("sink closed")
	ErrUnsupportedSink = errors.New("sink accepts neither payloads nor frames")
)

// Sink delivers synthesized packets to the pipeline under test. A usable
// sink is also a PayloadSink or a FrameSink.
type Sink interface {
	Close() error
}

// PayloadSink takes bare header+payload bytes and leaves the envelope to the OS
type PayloadSink interface {
	Sink
	WritePacket(payload []byte) error
}

// FrameSink takes complete Ethernet/IPv4/UDP frames
type FrameSink interface {
	Sink
	WriteFrame(frame []byte) error
}

// UDPSink sends each payload as a plain UDP datagram. It needs no privileges
// but the kernel builds the envelope.
type UDPSink struct {
	conn *net.UDPConn
}

// NewUDPSink dials the destination address from srcPort (0 = ephemeral)
func NewUDPSink(addr string, srcPort uint16) (*UDPSink, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	var laddr *net.UDPAddr
	if srcPort != 0 {
		laddr = &net.UDPAddr{Port: int(srcPort)}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s from port %d: %w", addr, srcPort, err)
	}
	return &UDPSink{conn: conn}, nil
}

// WritePacket sends one datagram
func (s *UDPSink) WritePacket(payload []byte) error {
	_, err := s.conn.Write(payload)
	return err
}

// Close closes the socket
func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// PcapSink writes frames to a pcap capture for offline replay
type PcapSink struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	now    func() time.Time
	closed bool
}

// NewPcapSink creates a pcap file at path
func NewPcapSink(path string) (*PcapSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap %s: %w", path, err)
	}
	sink, err := NewPcapWriterSink(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return sink, nil
}

// NewPcapWriterSink writes the pcap stream to w. If w is an io.Closer it is closed by Close.
func NewPcapWriterSink(w io.Writer) (*PcapSink, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	closer, _ := w.(io.Closer)
	return &PcapSink{w: pw, closer: closer, now: time.Now}, nil
}

// WriteFrame appends one frame to the capture
func (s *PcapSink) WriteFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     s.now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	return s.w.WritePacket(ci, frame)
}

// Close closes the underlying writer when it is closable
func (s *PcapSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
