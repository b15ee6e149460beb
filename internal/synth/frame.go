package synth

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	DefaultSrcPort = 50000
	DefaultDstPort = 12345
	defaultTTL     = 64
)

var ErrNotUDP = errors.New("frame does not carry a UDP datagram")

// FrameConfig holds the envelope fields of an injected frame. These are
// test parameters, not part of the wire format.
type FrameConfig struct {
	SrcMAC  net.HardwareAddr
	DstMAC  net.HardwareAddr
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	TTL     uint8
}

// DefaultFrameConfig targets 127.0.0.1:12345 from port 50000 with zero MACs
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		SrcMAC:  net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstMAC:  net.HardwareAddr{0, 0, 0, 0, 0, 0},
		SrcIP:   net.IPv4(127, 0, 0, 1),
		DstIP:   net.IPv4(127, 0, 0, 1),
		SrcPort: DefaultSrcPort,
		DstPort: DefaultDstPort,
		TTL:     defaultTTL,
	}
}

// Framer wraps payloads in Ethernet+IPv4+UDP for raw link delivery
type Framer struct {
	cfg  FrameConfig
	opts gopacket.SerializeOptions
}

// NewFramer creates a Framer, filling unset fields from DefaultFrameConfig
func NewFramer(cfg FrameConfig) *Framer {
	def := DefaultFrameConfig()
	if cfg.SrcMAC == nil {
		cfg.SrcMAC = def.SrcMAC
	}
	if cfg.DstMAC == nil {
		cfg.DstMAC = def.DstMAC
	}
	if cfg.SrcIP == nil {
		cfg.SrcIP = def.SrcIP
	}
	if cfg.DstIP == nil {
		cfg.DstIP = def.DstIP
	}
	if cfg.SrcPort == 0 {
		cfg.SrcPort = def.SrcPort
	}
	if cfg.DstPort == 0 {
		cfg.DstPort = def.DstPort
	}
	if cfg.TTL == 0 {
		cfg.TTL = def.TTL
	}

	return &Framer{
		cfg: cfg,
		opts: gopacket.SerializeOptions{
			FixLengths:       true,
			ComputeChecksums: true,
		},
	}
}

// Wrap embeds payload in a full frame. The payload is carried as-is, faulted or not.
func (f *Framer) Wrap(payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       f.cfg.SrcMAC,
		DstMAC:       f.cfg.DstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      f.cfg.TTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    f.cfg.SrcIP.To4(),
		DstIP:    f.cfg.DstIP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(f.cfg.SrcPort),
		DstPort: layers.UDPPort(f.cfg.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("failed to set checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, f.opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Datagram is the decoded envelope of a frame
type Datagram struct {
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// UnwrapFrame decodes an Ethernet frame and returns its UDP datagram
func UnwrapFrame(frame []byte) (Datagram, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)

	ipLayer, ipOK := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	udpLayer, udpOK := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ipOK || !udpOK {
		if errLayer := pkt.ErrorLayer(); errLayer != nil {
			return Datagram{}, fmt.Errorf("%w: %v", ErrNotUDP, errLayer.Error())
		}
		return Datagram{}, ErrNotUDP
	}

	return Datagram{
		SrcIP:   ipLayer.SrcIP,
		DstIP:   ipLayer.DstIP,
		SrcPort: uint16(udpLayer.SrcPort),
		DstPort: uint16(udpLayer.DstPort),
		Payload: udpLayer.Payload,
	}, nil
}
