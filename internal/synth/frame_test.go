package synth

import (
	"net"
	"testing"

	"feedsim/internal/wire"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerWrapUnwrap(t *testing.T) {
	framer := NewFramer(FrameConfig{
		DstIP:   net.IPv4(10, 0, 0, 7),
		DstPort: 9000,
	})

	payload, err := newTestSynth().Synthesize(Request{SeqNum: 1, Symbol: "BTC-USDT", Price: 60000.5, Quantity: 1.23})
	require.NoError(t, err)

	frame, err := framer.Wrap(payload)
	require.NoError(t, err)
	assert.Len(t, frame, 14+20+8+wire.PacketSize)

	dg, err := UnwrapFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultSrcPort), dg.SrcPort)
	assert.Equal(t, uint16(9000), dg.DstPort)
	assert.True(t, dg.DstIP.Equal(net.IPv4(10, 0, 0, 7)))
	assert.True(t, dg.SrcIP.Equal(net.IPv4(127, 0, 0, 1)))
	assert.Equal(t, payload, dg.Payload)
}

func TestFramerChecksumsValid(t *testing.T) {
	frame, err := NewFramer(DefaultFrameConfig()).Wrap([]byte("hello"))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.NotZero(t, ip.Checksum)
	assert.Equal(t, uint16(20+8+5), ip.Length)

	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, uint16(8+5), udp.Length)
}

func TestSynthesizeFrameCarriesFaultedPayload(t *testing.T) {
	s := New(WithFramer(NewFramer(FrameConfig{DstPort: 4242})))
	req := Request{
		SeqNum: 4, Symbol: "LTC-USDT", Price: 150, Quantity: 10, Side: wire.SideAsk,
		Faults: Faults{Truncate: true},
	}

	frame, err := s.SynthesizeFrame(req)
	require.NoError(t, err)

	dg, err := UnwrapFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(4242), dg.DstPort)
	assert.Len(t, dg.Payload, wire.PacketSize-TruncateBytes)

	_, err = wire.Decode(dg.Payload)
	assert.ErrorIs(t, err, wire.ErrTruncated)
}

func TestSynthesizeFrameDefaultFramer(t *testing.T) {
	frame, err := New().SynthesizeFrame(Request{SeqNum: 1, Symbol: "BTC-USDT", Price: 1, Quantity: 1})
	require.NoError(t, err)

	dg, err := UnwrapFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(DefaultDstPort), dg.DstPort)
	assert.Len(t, dg.Payload, wire.PacketSize)
}

func TestUnwrapFrameRejectsGarbage(t *testing.T) {
	_, err := UnwrapFrame([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotUDP)
}
