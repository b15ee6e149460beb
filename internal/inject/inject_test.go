package inject

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"feedsim/internal/synth"
	"feedsim/internal/wire"

	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	packets [][]byte
	fail    error
}

func (m *memorySink) WritePacket(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.packets = append(m.packets, append([]byte(nil), payload...))
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) all() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.packets
}

func TestFeedDefaultScript(t *testing.T) {
	sink := &memorySink{}
	feed := NewFeed(synth.New(), sink, synth.Faults{})

	for _, p := range DefaultScript() {
		_, err := feed.Send(p)
		require.NoError(t, err)
	}

	pkts := sink.all()
	require.Len(t, pkts, 4)

	first, err := wire.Decode(pkts[0])
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT", first.Update.SymbolString())
	assert.Equal(t, wire.SideBid, first.Update.Side)

	second, err := wire.Decode(pkts[1])
	require.NoError(t, err)
	assert.Equal(t, "ETH-USDT", second.Update.SymbolString())
	assert.Equal(t, wire.SideAsk, second.Update.Side)

	_, err = wire.Decode(pkts[2])
	assert.ErrorIs(t, err, wire.ErrBadMagic)

	_, err = wire.Decode(pkts[3])
	assert.ErrorIs(t, err, wire.ErrTruncated)
	assert.Len(t, pkts[3], wire.PacketSize-synth.TruncateBytes)

	stats := feed.Stats()
	assert.Equal(t, int64(4), stats.Sent)
	assert.Equal(t, int64(2), stats.Faulted)
	assert.Equal(t, uint64(4), stats.LastSeq)
}

func TestFeedSequenceStrictlyIncreasing(t *testing.T) {
	sink := &memorySink{}
	feed := NewFeed(synth.New(), sink, synth.Faults{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := feed.Send(Packet{Symbol: "BTC-USDT", Price: 1, Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	var last uint64
	for _, b := range sink.all() {
		pkt, err := wire.Decode(b)
		require.NoError(t, err)
		assert.False(t, seen[pkt.Header.SeqNum], "duplicate seq %d", pkt.Header.SeqNum)
		assert.Greater(t, pkt.Header.SeqNum, last, "sink order follows sequence order")
		seen[pkt.Header.SeqNum] = true
		last = pkt.Header.SeqNum
	}
	assert.Len(t, seen, 50)
}

func TestFeedGlobalFaults(t *testing.T) {
	sink := &memorySink{}
	feed := NewFeed(synth.New(), sink, synth.Faults{InvalidMagic: true})

	_, err := feed.Send(Packet{Symbol: "BTC-USDT", Price: 1, Quantity: 1})
	require.NoError(t, err)

	_, err = wire.Decode(sink.all()[0])
	assert.ErrorIs(t, err, wire.ErrBadMagic)
	assert.Equal(t, int64(1), feed.Stats().Faulted)
}

func TestFeedRunCount(t *testing.T) {
	sink := &memorySink{}
	feed := NewFeed(synth.New(), sink, synth.Faults{})

	err := feed.Run(context.Background(), DefaultScript(), time.Millisecond, 6)
	require.NoError(t, err)
	assert.Len(t, sink.all(), 6)
	assert.Equal(t, uint64(6), feed.Stats().LastSeq)
}

func TestFeedRunStopsOnCancel(t *testing.T) {
	sink := &memorySink{}
	feed := NewFeed(synth.New(), sink, synth.Faults{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := feed.Run(ctx, DefaultScript(), 5*time.Millisecond, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, sink.all())
}

func TestFeedRunInputErrorStops(t *testing.T) {
	feed := NewFeed(synth.New(), &memorySink{}, synth.Faults{})
	err := feed.Run(context.Background(), []Packet{{Symbol: "THIS-SYMBOL-IS-TOO-LONG"}}, time.Millisecond, 3)
	assert.ErrorIs(t, err, wire.ErrSymbolTooLong)
	assert.Equal(t, int64(1), feed.Stats().Errors)
}

func TestFeedRunSinkErrorsContinue(t *testing.T) {
	sink := &memorySink{fail: errors.New("link down")}
	feed := NewFeed(synth.New(), sink, synth.Faults{})

	err := feed.Run(context.Background(), DefaultScript(), time.Millisecond, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), feed.Stats().Errors)
	assert.Zero(t, feed.Stats().Sent)
}

func TestFeedRunRejectsZeroInterval(t *testing.T) {
	feed := NewFeed(synth.New(), &memorySink{}, synth.Faults{})
	assert.Error(t, feed.Run(context.Background(), DefaultScript(), 0, 1))
}

func TestFeedRejectedPacketKeepsSequence(t *testing.T) {
	sink := &memorySink{}
	feed := NewFeed(synth.New(), sink, synth.Faults{})

	seq, err := feed.Send(Packet{Symbol: "THIS-SYMBOL-IS-TOO-LONG", Price: 1, Quantity: 1})
	assert.ErrorIs(t, err, wire.ErrSymbolTooLong)
	assert.Equal(t, uint64(1), seq)

	seq, err = feed.Send(Packet{Symbol: "BTC-USDT", Price: 1, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	pkt, err := wire.Decode(sink.all()[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pkt.Header.SeqNum)

	stats := feed.Stats()
	assert.Equal(t, uint64(1), stats.LastSeq)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), stats.Sent)
}

type closeOnlySink struct{}

func (closeOnlySink) Close() error { return nil }

func TestFeedRunUnsupportedSinkStops(t *testing.T) {
	feed := NewFeed(synth.New(), closeOnlySink{}, synth.Faults{})
	err := feed.Run(context.Background(), DefaultScript(), time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrUnsupportedSink)
	assert.Equal(t, int64(1), feed.Stats().Errors)
}

func readPcap(t *testing.T, r io.Reader) []synth.Datagram {
	t.Helper()
	pr, err := pcapgo.NewReader(r)
	require.NoError(t, err)

	var dgrams []synth.Datagram
	for {
		data, _, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return dgrams
		}
		require.NoError(t, err)
		dg, err := synth.UnwrapFrame(data)
		require.NoError(t, err)
		dgrams = append(dgrams, dg)
	}
}

func TestPcapSinkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sink, err := NewPcapWriterSink(&buf)
	require.NoError(t, err)

	framer := synth.NewFramer(synth.FrameConfig{SrcPort: 41000, DstPort: 7000})
	feed := NewFeed(synth.New(synth.WithFramer(framer)), sink, synth.Faults{})
	for _, p := range DefaultScript() {
		_, err := feed.Send(p)
		require.NoError(t, err)
	}
	require.NoError(t, sink.Close())

	dgrams := readPcap(t, &buf)
	require.Len(t, dgrams, 4)
	for _, dg := range dgrams {
		assert.Equal(t, uint16(41000), dg.SrcPort)
		assert.Equal(t, uint16(7000), dg.DstPort)
	}

	assert.Len(t, dgrams[0].Payload, wire.PacketSize)
	assert.Len(t, dgrams[3].Payload, wire.PacketSize-synth.TruncateBytes)

	pkt, err := wire.Decode(dgrams[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pkt.Header.SeqNum)

	assert.ErrorIs(t, sink.WriteFrame([]byte{0}), ErrSinkClosed)
}

func TestUDPSinkDelivers(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	// grab a free port for the sender
	tmp, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srcPort := uint16(tmp.LocalAddr().(*net.UDPAddr).Port)
	require.NoError(t, tmp.Close())

	sink, err := NewUDPSink(pc.LocalAddr().String(), srcPort)
	require.NoError(t, err)
	defer sink.Close()

	feed := NewFeed(synth.New(), sink, synth.Faults{Truncate: true})
	_, err = feed.Send(Packet{Symbol: "BTC-USDT", Price: 60000.5, Quantity: 1.23})
	require.NoError(t, err)

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, from, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, wire.PacketSize-synth.TruncateBytes, n)
	assert.Equal(t, int(srcPort), from.(*net.UDPAddr).Port)
}
