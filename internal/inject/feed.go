package inject

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"feedsim/internal/synth"
	"feedsim/internal/wire"
)

// Packet is one scripted book update
type Packet struct {
	Symbol   string
	Price    float64
	Quantity float64
	Side     wire.Side
	Faults   synth.Faults
}

// DefaultScript returns the canonical sequence: valid bid, valid ask,
// invalid magic and a truncated packet
func DefaultScript() []Packet {
	return []Packet{
		{Symbol: "BTC-USDT", Price: 60000.50, Quantity: 1.23, Side: wire.SideBid},
		{Symbol: "ETH-USDT", Price: 3000.75, Quantity: 5.67, Side: wire.SideAsk},
		{Symbol: "XRP-USDT", Price: 0.50, Quantity: 1000.0, Side: wire.SideBid, Faults: synth.Faults{InvalidMagic: true}},
		{Symbol: "LTC-USDT", Price: 150.0, Quantity: 10.0, Side: wire.SideAsk, Faults: synth.Faults{Truncate: true}},
	}
}

// FeedStats counts what a Feed has sent
type FeedStats struct {
	Sent    int64
	Faulted int64
	Errors  int64
	LastSeq uint64
}

// Feed assigns sequence numbers, synthesizes packets and writes them to a sink
type Feed struct {
	synth  *synth.Synthesizer
	sink   Sink
	faults synth.Faults

	mu    sync.Mutex
	seq   uint64
	stats FeedStats
}

// NewFeed creates a feed. faults are applied to every packet on top of the
// packet's own faults.
func NewFeed(s *synth.Synthesizer, sink Sink, faults synth.Faults) *Feed {
	return &Feed{synth: s, sink: sink, faults: faults}
}

// Send synthesizes p with the next sequence number and writes it. Frame
// sinks get the full Ethernet/IPv4/UDP frame, payload sinks the bare packet.
// A packet that fails to synthesize does not consume a sequence number.
func (f *Feed) Send(p Packet) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	faults := p.Faults.Or(f.faults)
	req := synth.Request{
		SeqNum:   f.seq + 1,
		Symbol:   p.Symbol,
		Price:    p.Price,
		Quantity: p.Quantity,
		Side:     p.Side,
		Faults:   faults,
	}

	data, write, err := f.build(req)
	if err != nil {
		f.stats.Errors++
		return req.SeqNum, err
	}
	f.seq = req.SeqNum

	if err := write(data); err != nil {
		f.stats.Errors++
		return f.seq, err
	}

	f.stats.Sent++
	f.stats.LastSeq = f.seq
	if faults.Any() {
		f.stats.Faulted++
	}
	return f.seq, nil
}

// build synthesizes req in the shape the sink expects
func (f *Feed) build(req synth.Request) ([]byte, func([]byte) error, error) {
	switch sink := f.sink.(type) {
	case FrameSink:
		frame, err := f.synth.SynthesizeFrame(req)
		return frame, sink.WriteFrame, err
	case PayloadSink:
		payload, err := f.synth.Synthesize(req)
		return payload, sink.WritePacket, err
	default:
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedSink, f.sink)
	}
}

// Run cycles through script, one packet per interval, until count packets
// were sent (0 = unbounded) or ctx is done. Write errors are logged and the
// feed keeps going. Input errors and unusable sinks stop it.
func (f *Feed) Run(ctx context.Context, script []Packet, interval time.Duration, count int) error {
	if len(script) == 0 {
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("feed interval must be positive, got %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; count == 0 || i < count; i++ {
		p := script[i%len(script)]
		seq, err := f.Send(p)
		if err != nil {
			if synth.IsInputError(err) || errors.Is(err, ErrUnsupportedSink) {
				return err
			}
			log.Printf("[FEED] Failed to send seq=%d %s: %v", seq, p.Symbol, err)
		} else {
			log.Printf("[FEED] Sent seq=%d %s %s %v@%v faults=%+v", seq, p.Symbol, p.Side, p.Quantity, p.Price, p.Faults.Or(f.faults))
		}

		if count != 0 && i == count-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stats returns a copy of the feed counters
func (f *Feed) Stats() FeedStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}
