package synth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"feedsim/internal/wire"
)

// TruncateBytes is the number of trailing bytes removed by the truncation fault
const TruncateBytes = 10

var (
	ErrInvalidPrice      = errors.New("price must be finite")
	ErrInvalidQuantity   = errors.New("quantity must be finite")
	ErrTruncateUnderflow = errors.New("buffer shorter than truncation length")
)

// Faults selects the deliberate malformations applied to a packet
type Faults struct {
	InvalidMagic bool
	Truncate     bool
}

// Any reports whether at least one fault is enabled
func (f Faults) Any() bool {
	return f.InvalidMagic || f.Truncate
}

// Or merges two fault sets
func (f Faults) Or(o Faults) Faults {
	return Faults{
		InvalidMagic: f.InvalidMagic || o.InvalidMagic,
		Truncate:     f.Truncate || o.Truncate,
	}
}

// Request describes one book update packet
type Request struct {
	SeqNum   uint64
	Symbol   string
	Price    float64
	Quantity float64
	Side     wire.Side
	Faults   Faults
}

// Synthesizer builds binary market-data packets. It holds no mutable state
// and is safe for concurrent use.
type Synthesizer struct {
	now    func() time.Time
	framer *Framer
}

// Option configures a Synthesizer
type Option func(*Synthesizer)

// WithClock overrides the wall clock used for header timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		s.now = now
	}
}

// WithFramer sets the framer used by SynthesizeFrame
func WithFramer(f *Framer) Option {
	return func(s *Synthesizer) {
		s.framer = f
	}
}

// New creates a Synthesizer
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize serializes the request into header+payload bytes and applies
// the requested faults. Invalid input is rejected with no partial output.
func (s *Synthesizer) Synthesize(req Request) ([]byte, error) {
	symbol, err := wire.EncodeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("%w: %d", wire.ErrInvalidSide, uint8(req.Side))
	}
	if math.IsNaN(req.Price) || math.IsInf(req.Price, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, req.Price)
	}
	if math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, req.Quantity)
	}

	header := wire.Header{
		Magic:       wire.Magic,
		MsgType:     wire.MsgTypeBookUpdate,
		SeqNum:      req.SeqNum,
		TimestampNs: uint64(s.now().UnixNano()),
	}
	if req.Faults.InvalidMagic {
		header.Magic = wire.InvalidMagic
	}

	buf := wire.AppendPacket(make([]byte, 0, wire.PacketSize), header, wire.BookUpdate{
		Symbol:   symbol,
		Price:    req.Price,
		Quantity: req.Quantity,
		Side:     req.Side,
	})

	if req.Faults.Truncate {
		return truncate(buf, TruncateBytes)
	}
	return buf, nil
}

// SynthesizeFrame synthesizes the packet and wraps it in an Ethernet/IPv4/UDP frame
func (s *Synthesizer) SynthesizeFrame(req Request) ([]byte, error) {
	payload, err := s.Synthesize(req)
	if err != nil {
		return nil, err
	}
	framer := s.framer
	if framer == nil {
		framer = NewFramer(DefaultFrameConfig())
	}
	return framer.Wrap(payload)
}

// truncate cuts n trailing bytes. A buffer shorter than n is clamped to
// empty and reported with ErrTruncateUnderflow.
func truncate(buf []byte, n int) ([]byte, error) {
	if len(buf) < n {
		return buf[:0], fmt.Errorf("%w: have %d, cut %d", ErrTruncateUnderflow, len(buf), n)
	}
	return buf[:len(buf)-n], nil
}

// IsInputError reports whether err is a caller-input validation failure
func IsInputError(err error) bool {
	return errors.Is(err, wire.ErrSymbolTooLong) ||
		errors.Is(err, wire.ErrSymbolNotASCII) ||
		errors.Is(err, wire.ErrInvalidSide) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidQuantity)
}
