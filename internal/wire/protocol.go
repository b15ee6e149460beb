package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// Magic identifies a valid market-data packet
	Magic uint16 = 0xAABB
	// InvalidMagic is the value written when the bad-magic fault is injected
	InvalidMagic uint16 = 0xDEAD

	MsgTypeBookUpdate uint16 = 0x0001

	HeaderSize     = 20
	BookUpdateSize = 40
	PacketSize     = HeaderSize + BookUpdateSize

	SymbolSize = 16
)

// Header field offsets
const (
	offMagic     = 0
	offMsgType   = 2
	offSeqNum    = 4
	offTimestamp = 12
)

// BookUpdate field offsets, relative to the start of the payload.
// symbol(16) price(8) quantity(8) side(1) reserved(7)
const (
	offSymbol   = 0
	offPrice    = 16
	offQuantity = 24
	offSide     = 32
	offReserved = 33
)

var (
	ErrTruncated      = errors.New("packet truncated")
	ErrBadMagic       = errors.New("bad magic")
	ErrUnknownMsgType = errors.New("unknown message type")
	ErrSymbolTooLong  = errors.New("symbol exceeds 16 bytes")
	ErrSymbolNotASCII = errors.New("symbol is not ASCII")
	ErrInvalidSide    = errors.New("invalid side")
)

// Side of a book update
type Side uint8

const (
	SideBid Side = 0
	SideAsk Side = 1
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined sides
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// ParseSide converts "bid"/"ask" into a Side
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid", "BID":
		return SideBid, nil
	case "ask", "ASK":
		return SideAsk, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// Header is the common market data header
type Header struct {
	Magic       uint16
	MsgType     uint16
	SeqNum      uint64
	TimestampNs uint64
}

// BookUpdate is the book update payload (message type 0x0001)
type BookUpdate struct {
	Symbol   [SymbolSize]byte
	Price    float64
	Quantity float64
	Side     Side
}

// SymbolString returns the symbol with trailing NUL padding removed
func (b BookUpdate) SymbolString() string {
	n := SymbolSize
	for n > 0 && b.Symbol[n-1] == 0 {
		n--
	}
	return string(b.Symbol[:n])
}

// Packet is a decoded header plus payload
type Packet struct {
	Header Header
	Update BookUpdate
}

// EncodeSymbol NUL-pads an ASCII symbol into the fixed 16-byte field
func EncodeSymbol(symbol string) ([SymbolSize]byte, error) {
	var out [SymbolSize]byte
	if len(symbol) > SymbolSize {
		return out, fmt.Errorf("%w: %q is %d bytes", ErrSymbolTooLong, symbol, len(symbol))
	}
	for i := 0; i < len(symbol); i++ {
		if symbol[i] > 0x7f {
			return out, fmt.Errorf("%w: %q", ErrSymbolNotASCII, symbol)
		}
	}
	copy(out[:], symbol)
	return out, nil
}

// AppendPacket serializes header and payload to dst using explicit little-endian offsets
func AppendPacket(dst []byte, h Header, u BookUpdate) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, PacketSize)...)
	buf := dst[start:]

	binary.LittleEndian.PutUint16(buf[offMagic:], h.Magic)
	binary.LittleEndian.PutUint16(buf[offMsgType:], h.MsgType)
	binary.LittleEndian.PutUint64(buf[offSeqNum:], h.SeqNum)
	binary.LittleEndian.PutUint64(buf[offTimestamp:], h.TimestampNs)

	p := buf[HeaderSize:]
	copy(p[offSymbol:offSymbol+SymbolSize], u.Symbol[:])
	binary.LittleEndian.PutUint64(p[offPrice:], math.Float64bits(u.Price))
	binary.LittleEndian.PutUint64(p[offQuantity:], math.Float64bits(u.Quantity))
	p[offSide] = uint8(u.Side)
	// reserved bytes stay zero

	return dst
}

// Decode validates and parses a packet the way a correct receiver would:
// length first, then magic, then message type.
func Decode(b []byte) (Packet, error) {
	pkt, err := DecodeUnchecked(b)
	if err != nil {
		return Packet{}, err
	}
	if pkt.Header.Magic != Magic {
		return pkt, fmt.Errorf("%w: 0x%04X", ErrBadMagic, pkt.Header.Magic)
	}
	if pkt.Header.MsgType != MsgTypeBookUpdate {
		return pkt, fmt.Errorf("%w: 0x%04X", ErrUnknownMsgType, pkt.Header.MsgType)
	}
	return pkt, nil
}

// DecodeUnchecked parses all fields without validating magic or message type
func DecodeUnchecked(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: got %d bytes, need %d", ErrTruncated, len(b), PacketSize)
	}

	var pkt Packet
	pkt.Header = Header{
		Magic:       binary.LittleEndian.Uint16(b[offMagic:]),
		MsgType:     binary.LittleEndian.Uint16(b[offMsgType:]),
		SeqNum:      binary.LittleEndian.Uint64(b[offSeqNum:]),
		TimestampNs: binary.LittleEndian.Uint64(b[offTimestamp:]),
	}

	p := b[HeaderSize:PacketSize]
	copy(pkt.Update.Symbol[:], p[offSymbol:offSymbol+SymbolSize])
	pkt.Update.Price = math.Float64frombits(binary.LittleEndian.Uint64(p[offPrice:]))
	pkt.Update.Quantity = math.Float64frombits(binary.LittleEndian.Uint64(p[offQuantity:]))
	pkt.Update.Side = Side(p[offSide])

	return pkt, nil
}

// Reserved returns the 7 padding bytes of an encoded packet
func Reserved(b []byte) []byte {
	if len(b) < PacketSize {
		return nil
	}
	return b[HeaderSize+offReserved : PacketSize]
}
