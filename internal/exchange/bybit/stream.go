package bybit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"feedsim/internal/exchange"

	"github.com/shopspring/decimal"
)

const (
	TypeSnapshot = "snapshot"
	TypeDelta    = "delta"

	DefaultDepth = 50

	// RemovalEvery is the message period of the synthetic level removal
	RemovalEvery = 5
	// RemovedPrice is the bid level deleted on every RemovalEvery-th message
	RemovedPrice = "59990.0"
	// RemovedSize is the literal size marking a level removal
	RemovedSize = "0.0"
)

var (
	bestBidBase = decimal.RequireFromString("59999.5")
	bestAskBase = decimal.RequireFromString("60000.0")
	driftStep   = decimal.RequireFromString("0.1")
)

// Topic returns the orderbook topic for a depth tier and symbol
func Topic(depth int, symbol string) string {
	return fmt.Sprintf("orderbook.%d.%s", depth, symbol)
}

// Message builds the count-th message of a connection. Message 1 is the
// snapshot, later ones are deltas with the best bid and ask drifted by 0.1
// per message; every 5th message also removes a bid level.
func Message(symbol string, depth int, count int64, ts time.Time) *WSMessage {
	msgType := TypeDelta
	if count == 1 {
		msgType = TypeSnapshot
	}

	bids := [][]string{
		{"59999.5", "1.0"},
		{"59999.0", "2.0"},
	}
	asks := [][]string{
		{"60000.0", "0.5"},
		{"60000.5", "1.0"},
	}

	if msgType == TypeDelta {
		drift := driftStep.Mul(decimal.NewFromInt(count))
		bids[0][0] = bestBidBase.Add(drift).StringFixed(1)
		asks[0][0] = bestAskBase.Add(drift).StringFixed(1)

		if count%RemovalEvery == 0 {
			bids = append(bids, []string{RemovedPrice, RemovedSize})
		}
	}

	ms := ts.UnixMilli()
	return &WSMessage{
		Topic: Topic(depth, symbol),
		Type:  msgType,
		TS:    ms,
		Data: OrderbookData{
			Symbol:   symbol,
			Bids:     bids,
			Asks:     asks,
			UpdateID: count,
			TS:       ms,
		},
	}
}

// Stream emits Bybit-shaped messages for one connection
type Stream struct {
	symbol string
	depth  int
	count  int64
}

// NewStream creates a stream whose counter starts at 1 on the first Next
func NewStream(config Config) *Stream {
	depth := config.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Stream{
		symbol: strings.ToUpper(strings.ReplaceAll(config.Symbol, "-", "")),
		depth:  depth,
	}
}

// GetName returns the exchange name
func (s *Stream) GetName() exchange.ExchangeName {
	return exchange.Bybit
}

// Next returns the next encoded message
func (s *Stream) Next(now time.Time) ([]byte, error) {
	s.count++
	return json.Marshal(Message(s.symbol, s.depth, s.count, now))
}

// Count returns the number of emitted messages
func (s *Stream) Count() int64 {
	return s.count
}
