package okx

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"feedsim/internal/exchange"

	"github.com/shopspring/decimal"
)

const (
	Channel          = "books-l2-tbt"
	ActionSnapshot   = "snapshot"
	ActionUpdate     = "update"
	checksumSentinel = "12345678"
)

var (
	bestBidBase = decimal.RequireFromString("60000.5")
	bestAskBase = decimal.RequireFromString("60001.0")
	driftStep   = decimal.RequireFromString("0.1")
)

// Message builds the count-th message of a connection. It is a pure function
// of its inputs: message 1 is the snapshot, later ones are updates with the
// best bid and ask drifted by 0.1 per message.
func Message(instID string, count int64, ts time.Time) *WSMessage {
	action := ActionUpdate
	if count == 1 {
		action = ActionSnapshot
	}

	bids := [][]string{
		{"60000.5", "1.5", "0", "1"},
		{"60000.0", "2.0", "0", "1"},
	}
	asks := [][]string{
		{"60001.0", "0.5", "0", "1"},
		{"60001.5", "1.0", "0", "1"},
	}

	if action == ActionUpdate {
		drift := driftStep.Mul(decimal.NewFromInt(count))
		bids[0][0] = bestBidBase.Add(drift).StringFixed(1)
		asks[0][0] = bestAskBase.Add(drift).StringFixed(1)
	}

	return &WSMessage{
		Event: "update",
		Arg: Arg{
			Channel: Channel,
			InstID:  instID,
		},
		Action: action,
		Data: []BookData{
			{
				Ts:       strconv.FormatInt(ts.UnixMilli(), 10),
				Bids:     bids,
				Asks:     asks,
				InstID:   instID,
				Checksum: checksumSentinel,
			},
		},
	}
}

// Stream emits OKX-shaped messages for one connection
type Stream struct {
	instID string
	count  int64
}

// NewStream creates a stream whose counter starts at 1 on the first Next
func NewStream(config Config) *Stream {
	return &Stream{instID: ConvertToOKXSymbol(config.InstID)}
}

// GetName returns the exchange name
func (s *Stream) GetName() exchange.ExchangeName {
	return exchange.OKX
}

// Next returns the next encoded message
func (s *Stream) Next(now time.Time) ([]byte, error) {
	s.count++
	return json.Marshal(Message(s.instID, s.count, now))
}

// Count returns the number of emitted messages
func (s *Stream) Count() int64 {
	return s.count
}

// ConvertToOKXSymbol converts various symbol formats to OKX format
// Examples: BTCUSDT -> BTC-USDT, BTC-USDT -> BTC-USDT
func ConvertToOKXSymbol(symbol string) string {
	if strings.Contains(symbol, "-") {
		return strings.ToUpper(symbol)
	}

	symbol = strings.ToUpper(symbol)

	if strings.HasSuffix(symbol, "USDT") {
		base := strings.TrimSuffix(symbol, "USDT")
		return fmt.Sprintf("%s-USDT", base)
	}

	if strings.HasSuffix(symbol, "USDC") {
		base := strings.TrimSuffix(symbol, "USDC")
		return fmt.Sprintf("%s-USDC", base)
	}

	if strings.HasSuffix(symbol, "USD") {
		base := strings.TrimSuffix(symbol, "USD")
		return fmt.Sprintf("%s-USD", base)
	}

	log.Printf("[OKX] Warning: Could not convert symbol %s to OKX format, using as-is", symbol)
	return symbol
}
