package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"feedsim/internal/exchange"
)

// Parser converts OKX push messages to canonical depth updates
type Parser struct{}

// NewParser creates an OKX parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes one books-l2-tbt message
func (p *Parser) Parse(raw []byte) (*exchange.DepthUpdate, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode okx message: %w", err)
	}

	if msg.Action != ActionSnapshot && msg.Action != ActionUpdate {
		return nil, fmt.Errorf("unknown okx action %q", msg.Action)
	}
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("empty okx data")
	}
	data := msg.Data[0]

	bids, err := exchange.LevelsFromPairs(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("okx bids: %w", err)
	}
	asks, err := exchange.LevelsFromPairs(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("okx asks: %w", err)
	}

	ms, err := strconv.ParseInt(data.Ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid okx ts %q: %w", data.Ts, err)
	}

	return &exchange.DepthUpdate{
		Exchange:   exchange.OKX,
		Symbol:     msg.Arg.InstID,
		IsSnapshot: msg.Action == ActionSnapshot,
		EventTime:  time.UnixMilli(ms),
		Bids:       bids,
		Asks:       asks,
	}, nil
}
