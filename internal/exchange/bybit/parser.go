package bybit

import (
	"encoding/json"
	"fmt"
	"time"

	"feedsim/internal/exchange"
)

// Parser converts Bybit orderbook messages to canonical depth updates.
// It tracks the previous update id, so use one Parser per connection.
type Parser struct {
	lastUpdateID int64
}

// NewParser creates a Bybit parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes one orderbook message
func (p *Parser) Parse(raw []byte) (*exchange.DepthUpdate, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode bybit message: %w", err)
	}

	if msg.Type != TypeSnapshot && msg.Type != TypeDelta {
		return nil, fmt.Errorf("unknown bybit type %q", msg.Type)
	}
	if msg.Topic == "" || msg.Data.Symbol == "" {
		return nil, fmt.Errorf("bybit message without topic or symbol")
	}

	bids, err := exchange.LevelsFromPairs(msg.Data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bybit bids: %w", err)
	}
	asks, err := exchange.LevelsFromPairs(msg.Data.Asks)
	if err != nil {
		return nil, fmt.Errorf("bybit asks: %w", err)
	}

	isSnapshot := msg.Type == TypeSnapshot
	prev := p.lastUpdateID
	if isSnapshot {
		prev = 0
	}
	p.lastUpdateID = msg.Data.UpdateID

	ts := msg.Data.TS
	if ts == 0 {
		ts = msg.TS
	}

	return &exchange.DepthUpdate{
		Exchange:      exchange.Bybit,
		Symbol:        msg.Data.Symbol,
		IsSnapshot:    isSnapshot,
		EventTime:     time.UnixMilli(ts),
		FirstUpdateID: msg.Data.UpdateID,
		FinalUpdateID: msg.Data.UpdateID,
		PrevUpdateID:  prev,
		Bids:          bids,
		Asks:          asks,
	}, nil
}
