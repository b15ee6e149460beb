package exchange

import (
	"fmt"
	"time"
)

// ExchangeName represents supported exchange identifiers
type ExchangeName string

const (
	OKX   ExchangeName = "okx"
	Bybit ExchangeName = "bybit"
)

// ParseExchangeName validates a user-supplied exchange name
func ParseExchangeName(name string) (ExchangeName, error) {
	switch ExchangeName(name) {
	case OKX, Bybit:
		return ExchangeName(name), nil
	default:
		return "", fmt.Errorf("unknown exchange: %s", name)
	}
}

// Stream generates the messages of a single simulated connection. A Stream
// is owned by exactly one connection and is not safe for concurrent use.
type Stream interface {
	// GetName returns the simulated exchange
	GetName() ExchangeName

	// Next advances the message counter and returns the encoded message
	Next(now time.Time) ([]byte, error)

	// Count returns the number of messages emitted so far
	Count() int64
}

// Parser decodes exchange-shaped messages into the canonical format
type Parser interface {
	Parse(msg []byte) (*DepthUpdate, error)
}

// DepthUpdate represents a canonical depth event (normalized across exchanges)
type DepthUpdate struct {
	Exchange      ExchangeName // Exchange name
	Symbol        string       // Trading symbol
	IsSnapshot    bool         // Full state rather than incremental
	EventTime     time.Time    // Event timestamp
	FirstUpdateID int64        // First update ID in this event
	FinalUpdateID int64        // Final update ID in this event
	PrevUpdateID  int64        // Previous update ID (for continuity checking)
	Bids          []PriceLevel // Bid levels
	Asks          []PriceLevel // Ask levels
}

// PriceLevel represents a single price level [price, quantity]
type PriceLevel struct {
	Price    string // Price as string to avoid precision loss
	Quantity string // Quantity as string to avoid precision loss
}

// HealthStatus represents connection health information
type HealthStatus struct {
	Connected    bool
	LastMessage  time.Time
	MessageCount int64
	ErrorCount   int64
	CloseTime    *time.Time
}

// LevelsFromPairs converts [price, size, ...] arrays to canonical levels
func LevelsFromPairs(pairs [][]string) ([]PriceLevel, error) {
	levels := make([]PriceLevel, len(pairs))
	for i, pair := range pairs {
		if len(pair) < 2 {
			return nil, fmt.Errorf("malformed level %d: %v", i, pair)
		}
		levels[i] = PriceLevel{
			Price:    pair[0],
			Quantity: pair[1],
		}
	}
	return levels, nil
}
