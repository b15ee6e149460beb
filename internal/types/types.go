package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel represents a single price level in the order book
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Stats holds statistical information about the order book
type Stats struct {
	EventsProcessed int64
	Snapshots       int64
	Deltas          int64
	Removals        int64 // zero-size levels that deleted an existing level
	StaleRemovals   int64 // zero-size levels for prices not in the book
	SequenceGaps    int64
	LastEventTime   time.Time
	LastUpdateID    int64
	BidLevels       int
	AskLevels       int
	BestBid         decimal.Decimal
	BestAsk         decimal.Decimal
	Spread          decimal.Decimal
}

// MidPrice returns the mid of best bid and best ask, zero when either side is empty
func (s Stats) MidPrice() decimal.Decimal {
	if s.BestBid.IsZero() || s.BestAsk.IsZero() {
		return decimal.Zero
	}
	return s.BestBid.Add(s.BestAsk).Div(decimal.NewFromInt(2))
}
