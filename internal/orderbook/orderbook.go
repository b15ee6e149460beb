package orderbook

import (
	"errors"
	"fmt"
	"sync"

	"feedsim/internal/exchange"
	"feedsim/internal/types"

	"github.com/shopspring/decimal"
)

var (
	ErrNotInitialized = errors.New("update before snapshot")
	ErrSequenceGap    = errors.New("sequence gap")
)

// OrderBook reconciles snapshot and delta messages into book state
type OrderBook struct {
	mu           sync.RWMutex
	bids         map[string]types.PriceLevel
	asks         map[string]types.PriceLevel
	lastUpdateID int64
	initialized  bool
	stats        types.Stats
}

// New creates a new OrderBook instance
func New() *OrderBook {
	return &OrderBook{
		bids: make(map[string]types.PriceLevel),
		asks: make(map[string]types.PriceLevel),
	}
}

// Apply processes one canonical update. A snapshot replaces the book; an
// incremental update upserts levels and deletes every level whose quantity
// is zero ("0", "0.0", ...).
func (ob *OrderBook) Apply(update *exchange.DepthUpdate) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if update.IsSnapshot {
		return ob.loadSnapshot(update)
	}

	if !ob.initialized {
		return ErrNotInitialized
	}

	if update.FinalUpdateID != 0 && ob.lastUpdateID != 0 && update.PrevUpdateID != ob.lastUpdateID {
		ob.stats.SequenceGaps++
		return fmt.Errorf("%w: expected prev=%d, got prev=%d", ErrSequenceGap, ob.lastUpdateID, update.PrevUpdateID)
	}

	// parse both sides first so a bad level leaves the book untouched
	bids, err := parseLevels(update.Bids)
	if err != nil {
		return fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(update.Asks)
	if err != nil {
		return fmt.Errorf("asks: %w", err)
	}
	ob.applyLevels(ob.bids, bids)
	ob.applyLevels(ob.asks, asks)

	ob.lastUpdateID = update.FinalUpdateID
	ob.stats.Deltas++
	ob.finishEvent(update)
	return nil
}

// loadSnapshot initializes the orderbook (must be called with mutex locked)
func (ob *OrderBook) loadSnapshot(snapshot *exchange.DepthUpdate) error {
	bids := make(map[string]types.PriceLevel)
	asks := make(map[string]types.PriceLevel)

	for _, side := range []struct {
		dst    map[string]types.PriceLevel
		levels []exchange.PriceLevel
	}{{bids, snapshot.Bids}, {asks, snapshot.Asks}} {
		for _, level := range side.levels {
			price, qty, err := parseLevel(level)
			if err != nil {
				return err
			}
			if !qty.IsZero() {
				side.dst[price.String()] = types.PriceLevel{Price: price, Quantity: qty}
			}
		}
	}

	ob.bids = bids
	ob.asks = asks
	ob.lastUpdateID = snapshot.FinalUpdateID
	ob.initialized = true
	ob.stats.Snapshots++
	ob.finishEvent(snapshot)
	return nil
}

// applyLevels upserts or deletes levels (must be called with mutex locked)
func (ob *OrderBook) applyLevels(book map[string]types.PriceLevel, levels []types.PriceLevel) {
	for _, level := range levels {
		key := level.Price.String()

		if level.Quantity.IsZero() {
			if _, exists := book[key]; exists {
				delete(book, key)
				ob.stats.Removals++
			} else {
				ob.stats.StaleRemovals++
			}
			continue
		}
		book[key] = level
	}
}

func parseLevels(levels []exchange.PriceLevel) ([]types.PriceLevel, error) {
	parsed := make([]types.PriceLevel, 0, len(levels))
	for _, level := range levels {
		price, qty, err := parseLevel(level)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, types.PriceLevel{Price: price, Quantity: qty})
	}
	return parsed, nil
}

// finishEvent refreshes cached stats (must be called with mutex locked)
func (ob *OrderBook) finishEvent(update *exchange.DepthUpdate) {
	ob.stats.EventsProcessed++
	ob.stats.LastEventTime = update.EventTime
	ob.stats.LastUpdateID = ob.lastUpdateID
	ob.stats.BidLevels = len(ob.bids)
	ob.stats.AskLevels = len(ob.asks)

	ob.stats.BestBid = decimal.Zero
	for _, level := range ob.bids {
		if level.Price.GreaterThan(ob.stats.BestBid) {
			ob.stats.BestBid = level.Price
		}
	}

	ob.stats.BestAsk = decimal.Zero
	for _, level := range ob.asks {
		if ob.stats.BestAsk.IsZero() || level.Price.LessThan(ob.stats.BestAsk) {
			ob.stats.BestAsk = level.Price
		}
	}

	if !ob.stats.BestBid.IsZero() && !ob.stats.BestAsk.IsZero() && ob.stats.BestAsk.GreaterThan(ob.stats.BestBid) {
		ob.stats.Spread = ob.stats.BestAsk.Sub(ob.stats.BestBid)
	} else {
		ob.stats.Spread = decimal.Zero
	}
}

func parseLevel(level exchange.PriceLevel) (decimal.Decimal, decimal.Decimal, error) {
	price, err := decimal.NewFromString(level.Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid price %s: %w", level.Price, err)
	}
	qty, err := decimal.NewFromString(level.Quantity)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid quantity %s: %w", level.Quantity, err)
	}
	return price, qty, nil
}

// HasBid reports whether a bid level exists at price
func (ob *OrderBook) HasBid(price string) bool {
	return ob.has(true, price)
}

// HasAsk reports whether an ask level exists at price
func (ob *OrderBook) HasAsk(price string) bool {
	return ob.has(false, price)
}

func (ob *OrderBook) has(bid bool, price string) bool {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return false
	}
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	book := ob.asks
	if bid {
		book = ob.bids
	}
	_, ok := book[p.String()]
	return ok
}

// GetStats returns a copy of the current statistics
func (ob *OrderBook) GetStats() types.Stats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.stats
}

// IsInitialized returns whether a snapshot has been loaded
func (ob *OrderBook) IsInitialized() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.initialized
}
