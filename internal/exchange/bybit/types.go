package bybit

// Config holds configuration for the simulated Bybit stream
type Config struct {
	Symbol string
	Depth  int
}

// WSMessage represents a Bybit orderbook push message
type WSMessage struct {
	Topic string        `json:"topic"`
	Type  string        `json:"type"` // "snapshot" or "delta"
	TS    int64         `json:"ts"`
	Data  OrderbookData `json:"data"`
}

// OrderbookData represents the orderbook data from Bybit
type OrderbookData struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"` // [price, size]
	Asks     [][]string `json:"a"` // [price, size]
	UpdateID int64      `json:"u"`
	TS       int64      `json:"ts"`
}

// SubscribeMessage represents a subscription request
type SubscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}
