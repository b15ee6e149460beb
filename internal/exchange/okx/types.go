package okx

// Config holds configuration for the simulated OKX stream
type Config struct {
	InstID string
}

// WSMessage is an OKX books-l2-tbt push message
type WSMessage struct {
	Event  string     `json:"event"`
	Arg    Arg        `json:"arg"`
	Action string     `json:"action"` // "snapshot" or "update"
	Data   []BookData `json:"data"`
}

// Arg identifies the subscribed channel
type Arg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// BookData represents the orderbook slice in a push message
type BookData struct {
	Ts       string     `json:"ts"`   // milliseconds, as string
	Bids     [][]string `json:"bids"` // [price, quantity, deprecated, order_count]
	Asks     [][]string `json:"asks"` // [price, quantity, deprecated, order_count]
	InstID   string     `json:"instId"`
	Checksum string     `json:"checksum"`
}

// SubscribeMessage represents a subscription request
type SubscribeMessage struct {
	Op   string `json:"op"`
	Args []Arg  `json:"args"`
}
