package probe

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"feedsim/internal/exchange"
	"feedsim/internal/exchange/bybit"
	"feedsim/internal/exchange/okx"
	"feedsim/internal/factory"
	"feedsim/internal/orderbook"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	updateBuffer     = 1000
)

// Config holds configuration for a probe connection
type Config struct {
	URL    string
	Name   exchange.ExchangeName
	Symbol string
	Depth  int
}

// Client subscribes to one simulated channel and decodes its messages
type Client struct {
	config     Config
	parser     exchange.Parser
	wsConn     *websocket.Conn
	updateChan chan *exchange.DepthUpdate
	done       chan struct{}
	closeOnce  sync.Once
	health     atomic.Value // stores exchange.HealthStatus
}

// NewClient creates a probe for the given exchange
func NewClient(config Config) (*Client, error) {
	parser, err := factory.NewParser(config.Name)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:     config,
		parser:     parser,
		updateChan: make(chan *exchange.DepthUpdate, updateBuffer),
		done:       make(chan struct{}),
	}
	c.health.Store(exchange.HealthStatus{})
	return c, nil
}

// GetName returns the exchange name
func (c *Client) GetName() exchange.ExchangeName {
	return c.config.Name
}

// Connect dials the channel, sends the subscription and starts reading
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{"websocket"},
	}

	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		c.incrementErrorCount()
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	c.wsConn = conn
	c.updateConnectionStatus(true)
	log.Printf("[%s] Probe connected to %s", c.GetName(), c.config.URL)

	if err := conn.WriteJSON(c.subscribeMessage()); err != nil {
		c.incrementErrorCount()
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.readMessages()
	return nil
}

func (c *Client) subscribeMessage() any {
	if c.config.Name == exchange.OKX {
		return okx.SubscribeMessage{
			Op:   "subscribe",
			Args: []okx.Arg{{Channel: okx.Channel, InstID: c.config.Symbol}},
		}
	}

	depth := c.config.Depth
	if depth <= 0 {
		depth = bybit.DefaultDepth
	}
	return bybit.SubscribeMessage{
		Op:   "subscribe",
		Args: []string{bybit.Topic(depth, c.config.Symbol)},
	}
}

// Updates returns the channel of decoded updates, closed when reading stops
func (c *Client) Updates() <-chan *exchange.DepthUpdate {
	return c.updateChan
}

// Health returns connection health information
func (c *Client) Health() exchange.HealthStatus {
	if status, ok := c.health.Load().(exchange.HealthStatus); ok {
		return status
	}
	return exchange.HealthStatus{}
}

// Close sends a normal closure and closes the connection
func (c *Client) Close() error {
	if c.wsConn == nil {
		return nil
	}

	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.wsConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); werr != nil {
			log.Printf("[%s] Error sending close message: %v", c.GetName(), werr)
		}
		c.updateConnectionStatus(false)
		err = c.wsConn.Close()
	})
	return err
}

// readMessages continuously reads WebSocket messages
func (c *Client) readMessages() {
	defer close(c.updateChan)
	defer c.updateConnectionStatus(false)

	for {
		_, raw, err := c.wsConn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.incrementErrorCount()
				log.Printf("[%s] WebSocket read error: %v", c.GetName(), err)
			}
			return
		}

		update, err := c.parser.Parse(raw)
		if err != nil {
			c.incrementErrorCount()
			log.Printf("[%s] Failed to parse message: %v", c.GetName(), err)
			continue
		}
		c.recordMessage()

		select {
		case c.updateChan <- update:
		case <-c.done:
			return
		default:
			log.Printf("[%s] Warning: update channel full, skipping update", c.GetName())
		}
	}
}

// Follow applies every update to ob until the stream ends or ctx is done.
// It returns the first error the order book reports.
func (c *Client) Follow(ctx context.Context, ob *orderbook.OrderBook) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-c.updateChan:
			if !ok {
				return nil
			}
			if err := ob.Apply(update); err != nil {
				return fmt.Errorf("[%s] apply update %d: %w", c.GetName(), update.FinalUpdateID, err)
			}
		}
	}
}

// updateConnectionStatus updates the connection status in health
func (c *Client) updateConnectionStatus(connected bool) {
	status := c.Health()
	status.Connected = connected
	if !connected {
		now := time.Now()
		status.CloseTime = &now
	}
	c.health.Store(status)
}

// recordMessage bumps the message count and last message time
func (c *Client) recordMessage() {
	status := c.Health()
	status.MessageCount++
	status.LastMessage = time.Now()
	c.health.Store(status)
}

// incrementErrorCount increments the error count in health
func (c *Client) incrementErrorCount() {
	status := c.Health()
	status.ErrorCount++
	c.health.Store(status)
}
