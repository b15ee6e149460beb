package okx

import (
	"encoding/json"
	"testing"
	"time"

	"feedsim/internal/exchange"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.UnixMilli(1700000000123)

func TestMessageSnapshotThenUpdate(t *testing.T) {
	first := Message("BTC-USDT", 1, testTime)
	assert.Equal(t, ActionSnapshot, first.Action)
	assert.Equal(t, "60000.5", first.Data[0].Bids[0][0])
	assert.Equal(t, "60001.0", first.Data[0].Asks[0][0])

	for count := int64(2); count <= 10; count++ {
		msg := Message("BTC-USDT", count, testTime)
		assert.Equal(t, ActionUpdate, msg.Action, "message %d", count)
	}
}

func TestMessageShape(t *testing.T) {
	raw, err := json.Marshal(Message("BTC-USDT", 1, testTime))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))

	assert.Equal(t, "update", generic["event"])
	assert.Equal(t, "snapshot", generic["action"])
	assert.Equal(t, map[string]any{"channel": "books-l2-tbt", "instId": "BTC-USDT"}, generic["arg"])

	data := generic["data"].([]any)
	require.Len(t, data, 1)
	book := data[0].(map[string]any)
	assert.Equal(t, "1700000000123", book["ts"])
	assert.Equal(t, "BTC-USDT", book["instId"])
	assert.Equal(t, "12345678", book["checksum"])

	bids := book["bids"].([]any)
	require.Len(t, bids, 2)
	assert.Equal(t, []any{"60000.5", "1.5", "0", "1"}, bids[0])
	assert.Equal(t, []any{"60000.0", "2.0", "0", "1"}, bids[1])

	asks := book["asks"].([]any)
	require.Len(t, asks, 2)
	assert.Equal(t, []any{"60001.0", "0.5", "0", "1"}, asks[0])
	assert.Equal(t, []any{"60001.5", "1.0", "0", "1"}, asks[1])
}

func TestMessageDrift(t *testing.T) {
	msg := Message("BTC-USDT", 2, testTime)
	assert.Equal(t, "60000.7", msg.Data[0].Bids[0][0])
	assert.Equal(t, "60001.2", msg.Data[0].Asks[0][0])
	assert.Equal(t, "60000.0", msg.Data[0].Bids[1][0], "deeper levels stay fixed")
	assert.Equal(t, "60001.5", msg.Data[0].Asks[1][0])

	prevBid := decimal.RequireFromString("60000.5")
	prevAsk := decimal.RequireFromString("60001.0")
	for count := int64(2); count <= 50; count++ {
		m := Message("BTC-USDT", count, testTime)
		bid := decimal.RequireFromString(m.Data[0].Bids[0][0])
		ask := decimal.RequireFromString(m.Data[0].Asks[0][0])
		assert.True(t, bid.GreaterThan(prevBid), "bid drift grows at %d", count)
		assert.True(t, ask.GreaterThan(prevAsk), "ask drift grows at %d", count)
		prevBid, prevAsk = bid, ask
	}
}

func TestStreamCounter(t *testing.T) {
	s := NewStream(Config{InstID: "btcusdt"})
	assert.Equal(t, exchange.OKX, s.GetName())
	assert.Zero(t, s.Count())

	p := NewParser()
	for i := 1; i <= 3; i++ {
		raw, err := s.Next(testTime)
		require.NoError(t, err)
		assert.Equal(t, int64(i), s.Count())

		upd, err := p.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, i == 1, upd.IsSnapshot)
		assert.Equal(t, "BTC-USDT", upd.Symbol)
		assert.Equal(t, testTime.UnixMilli(), upd.EventTime.UnixMilli())
		assert.Len(t, upd.Bids, 2)
		assert.Len(t, upd.Asks, 2)
	}
}

func TestIndependentStreams(t *testing.T) {
	a := NewStream(Config{InstID: "BTC-USDT"})
	b := NewStream(Config{InstID: "BTC-USDT"})

	for i := 0; i < 4; i++ {
		_, err := a.Next(testTime)
		require.NoError(t, err)
	}
	raw, err := b.Next(testTime)
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, ActionSnapshot, msg.Action)
	assert.Equal(t, int64(4), a.Count())
	assert.Equal(t, int64(1), b.Count())
}

func TestParserRejects(t *testing.T) {
	p := NewParser()
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"bad action", `{"action":"partial","data":[{"ts":"1"}]}`},
		{"no data", `{"action":"update","data":[]}`},
		{"bad level", `{"action":"update","data":[{"ts":"1","bids":[["1"]]}]}`},
		{"bad ts", `{"action":"update","data":[{"ts":"x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestConvertToOKXSymbol(t *testing.T) {
	tests := map[string]string{
		"BTCUSDT":  "BTC-USDT",
		"btc-usdt": "BTC-USDT",
		"ETHUSDC":  "ETH-USDC",
		"SOLUSD":   "SOL-USD",
		"WEIRD":    "WEIRD",
	}
	for in, want := range tests {
		assert.Equal(t, want, ConvertToOKXSymbol(in), in)
	}
}
