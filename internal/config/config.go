package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"feedsim/internal/exchange"
	"feedsim/internal/factory"
	"feedsim/internal/inject"
	"feedsim/internal/synth"
	"feedsim/internal/wire"

	"gopkg.in/yaml.v3"
)

// Sink kinds for the binary feed
const (
	SinkUDP  = "udp"
	SinkRaw  = "raw"
	SinkPcap = "pcap"
)

// Config holds all application configuration
type Config struct {
	MockExchange MockExchangeConfig `yaml:"mock_exchange"`
	Feed         FeedConfig         `yaml:"feed"`
}

// MockExchangeConfig holds the websocket simulator configuration
type MockExchangeConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	Interval     time.Duration `yaml:"interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	OKX          ChannelConfig `yaml:"okx"`
	Bybit        ChannelConfig `yaml:"bybit"`
}

// ChannelConfig holds one simulated exchange channel
type ChannelConfig struct {
	Path   string `yaml:"path"`
	Symbol string `yaml:"symbol"`
	Depth  int    `yaml:"depth"`
}

// FeedConfig holds the binary packet feed configuration
type FeedConfig struct {
	Sink         string        `yaml:"sink"`
	Interface    string        `yaml:"interface"`
	DestIP       string        `yaml:"dest_ip"`
	DestPort     uint16        `yaml:"dest_port"`
	SourcePort   uint16        `yaml:"source_port"`
	PcapPath     string        `yaml:"pcap_path"`
	Interval     time.Duration `yaml:"interval"`
	Count        int           `yaml:"count"`
	InvalidMagic bool          `yaml:"invalid_magic"`
	Truncate     bool          `yaml:"truncate"`
	Script       []ScriptEntry `yaml:"script"`
}

// ScriptEntry is one scripted packet of the feed
type ScriptEntry struct {
	Symbol       string  `yaml:"symbol"`
	Price        float64 `yaml:"price"`
	Quantity     float64 `yaml:"quantity"`
	Side         string  `yaml:"side"`
	InvalidMagic bool    `yaml:"invalid_magic"`
	Truncate     bool    `yaml:"truncate"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		MockExchange: MockExchangeConfig{
			ListenAddr:   "0.0.0.0:8765",
			Interval:     time.Second,
			WriteTimeout: 5 * time.Second,
			OKX: ChannelConfig{
				Path:   "/ws/v5/public",
				Symbol: "BTC-USDT",
			},
			Bybit: ChannelConfig{
				Path:   "/realtime",
				Symbol: "BTCUSDT",
				Depth:  50,
			},
		},
		Feed: FeedConfig{
			Sink:       SinkUDP,
			Interface:  "lo",
			DestIP:     "127.0.0.1",
			DestPort:   12345,
			SourcePort: 50000,
			Interval:   time.Second,
			Count:      4,
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := overrideWithEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// overrideWithEnv lets deployments retarget the harness without a file
func overrideWithEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("FEEDSIM_LISTEN_ADDR"); ok {
		cfg.MockExchange.ListenAddr = v
	}
	if v, ok := os.LookupEnv("FEEDSIM_DEST_IP"); ok {
		cfg.Feed.DestIP = v
	}
	if v, ok := os.LookupEnv("FEEDSIM_DEST_PORT"); ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("failed to parse env FEEDSIM_DEST_PORT as port: %w", err)
		}
		cfg.Feed.DestPort = uint16(port)
	}
	if v, ok := os.LookupEnv("FEEDSIM_IFACE"); ok {
		cfg.Feed.Interface = v
	}
	return nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	m := c.MockExchange
	if m.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if m.Interval <= 0 {
		return fmt.Errorf("mock exchange interval must be positive")
	}
	if m.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if _, err := factory.NewRouter(c.Routes()); err != nil {
		return err
	}
	for _, ch := range []ChannelConfig{m.OKX, m.Bybit} {
		if !strings.HasPrefix(ch.Path, "/") {
			return fmt.Errorf("channel path %q must start with /", ch.Path)
		}
		if ch.Symbol == "" {
			return fmt.Errorf("channel %s needs a symbol", ch.Path)
		}
	}

	f := c.Feed
	switch f.Sink {
	case SinkUDP, SinkRaw:
	case SinkPcap:
		if f.PcapPath == "" {
			return fmt.Errorf("pcap sink needs pcap_path")
		}
	default:
		return fmt.Errorf("unknown feed sink %q", f.Sink)
	}
	if ip := net.ParseIP(f.DestIP); ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid IPv4 destination %q", f.DestIP)
	}
	if f.DestPort == 0 {
		return fmt.Errorf("destination port is required")
	}
	if f.Sink == SinkRaw && f.Interface == "" {
		return fmt.Errorf("raw sink needs an interface")
	}
	if f.Interval <= 0 {
		return fmt.Errorf("feed interval must be positive")
	}
	if f.Count < 0 {
		return fmt.Errorf("feed count must not be negative")
	}
	if _, err := f.Packets(); err != nil {
		return err
	}
	return nil
}

// Packets returns the feed script, or the default script when none is configured
func (f FeedConfig) Packets() ([]inject.Packet, error) {
	if len(f.Script) == 0 {
		return inject.DefaultScript(), nil
	}

	packets := make([]inject.Packet, 0, len(f.Script))
	for i, e := range f.Script {
		side, err := wire.ParseSide(e.Side)
		if err != nil {
			return nil, fmt.Errorf("script entry %d: %w", i, err)
		}
		if _, err := wire.EncodeSymbol(e.Symbol); err != nil {
			return nil, fmt.Errorf("script entry %d: %w", i, err)
		}
		packets = append(packets, inject.Packet{
			Symbol:   e.Symbol,
			Price:    e.Price,
			Quantity: e.Quantity,
			Side:     side,
			Faults:   synth.Faults{InvalidMagic: e.InvalidMagic, Truncate: e.Truncate},
		})
	}
	return packets, nil
}

// Routes returns the channel routing table of the mock exchange
func (c *Config) Routes() []factory.Route {
	return []factory.Route{
		{
			Path: c.MockExchange.OKX.Path,
			Stream: factory.StreamConfig{
				Name:   exchange.OKX,
				Symbol: c.MockExchange.OKX.Symbol,
				Depth:  c.MockExchange.OKX.Depth,
			},
		},
		{
			Path: c.MockExchange.Bybit.Path,
			Stream: factory.StreamConfig{
				Name:   exchange.Bybit,
				Symbol: c.MockExchange.Bybit.Symbol,
				Depth:  c.MockExchange.Bybit.Depth,
			},
		},
	}
}

// DestAddr returns the feed destination as host:port
func (f FeedConfig) DestAddr() string {
	return net.JoinHostPort(f.DestIP, strconv.Itoa(int(f.DestPort)))
}

// ChannelPath returns the configured path of an exchange
func (c *Config) ChannelPath(name exchange.ExchangeName) (string, error) {
	switch name {
	case exchange.OKX:
		return c.MockExchange.OKX.Path, nil
	case exchange.Bybit:
		return c.MockExchange.Bybit.Path, nil
	default:
		return "", fmt.Errorf("unknown exchange: %s", name)
	}
}

// ChannelSymbol returns the configured symbol of an exchange
func (c *Config) ChannelSymbol(name exchange.ExchangeName) string {
	if name == exchange.OKX {
		return c.MockExchange.OKX.Symbol
	}
	return c.MockExchange.Bybit.Symbol
}
