package factory

import (
	"errors"
	"fmt"

	"feedsim/internal/exchange"
	"feedsim/internal/exchange/bybit"
	"feedsim/internal/exchange/okx"
)

var ErrUnknownChannel = errors.New("unsupported channel path")

// StreamConfig holds configuration for creating a stream
type StreamConfig struct {
	Name   exchange.ExchangeName
	Symbol string
	Depth  int
}

// NewStream creates a fresh per-connection stream for the configured exchange
func NewStream(config StreamConfig) (exchange.Stream, error) {
	switch config.Name {
	case exchange.OKX:
		return okx.NewStream(okx.Config{
			InstID: config.Symbol,
		}), nil

	case exchange.Bybit:
		return bybit.NewStream(bybit.Config{
			Symbol: config.Symbol,
			Depth:  config.Depth,
		}), nil

	default:
		return nil, fmt.Errorf("unknown exchange: %s", config.Name)
	}
}

// NewParser creates a parser for messages of the given exchange
func NewParser(name exchange.ExchangeName) (exchange.Parser, error) {
	switch name {
	case exchange.OKX:
		return okx.NewParser(), nil
	case exchange.Bybit:
		return bybit.NewParser(), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}

// Route binds a channel path to a stream configuration
type Route struct {
	Path   string
	Stream StreamConfig
}

// Router resolves channel paths to exchanges
type Router struct {
	routes map[string]StreamConfig
	order  []string
}

// NewRouter validates the routes: paths must be distinct and non-empty and
// each must name a supported exchange
func NewRouter(routes []Route) (*Router, error) {
	r := &Router{routes: make(map[string]StreamConfig, len(routes))}
	for _, route := range routes {
		if route.Path == "" {
			return nil, fmt.Errorf("empty channel path for %s", route.Stream.Name)
		}
		if _, err := exchange.ParseExchangeName(string(route.Stream.Name)); err != nil {
			return nil, err
		}
		if _, dup := r.routes[route.Path]; dup {
			return nil, fmt.Errorf("duplicate channel path %s", route.Path)
		}
		r.routes[route.Path] = route.Stream
		r.order = append(r.order, route.Path)
	}
	return r, nil
}

// Resolve returns the stream configuration served on path
func (r *Router) Resolve(path string) (StreamConfig, error) {
	cfg, ok := r.routes[path]
	if !ok {
		return StreamConfig{}, fmt.Errorf("%w: %s", ErrUnknownChannel, path)
	}
	return cfg, nil
}

// Paths returns the configured channel paths in registration order
func (r *Router) Paths() []string {
	return append([]string(nil), r.order...)
}

// GetSupportedExchanges returns a list of all simulated exchanges
func GetSupportedExchanges() []exchange.ExchangeName {
	return []exchange.ExchangeName{exchange.OKX, exchange.Bybit}
}
