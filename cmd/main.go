package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"feedsim/internal/config"
	"feedsim/internal/exchange"
	"feedsim/internal/factory"
	"feedsim/internal/inject"
	"feedsim/internal/orderbook"
	"feedsim/internal/probe"
	"feedsim/internal/synth"
	"feedsim/internal/websocket"
)

func main() {
	// Parse command line flags
	var configPath = flag.String("config", "", "Path to YAML configuration file")
	var runMock = flag.Bool("mock", true, "Run the mock exchange websocket server")
	var runFeed = flag.Bool("feed", false, "Send the binary packet feed")
	var runProbe = flag.Bool("probe", false, "Follow the mock exchange channels and print book stats")
	var count = flag.Int("count", -1, "Packets to send (0 = until interrupted, -1 = use config)")
	var logInterval = flag.Duration("log-interval", 5*time.Second, "Interval for logging probe stats")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *count >= 0 {
		cfg.Feed.Count = *count
	}

	if !*runMock && !*runFeed && !*runProbe {
		log.Fatal("Nothing to run: enable at least one of -mock, -feed, -probe")
	}

	// Set up signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var wg sync.WaitGroup

	if *runMock {
		srv, err := websocket.NewServer(websocket.Options{
			Addr:         cfg.MockExchange.ListenAddr,
			Interval:     cfg.MockExchange.Interval,
			WriteTimeout: cfg.MockExchange.WriteTimeout,
			Routes:       cfg.Routes(),
		})
		if err != nil {
			log.Fatalf("Failed to create mock exchange: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(); err != nil {
				log.Printf("Mock exchange error: %v", err)
				stop()
			}
		}()
		go func() {
			<-ctx.Done()
			if err := srv.Close(); err != nil {
				log.Printf("Mock exchange shutdown error: %v", err)
			}
		}()
	}

	if *runFeed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sendFeed(ctx, cfg.Feed); err != nil {
				log.Printf("[FEED] %v", err)
			}
		}()
	}

	if *runProbe {
		for _, name := range factory.GetSupportedExchanges() {
			wg.Add(1)
			go func(name exchange.ExchangeName) {
				defer wg.Done()
				followChannel(ctx, &cfg, name, *logInterval)
			}(name)
		}
	}

	wg.Wait()
	log.Println("All components stopped. Goodbye!")
}

// newFramer builds the frame envelope the raw and pcap sinks carry
func newFramer(cfg config.FeedConfig) *synth.Framer {
	return synth.NewFramer(synth.FrameConfig{
		DstIP:   net.ParseIP(cfg.DestIP),
		SrcPort: cfg.SourcePort,
		DstPort: cfg.DestPort,
	})
}

// newSink builds the configured packet sink
func newSink(cfg config.FeedConfig) (inject.Sink, error) {
	switch cfg.Sink {
	case config.SinkRaw:
		return inject.NewRawSink(cfg.Interface)
	case config.SinkPcap:
		return inject.NewPcapSink(cfg.PcapPath)
	default:
		return inject.NewUDPSink(cfg.DestAddr(), cfg.SourcePort)
	}
}

func sendFeed(ctx context.Context, cfg config.FeedConfig) error {
	script, err := cfg.Packets()
	if err != nil {
		return err
	}

	sink, err := newSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s sink: %w", cfg.Sink, err)
	}
	defer sink.Close()

	feed := inject.NewFeed(synth.New(synth.WithFramer(newFramer(cfg))), sink, synth.Faults{
		InvalidMagic: cfg.InvalidMagic,
		Truncate:     cfg.Truncate,
	})

	log.Printf("[FEED] Sending to %s via %s sink every %v", cfg.DestAddr(), cfg.Sink, cfg.Interval)
	err = feed.Run(ctx, script, cfg.Interval, cfg.Count)

	stats := feed.Stats()
	log.Printf("[FEED] Sent %d packets (%d faulted, %d errors, last seq %d)",
		stats.Sent, stats.Faulted, stats.Errors, stats.LastSeq)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// probeURL points at the local mock exchange, swapping a wildcard host for loopback
func probeURL(listenAddr, path string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "ws://" + listenAddr + path
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "ws://" + net.JoinHostPort(host, port) + path
}

func followChannel(ctx context.Context, cfg *config.Config, name exchange.ExchangeName, logInterval time.Duration) {
	path, err := cfg.ChannelPath(name)
	if err != nil {
		log.Printf("[%s] %v", name, err)
		return
	}

	client, err := probe.NewClient(probe.Config{
		URL:    probeURL(cfg.MockExchange.ListenAddr, path),
		Name:   name,
		Symbol: cfg.ChannelSymbol(name),
		Depth:  cfg.MockExchange.Bybit.Depth,
	})
	if err != nil {
		log.Printf("[%s] Failed to create probe: %v", name, err)
		return
	}

	// the mock may still be binding its listener
	var connectErr error
	for attempt := 0; attempt < 5; attempt++ {
		if connectErr = client.Connect(ctx); connectErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
	if connectErr != nil {
		log.Printf("[%s] Failed to connect: %v", name, connectErr)
		return
	}
	defer client.Close()

	ob := orderbook.New()
	go func() {
		ticker := time.NewTicker(logInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				printStats(string(name), ob, client.Health())
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := client.Follow(ctx, ob); err != nil && ctx.Err() == nil {
		log.Printf("[%s] Probe stopped: %v", name, err)
	}
}

const (
	colorReset   = "\033[0m"
	colorYellow  = "\033[33m"
	colorGreen   = "\033[32m"
	colorRed     = "\033[31m"
	colorMagenta = "\033[35m"
	colorBold    = "\033[1m"
)

func printStats(name string, ob *orderbook.OrderBook, health exchange.HealthStatus) {
	if !ob.IsInitialized() {
		return
	}
	stats := ob.GetStats()

	fmt.Printf("%s%s%s", colorBold, name, colorReset)
	fmt.Printf("  Mid: %s%10s%s │ Spread: %s%8s%s | BB: %s%10s%s │ BA: %s%10s%s\n",
		colorYellow, stats.MidPrice().StringFixed(2), colorReset,
		colorMagenta, stats.Spread.StringFixed(4), colorReset,
		colorGreen, stats.BestBid.StringFixed(2), colorReset,
		colorRed, stats.BestAsk.StringFixed(2), colorReset)
	fmt.Printf("  EVENTS %d (snap %d, delta %d) │ Removed: %s%d%s stale %d │ Gaps: %s%d%s │ Msgs %d Errs %d\n",
		stats.EventsProcessed, stats.Snapshots, stats.Deltas,
		colorRed, stats.Removals, colorReset, stats.StaleRemovals,
		gapColor(stats.SequenceGaps), stats.SequenceGaps, colorReset,
		health.MessageCount, health.ErrorCount)
}

func gapColor(gaps int64) string {
	if gaps > 0 {
		return colorRed
	}
	return colorGreen
}
