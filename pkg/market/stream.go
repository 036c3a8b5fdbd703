// Package market maintains a live mark-price feed over websocket. Prices
// back the display-only unrealized PnL in status snapshots; order decisions
// always read REST data.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

const (
	mainnetStreamURL = "wss://fstream.binance.com/stream"
	testnetStreamURL = "wss://stream.binancefuture.com/stream"

	readTimeout = 90 * time.Second
)

// MarkPrice is one tick of the mark-price stream.
type MarkPrice struct {
	Symbol string
	Price  float64
	At     time.Time
}

// Stream subscribes to mark prices for a fixed symbol set and keeps the
// latest value per symbol. It reconnects with backoff until the context
// is cancelled.
type Stream struct {
	url     string
	symbols []string
	log     *zap.Logger

	mu     sync.RWMutex
	latest map[string]MarkPrice

	done chan struct{}
}

// NewStream builds a stream for the given symbols.
func NewStream(symbols []string, testnet bool, log *zap.Logger) *Stream {
	url := mainnetStreamURL
	if testnet {
		url = testnetStreamURL
	}
	return &Stream{
		url:     url,
		symbols: symbols,
		log:     log.Named("market"),
		latest:  make(map[string]MarkPrice),
		done:    make(chan struct{}),
	}
}

// Start runs the stream until ctx is cancelled.
func (s *Stream) Start(ctx context.Context) {
	go s.run(ctx)
}

// Wait blocks until the stream loop has exited.
func (s *Stream) Wait() { <-s.done }

// Latest returns the most recent mark price for a symbol.
func (s *Stream) Latest(symbol string) (MarkPrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[strings.ToUpper(symbol)]
	return p, ok
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)

	if len(s.symbols) == 0 {
		s.log.Info("no stream symbols configured")
		return
	}

	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			wait := b.Duration()
			s.log.Warn("stream disconnected, reconnecting",
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@markPrice@1s"
	}
	url := s.url + "?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	s.log.Info("mark-price stream connected", zap.Strings("symbols", s.symbols))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		s.handle(msg)
	}
}

type streamEnvelope struct {
	Data struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		MarkPrice string `json:"p"`
		EventTime int64  `json:"E"`
	} `json:"data"`
}

func (s *Stream) handle(msg []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Data.EventType != "markPriceUpdate" {
		return
	}
	price, err := strconv.ParseFloat(env.Data.MarkPrice, 64)
	if err != nil {
		return
	}
	tick := MarkPrice{
		Symbol: env.Data.Symbol,
		Price:  price,
		At:     time.UnixMilli(env.Data.EventTime),
	}
	s.mu.Lock()
	s.latest[tick.Symbol] = tick
	s.mu.Unlock()
}
