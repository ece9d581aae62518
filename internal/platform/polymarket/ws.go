package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// DefaultMarketWSURL is the CLOB market channel endpoint.
const DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// askLadder is the ask side of one token's book.
type askLadder struct {
	levels  map[string]float64 // price string -> size
	updated time.Time
}

func (l *askLadder) best() domain.Quote {
	q := domain.Quote{Timestamp: l.updated}
	for ps, size := range l.levels {
		if size <= 0 {
			continue
		}
		p, err := strconv.ParseFloat(ps, 64)
		if err != nil {
			continue
		}
		if q.Size == 0 || p < q.Price {
			q.Price, q.Size = p, size
		}
	}
	return q
}

// StreamQuotes keeps the ask side of subscribed tokens warm from the CLOB
// market websocket. Reads for tokens without a fresh book fall back to the
// REST source.
type StreamQuotes struct {
	wsURL      string
	fallback   *BookQuotes
	staleAfter time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	books  map[string]*askLadder
	assets []string

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewStreamQuotes creates a websocket quote source. Quotes older than
// staleAfter are not trusted.
func NewStreamQuotes(wsURL string, fallback *BookQuotes, staleAfter time.Duration, logger *slog.Logger) *StreamQuotes {
	if wsURL == "" {
		wsURL = DefaultMarketWSURL
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &StreamQuotes{
		wsURL:      wsURL,
		fallback:   fallback,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "quote_stream")),
		books:      make(map[string]*askLadder),
	}
}

// BestAsk implements strategy.QuoteSource.
func (s *StreamQuotes) BestAsk(ctx context.Context, market domain.Market, leg domain.Leg) (domain.Quote, error) {
	tokenID := market.TokenID(leg)
	s.mu.RLock()
	ladder, ok := s.books[tokenID]
	var q domain.Quote
	fresh := false
	if ok {
		q = ladder.best()
		fresh = time.Since(ladder.updated) <= s.staleAfter
	}
	s.mu.RUnlock()
	if fresh {
		return q, nil
	}
	if s.fallback == nil {
		return domain.Quote{}, fmt.Errorf("polymarket/ws: no fresh book for %s: %w", leg, domain.ErrEmptyBook)
	}
	return s.fallback.BestAsk(ctx, market, leg)
}

// Watch replaces the subscription with the tokens of market. Books of
// tokens no longer watched are dropped.
func (s *StreamQuotes) Watch(market domain.Market) error {
	assets := []string{market.TokenIDs[domain.LegUp], market.TokenIDs[domain.LegDown]}

	s.mu.Lock()
	s.assets = assets
	for id := range s.books {
		if id != assets[0] && id != assets[1] {
			delete(s.books, id)
		}
	}
	s.mu.Unlock()

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil // subscribed on the next connect
	}
	return s.subscribeLocked(assets)
}

// Run connects and keeps the stream alive until ctx is cancelled,
// reconnecting with exponential backoff.
func (s *StreamQuotes) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("quote stream disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session runs one connection until it fails.
func (s *StreamQuotes) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.RLock()
	assets := append([]string(nil), s.assets...)
	s.mu.RUnlock()

	s.connMu.Lock()
	s.conn = conn
	if len(assets) > 0 {
		if err := s.subscribeLocked(assets); err != nil {
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()
			return err
		}
	}
	s.connMu.Unlock()
	s.logger.Info("quote stream connected", slog.Int("assets", len(assets)))

	done := make(chan struct{})
	defer func() {
		close(done)
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()
	}()
	go s.pingLoop(ctx, conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
		}
		s.handleMessage(message)
	}
}

// subscribeLocked sends the subscription. Caller must hold connMu.
func (s *StreamQuotes) subscribeLocked(assets []string) error {
	data, err := json.Marshal(wsSubscribe{AssetsIDs: assets, Type: "market"})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// pingLoop keeps the connection alive and closes it when ctx ends so the
// read loop unblocks.
func (s *StreamQuotes) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			s.connMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			s.connMu.Unlock()
			conn.Close()
			return
		case <-ticker.C:
			s.connMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage applies a market channel message. The channel sends either
// single objects or arrays of them.
func (s *StreamQuotes) handleMessage(raw []byte) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return
		}
		for _, m := range batch {
			s.handleEvent(m)
		}
		return
	}
	s.handleEvent(raw)
}

func (s *StreamQuotes) handleEvent(raw []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.EventType {
	case "book":
		var book wsBookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		ladder := &askLadder{levels: make(map[string]float64, len(book.Asks)), updated: time.Now()}
		for _, lvl := range book.Asks {
			size, err := strconv.ParseFloat(lvl.Size, 64)
			if err != nil {
				continue
			}
			ladder.levels[canonicalPrice(lvl.Price)] = size
		}
		s.mu.Lock()
		if s.watching(book.AssetID) {
			s.books[book.AssetID] = ladder
		}
		s.mu.Unlock()

	case "price_change":
		var msg wsPriceChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		changes := append(msg.Changes, msg.PriceChanges...)
		now := time.Now()
		s.mu.Lock()
		for _, ch := range changes {
			if !strings.EqualFold(ch.Side, "SELL") {
				continue
			}
			asset := ch.AssetID
			if asset == "" {
				asset = msg.AssetID
			}
			ladder, ok := s.books[asset]
			if !ok {
				continue // wait for a full snapshot
			}
			size, err := strconv.ParseFloat(ch.Size, 64)
			if err != nil {
				continue
			}
			price := canonicalPrice(ch.Price)
			if size <= 0 {
				delete(ladder.levels, price)
			} else {
				ladder.levels[price] = size
			}
			ladder.updated = now
		}
		s.mu.Unlock()
	}
}

// watching reports whether asset is subscribed. Caller must hold mu.
func (s *StreamQuotes) watching(asset string) bool {
	for _, a := range s.assets {
		if a == asset {
			return true
		}
	}
	return false
}

func canonicalPrice(p string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
	if err != nil {
		return p
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
