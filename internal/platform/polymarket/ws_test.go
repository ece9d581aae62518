package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

func TestStreamQuotesAppliesBookAndChanges(t *testing.T) {
	s := NewStreamQuotes("", nil, time.Minute, discardLogger())
	if err := s.Watch(testMarket()); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	s.handleMessage([]byte(`[{"event_type":"book","asset_id":"111",
		"bids":[{"price":"0.40","size":"5"}],
		"asks":[{"price":"0.47","size":"20"},{"price":"0.46","size":"15"}]}]`))

	q, err := s.BestAsk(context.Background(), testMarket(), domain.LegUp)
	if err != nil {
		t.Fatalf("BestAsk: %v", err)
	}
	if q.Price != 0.46 || q.Size != 15 {
		t.Fatalf("quote = %+v, want 0.46 x 15", q)
	}

	// Level at 0.46 removed, better ask added on the bid side is ignored.
	s.handleMessage([]byte(`{"event_type":"price_change","asset_id":"111","price_changes":[
		{"asset_id":"111","price":"0.460","size":"0","side":"SELL"},
		{"asset_id":"111","price":"0.30","size":"99","side":"BUY"}]}`))

	q, _ = s.BestAsk(context.Background(), testMarket(), domain.LegUp)
	if q.Price != 0.47 || q.Size != 20 {
		t.Fatalf("quote after change = %+v, want 0.47 x 20", q)
	}
}

func TestStreamQuotesIgnoresUnwatchedAssets(t *testing.T) {
	s := NewStreamQuotes("", nil, time.Minute, discardLogger())
	_ = s.Watch(testMarket())

	s.handleMessage([]byte(`{"event_type":"book","asset_id":"999","asks":[{"price":"0.1","size":"1"}]}`))
	m := testMarket()
	m.TokenIDs[domain.LegUp] = "999"
	if _, err := s.BestAsk(context.Background(), m, domain.LegUp); !errors.Is(err, domain.ErrEmptyBook) {
		t.Fatalf("err = %v, want ErrEmptyBook", err)
	}
}

func TestStreamQuotesFallsBackWhenStale(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"asset_id":"111","asks":[{"price":"0.52","size":"40"}]}`))
	}))
	defer rest.Close()

	s := NewStreamQuotes("", NewBookQuotes(NewClobClient(rest.URL, time.Second, nil, nil), time.Second), time.Minute, discardLogger())
	_ = s.Watch(testMarket())
	s.handleMessage([]byte(`{"event_type":"book","asset_id":"111","asks":[{"price":"0.40","size":"5"}]}`))

	s.mu.Lock()
	s.books["111"].updated = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	q, err := s.BestAsk(context.Background(), testMarket(), domain.LegUp)
	if err != nil {
		t.Fatalf("BestAsk: %v", err)
	}
	if q.Price != 0.52 {
		t.Fatalf("quote = %+v, want REST price 0.52", q)
	}
}

func TestStreamQuotesRun(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan wsSubscribe, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub wsSubscribe
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"event_type":"book","asset_id":"222","asks":[{"price":"0.55","size":"25"}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewStreamQuotes("ws"+strings.TrimPrefix(srv.URL, "http"), nil, time.Minute, discardLogger())
	_ = s.Watch(testMarket())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case sub := <-subscribed:
		if sub.Type != "market" || len(sub.AssetsIDs) != 2 || sub.AssetsIDs[0] != "111" {
			t.Errorf("subscription = %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		q, err := s.BestAsk(context.Background(), testMarket(), domain.LegDown)
		if err == nil && q.Price == 0.55 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("book never arrived: %+v %v", q, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
