package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

type recordingSender struct {
	name string
	err  error
	sent []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.sent = append(r.sent, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventWindowSettle}, discard())

	_ = n.Notify(context.Background(), EventWindowOpen, "open", "")
	_ = n.Notify(context.Background(), EventWindowSettle, "settle", "")

	if len(s.sent) != 1 || s.sent[0] != "settle" {
		t.Fatalf("sent = %v", s.sent)
	}
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventError, "x", "y")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if len(good.sent) != 1 {
		t.Fatal("second sender skipped")
	}
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	if n.Enabled() {
		t.Fatal("nil notifier enabled")
	}
	if err := n.Notify(context.Background(), EventError, "x", "y"); err != nil {
		t.Fatal(err)
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "TOKEN", "42")
	if err := s.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got["chat_id"] != "42" || got["text"] != "*Title*\nbody" {
		t.Errorf("payload = %v", got)
	}
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p discordPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || len(p.Embeds) != 1 || p.Embeds[0].Title != "T" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL, "").Send(context.Background(), "T", "m"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestWindowSettledMessage(t *testing.T) {
	pnl := 0.5
	r := domain.WindowResult{
		Slug:             "btc-updown-15m-1",
		Outcome:          domain.OutcomeUp,
		GuaranteedProfit: 0.5,
		RealizedPnL:      &pnl,
		Paper:            true,
	}
	title, msg := WindowSettled(r)
	if !strings.Contains(title, "paper") || !strings.Contains(msg, "realized pnl: +0.5000") {
		t.Fatalf("title=%q msg=%q", title, msg)
	}

	r.RealizedPnL = nil
	r.Outcome = domain.OutcomeUnknown
	_, msg = WindowSettled(r)
	if !strings.Contains(msg, "realized pnl: n/a") || !strings.Contains(msg, "outcome: unknown") {
		t.Fatalf("msg=%q", msg)
	}
}
