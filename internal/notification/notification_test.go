package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"papertrader/internal/model"
)

func TestWebhookNotifier_PostsEventJSON(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pnl := 3.5
	rec := model.TradeRecord{
		Symbol:    "BTC/USDT",
		Type:      "sell",
		Price:     181,
		Quantity:  0.84,
		PnL:       &pnl,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), FromTrade(rec)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Symbol != "BTC/USDT" || got.Side != "sell" {
		t.Errorf("event = %+v", got)
	}
	if got.PnL == nil || *got.PnL != 3.5 {
		t.Errorf("pnl = %v, want 3.5", got.PnL)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Event{Symbol: "X"})
	if err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestEventText(t *testing.T) {
	ev := Event{Symbol: "ETH/USDT", Side: "buy", Price: 100, Quantity: 1}
	if s := ev.Text(); !strings.Contains(s, "buy ETH/USDT") || strings.Contains(s, "pnl") {
		t.Errorf("Text() = %q", s)
	}

	pnl := -2.0
	ev.PnL = &pnl
	if s := ev.Text(); !strings.Contains(s, "pnl -2.0000") {
		t.Errorf("Text() = %q", s)
	}
}

func TestMulti_ReturnsFirstError(t *testing.T) {
	fail := NewWebhookNotifier("http://127.0.0.1:0/unreachable")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	ok := NewWebhookNotifier(srv.URL)

	if err := (Multi{fail, ok}).Send(context.Background(), Event{}); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if err := (Multi{ok}).Send(context.Background(), Event{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
