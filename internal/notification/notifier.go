// Package notification delivers executed paper trades to external
// channels (Telegram, generic webhooks). Delivery is best effort: the
// trading engine never blocks or fails on a notification error.
package notification

import (
	"context"
	"fmt"

	"papertrader/internal/model"
)

// Event describes one executed paper trade.
type Event struct {
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"` // "buy" or "sell"
	Price     float64  `json:"price"`
	Quantity  float64  `json:"quantity"`
	PnL       *float64 `json:"pnl,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// FromTrade converts a trade record into a notification event.
func FromTrade(rec model.TradeRecord) Event {
	return Event{
		Symbol:    rec.Symbol,
		Side:      rec.Type,
		Price:     rec.Price,
		Quantity:  rec.Quantity,
		PnL:       rec.PnL,
		Timestamp: rec.Timestamp.UTC().Format("2006-01-02 15:04:05"),
	}
}

// Text renders the event as a short human-readable line.
func (e Event) Text() string {
	if e.PnL != nil {
		return fmt.Sprintf("%s %s %.6f @ %.4f (pnl %.4f)", e.Side, e.Symbol, e.Quantity, e.Price, *e.PnL)
	}
	return fmt.Sprintf("%s %s %.6f @ %.4f", e.Side, e.Symbol, e.Quantity, e.Price)
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// Multi fans an event out to several backends, returning the first error.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, ev Event) error {
	var firstErr error
	for _, n := range m {
		if err := n.Send(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
