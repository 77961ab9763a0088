package model

import "context"

// ── Port Interfaces ──
// These decouple the signal/trading core from concrete collaborators
// (exchange HTTP client, Redis cache, CSV log store).

// CandleFetcher fetches the most recent candles for a symbol/timeframe,
// ascending by timestamp. May fail transiently; callers degrade per cycle
// rather than propagate.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// Name identifies the data source for logging.
	Name() string
}

// TradeLogger appends one trade record to the durable log keyed by
// (symbol, timeframe). The log is append-only; a header is written
// exactly once, on first write. Callers already hold the live-state
// lock, so implementations do not need their own locking scheme.
type TradeLogger interface {
	Append(symbol, timeframe string, rec TradeRecord) error
}
