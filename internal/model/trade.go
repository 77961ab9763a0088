package model

import "time"

// Position is an open long position for one symbol. At most one exists
// per symbol at any instant.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	SizeUSDT   float64   `json:"size_usdt"`
	Quantity   float64   `json:"quantity"`
	EntryTime  time.Time `json:"entry_time"`
	Type       string    `json:"type"` // always "long"
}

// TradeRecord is one simulated trade. Immutable once created.
// PnL is set only on sell records.
type TradeRecord struct {
	Symbol    string    `json:"symbol"`
	Type      string    `json:"type"` // "buy" or "sell"
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Quantity  float64   `json:"quantity"`
	PnL       *float64  `json:"pnl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerEntry is one synthesized backtest outcome: a buy signal and
// whether the next close moved up.
type LedgerEntry struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	NextClose float64   `json:"next_close"`
	Success   bool      `json:"success"`
}

// BacktestSummary reports the outcome of one (symbol, timeframe) backtest.
// Error is set instead of the metrics when the run failed.
type BacktestSummary struct {
	Symbol      string  `json:"symbol"`
	Timeframe   string  `json:"timeframe"`
	SignalCount int     `json:"signals"`
	AccuracyPct float64 `json:"accuracy_pct"`
	Error       string  `json:"error,omitempty"`
	File        string  `json:"file,omitempty"`
	RunID       string  `json:"run_id,omitempty"`
}

// LiveStatus is an atomic snapshot of the live trading state.
// TradeHistory holds the last 50 records, oldest first.
type LiveStatus struct {
	PaperBalance  float64             `json:"paper_balance"`
	Positions     map[string]Position `json:"positions"`
	TradeHistory  []TradeRecord       `json:"trade_history"`
	ActiveSymbols []string            `json:"active_symbols"`
}
