package model

import "time"

// Candle represents a single OHLCV bar for a symbol/timeframe.
// Timestamps are UTC and ascending within a fetched series.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SignalType classifies a candle: buy, sell, or none.
type SignalType string

const (
	SignalNone SignalType = "none"
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// IndicatorFrame holds the per-candle indicator values and the resulting
// signal classification. RSI is NaN until enough history exists.
type IndicatorFrame struct {
	EMAFast    float64    `json:"ema_fast"`
	EMASlow    float64    `json:"ema_slow"`
	MACD       float64    `json:"macd"`
	SignalLine float64    `json:"signal_line"`
	RSI        float64    `json:"rsi"`
	Signal     SignalType `json:"signal_type"`
}
