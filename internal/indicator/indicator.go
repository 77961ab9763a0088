// Package indicator computes MACD/RSI indicator frames over candle series.
//
// Compute is a pure batch transform: no state, no I/O. Values that are
// undefined for lack of history are carried as NaN; NaN comparisons are
// always false, so undefined rows classify as SignalNone without special
// casing.
package indicator

import (
	"math"

	"papertrader/internal/model"
)

const (
	emaFastSpan = 12
	emaSlowSpan = 26
	signalSpan  = 9
	rsiPeriod   = 14
	rsiMidline  = 50.0
)

// Compute derives one IndicatorFrame per input candle, in order.
func Compute(candles []model.Candle) []model.IndicatorFrame {
	n := len(candles)
	frames := make([]model.IndicatorFrame, n)
	if n == 0 {
		return frames
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := ema(closes, emaFastSpan)
	slow := ema(closes, emaSlowSpan)

	macd := make([]float64, n)
	for i := range macd {
		macd[i] = fast[i] - slow[i]
	}
	sig := ema(macd, signalSpan)
	rsi := rollingRSI(closes, rsiPeriod)

	for i := range frames {
		frames[i] = model.IndicatorFrame{
			EMAFast:    fast[i],
			EMASlow:    slow[i],
			MACD:       macd[i],
			SignalLine: sig[i],
			RSI:        rsi[i],
			Signal:     classify(macd[i], sig[i], rsi[i]),
		}
	}
	return frames
}

// ema applies the recursive exponential moving average with smoothing
// factor 2/(span+1), seeded with the first value.
func ema(values []float64, span int) []float64 {
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// rollingRSI computes RSI over simple rolling means of the last period
// gains/losses. Entries are NaN until period deltas exist. A window with
// gains and zero losses yields exactly 100; a flat window stays NaN.
func rollingRSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < 2 {
		return out
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var sumGain, sumLoss float64
	for i := 1; i < n; i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
		if i > period {
			sumGain -= gains[i-period]
			sumLoss -= losses[i-period]
		}
		if i < period {
			continue
		}
		avgGain := sumGain / float64(period)
		avgLoss := sumLoss / float64(period)
		switch {
		case avgLoss == 0 && avgGain > 0:
			out[i] = 100
		case avgLoss == 0:
			// no movement at all: undefined
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// classify applies the strict-inequality crossover rules. Buy and sell are
// mutually exclusive; an undefined (NaN) RSI always falls through to none.
func classify(macd, signalLine, rsi float64) model.SignalType {
	switch {
	case macd > signalLine && rsi > rsiMidline:
		return model.SignalBuy
	case macd < signalLine && rsi < rsiMidline:
		return model.SignalSell
	default:
		return model.SignalNone
	}
}
