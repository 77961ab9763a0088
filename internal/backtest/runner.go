// Package backtest replays recent candle history through the indicator
// pipeline and measures the historical hit-rate of buy signals.
package backtest

import (
	"context"
	"math"
	"sync"
	"time"

	"papertrader/internal/indicator"
	"papertrader/internal/logger"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
)

// DefaultLimit is the number of candles replayed when the caller does not
// specify one.
const DefaultLimit = 300

// Result pairs a trade ledger with its summary. A failed run carries an
// empty ledger and a summary with Error set.
type Result struct {
	Ledger  []model.LedgerEntry
	Summary model.BacktestSummary
}

// Runner executes backtests against a candle source using a bounded
// worker pool for fan-out.
type Runner struct {
	fetcher model.CandleFetcher
	workers int
	met     *metrics.Metrics
}

// NewRunner creates a Runner. workers bounds RunMany concurrency.
func NewRunner(fetcher model.CandleFetcher, workers int, met *metrics.Metrics) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{fetcher: fetcher, workers: workers, met: met}
}

// RunOne backtests a single (symbol, timeframe) pair over the limit most
// recent candles. It never returns an error: failures degrade to an error
// summary so sibling runs are unaffected.
//
// Only buy signals are evaluated against the next close; sell signals
// appear in no ledger rows and never affect the accuracy figure.
func (r *Runner) RunOne(ctx context.Context, symbol, timeframe string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	start := time.Now()
	r.met.BacktestsTotal.Inc()

	candles, err := r.fetcher.FetchCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		r.met.BacktestErrorsTotal.Inc()
		logger.Error("[backtest] %s %s: %v", symbol, timeframe, err)
		return Result{Summary: model.BacktestSummary{
			Symbol:    symbol,
			Timeframe: timeframe,
			Error:     err.Error(),
		}}
	}

	frames := indicator.Compute(candles)

	var ledger []model.LedgerEntry
	wins := 0
	for i := 0; i+1 < len(candles); i++ {
		if frames[i].Signal != model.SignalBuy {
			continue
		}
		entry := model.LedgerEntry{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: candles[i].Timestamp,
			Price:     candles[i].Close,
			NextClose: candles[i+1].Close,
			Success:   candles[i+1].Close > candles[i].Close,
		}
		if entry.Success {
			wins++
		}
		ledger = append(ledger, entry)
	}

	accuracy := 0.0
	if len(ledger) > 0 {
		accuracy = math.Round(10000*float64(wins)/float64(len(ledger))) / 100
	}

	r.met.BacktestDuration.Observe(time.Since(start).Seconds())
	return Result{
		Ledger: ledger,
		Summary: model.BacktestSummary{
			Symbol:      symbol,
			Timeframe:   timeframe,
			SignalCount: len(ledger),
			AccuracyPct: accuracy,
		},
	}
}

// RunMany fans out one RunOne per (symbol, timeframe) pair onto the worker
// pool and collects results in completion order. A failing pair degrades to
// an error summary without aborting the others.
func (r *Runner) RunMany(ctx context.Context, symbols, timeframes []string, limit int) []Result {
	type pair struct {
		symbol    string
		timeframe string
	}

	total := len(symbols) * len(timeframes)
	jobs := make(chan pair, total)
	results := make(chan Result, total)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				results <- r.RunOne(ctx, p.symbol, p.timeframe, limit)
			}
		}()
	}

	for _, s := range symbols {
		for _, tf := range timeframes {
			jobs <- pair{symbol: s, timeframe: tf}
		}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, 0, total)
	for res := range results {
		out = append(out, res)
	}
	return out
}
