// Package live runs the paper-trading engine: one polling goroutine per
// actively traded symbol, simulating entries and exits against a shared
// virtual balance.
//
// All shared state (balance, positions, trade history, active set) is
// guarded by a single mutex. That serializes unrelated symbols' critical
// sections, including log appends; the sections are short and the poll
// cadence is a minute, so contention is not a concern at this scale.
package live

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"papertrader/internal/indicator"
	"papertrader/internal/logger"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/notification"
	"papertrader/internal/ringbuf"
)

var (
	// ErrAlreadyActive is returned by StartTrading for a symbol that is
	// already being traded.
	ErrAlreadyActive = errors.New("symbol already active")

	// ErrNotActive is returned by StopTrading for a symbol that is not
	// being traded.
	ErrNotActive = errors.New("symbol not active")
)

// Options tunes the trading engine.
type Options struct {
	StartBalance    float64       // initial paper USDT balance
	PollInterval    time.Duration // cadence of the per-symbol loop
	CandleLimit     int           // candles fetched per cycle
	PositionSizePct float64       // fraction of balance committed per entry
	HistoryLimit    int           // trade records returned by Status
}

// DefaultOptions mirrors the production deployment: 1000 USDT, 60s
// polling, 100 candles, 10% sizing, last 50 trades.
func DefaultOptions() Options {
	return Options{
		StartBalance:    1000,
		PollInterval:    60 * time.Second,
		CandleLimit:     100,
		PositionSizePct: 0.10,
		HistoryLimit:    50,
	}
}

// Trader owns the set of actively traded symbols, the shared paper
// balance, open positions, and recent trade history.
type Trader struct {
	fetcher model.CandleFetcher
	tlog    model.TradeLogger
	met     *metrics.Metrics
	opts    Options
	notify  notification.Notifier

	mu        sync.Mutex
	balance   float64
	positions map[string]model.Position
	history   *ringbuf.Ring
	active    map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewTrader builds the engine with injected collaborators.
func NewTrader(fetcher model.CandleFetcher, tlog model.TradeLogger, met *metrics.Metrics, opts Options) *Trader {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.CandleLimit <= 0 {
		opts.CandleLimit = 100
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	met.PaperBalance.Set(opts.StartBalance)
	return &Trader{
		fetcher:   fetcher,
		tlog:      tlog,
		met:       met,
		opts:      opts,
		balance:   opts.StartBalance,
		positions: make(map[string]model.Position),
		history:   ringbuf.New(opts.HistoryLimit),
		active:    make(map[string]context.CancelFunc),
	}
}

// SetNotifier enables trade notifications. Call before StartTrading;
// delivery is asynchronous and best effort.
func (t *Trader) SetNotifier(n notification.Notifier) {
	t.notify = n
}

// StartTrading activates a symbol and spawns its polling loop. It returns
// immediately; the loop runs until StopTrading (or Close) cancels it.
func (t *Trader) StartTrading(symbol, timeframe string) error {
	t.mu.Lock()
	if _, ok := t.active[symbol]; ok {
		t.mu.Unlock()
		return ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.active[symbol] = cancel
	t.mu.Unlock()

	t.met.ActiveSymbols.Inc()
	t.wg.Add(1)
	go t.pollLoop(ctx, symbol, timeframe)
	logger.Info("[live] started trading %s %s", symbol, timeframe)
	return nil
}

// StopTrading deactivates a symbol. The polling loop observes the
// cancellation at its next cycle boundary, so up to one full interval
// (and one more logged trade) may elapse before it exits.
func (t *Trader) StopTrading(symbol string) error {
	t.mu.Lock()
	cancel, ok := t.active[symbol]
	if !ok {
		t.mu.Unlock()
		return ErrNotActive
	}
	delete(t.active, symbol)
	t.mu.Unlock()

	cancel()
	t.met.ActiveSymbols.Dec()
	logger.Info("[live] stopped trading %s", symbol)
	return nil
}

// Close stops all symbols and waits for their loops to exit.
func (t *Trader) Close() {
	t.mu.Lock()
	for symbol, cancel := range t.active {
		cancel()
		delete(t.active, symbol)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Status returns an atomic snapshot of the live state. TradeHistory holds
// the most recent records (bounded by HistoryLimit), oldest first.
func (t *Trader) Status() model.LiveStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	positions := make(map[string]model.Position, len(t.positions))
	for sym, pos := range t.positions {
		positions[sym] = pos
	}

	history := t.history.Snapshot()
	if len(history) > t.opts.HistoryLimit {
		history = history[len(history)-t.opts.HistoryLimit:]
	}

	active := make([]string, 0, len(t.active))
	for sym := range t.active {
		active = append(active, sym)
	}
	sort.Strings(active)

	return model.LiveStatus{
		PaperBalance:  t.balance,
		Positions:     positions,
		TradeHistory:  history,
		ActiveSymbols: active,
	}
}

// pollLoop runs one cycle, then sleeps a fixed interval, until cancelled.
// Errors inside a cycle never terminate the loop; the next cycle is the
// retry.
func (t *Trader) pollLoop(ctx context.Context, symbol, timeframe string) {
	defer t.wg.Done()
	for {
		t.cycle(ctx, symbol, timeframe)
		select {
		case <-ctx.Done():
			logger.Info("[live] polling loop for %s exited", symbol)
			return
		case <-time.After(t.opts.PollInterval):
		}
	}
}

// cycle fetches candles, classifies the latest one, and applies at most
// one entry or exit under the shared lock.
func (t *Trader) cycle(ctx context.Context, symbol, timeframe string) {
	start := time.Now()
	candles, err := t.fetcher.FetchCandles(ctx, symbol, timeframe, t.opts.CandleLimit)
	if err != nil {
		t.met.FetchErrorsTotal.Inc()
		logger.Error("[live] fetch %s %s: %v", symbol, timeframe, err)
		return
	}
	t.met.FetchDuration.Observe(time.Since(start).Seconds())
	t.met.PollCyclesTotal.Inc()

	frames := indicator.Compute(candles)
	if len(frames) == 0 {
		return
	}
	latest := frames[len(frames)-1]
	price := candles[len(candles)-1].Close
	ts := candles[len(candles)-1].Timestamp

	t.mu.Lock()
	defer t.mu.Unlock()

	switch latest.Signal {
	case model.SignalBuy:
		t.enter(symbol, timeframe, price, ts)
	case model.SignalSell:
		t.exit(symbol, timeframe, price, ts)
	}
}

// enter opens a position sized at PositionSizePct of the current balance.
// No-op if a position is already open. Caller holds the lock.
func (t *Trader) enter(symbol, timeframe string, price float64, ts time.Time) {
	if _, open := t.positions[symbol]; open {
		return
	}
	size := t.balance * t.opts.PositionSizePct
	quantity := size / price
	if quantity <= 0 {
		logger.Warn("[live] %s: skipping entry, quantity %.8f", symbol, quantity)
		return
	}

	t.balance -= size
	t.positions[symbol] = model.Position{
		Symbol:     symbol,
		EntryPrice: price,
		SizeUSDT:   size,
		Quantity:   quantity,
		EntryTime:  ts,
		Type:       "long",
	}
	rec := model.TradeRecord{
		Symbol:    symbol,
		Type:      "buy",
		Price:     price,
		Size:      size,
		Quantity:  quantity,
		Timestamp: ts,
	}
	t.record(rec, timeframe)
	logger.Info("[live] %s entry at %.4f size %.2f qty %.8f", symbol, price, size, quantity)
}

// exit closes the open position, crediting back the committed size plus
// P&L. No-op while flat. Caller holds the lock.
func (t *Trader) exit(symbol, timeframe string, price float64, ts time.Time) {
	pos, open := t.positions[symbol]
	if !open {
		return
	}
	pnl := (price - pos.EntryPrice) * pos.Quantity
	t.balance += pos.SizeUSDT + pnl

	rec := model.TradeRecord{
		Symbol:    symbol,
		Type:      "sell",
		Price:     price,
		Size:      pos.SizeUSDT,
		Quantity:  pos.Quantity,
		PnL:       &pnl,
		Timestamp: ts,
	}
	t.record(rec, timeframe)
	delete(t.positions, symbol)
	logger.Info("[live] %s exit at %.4f pnl %.4f", symbol, price, pnl)
}

// record appends to the in-memory history and the durable log. Caller
// holds the lock, which is what serializes log appends with state
// mutation.
func (t *Trader) record(rec model.TradeRecord, timeframe string) {
	t.history.Append(rec)
	if err := t.tlog.Append(rec.Symbol, timeframe, rec); err != nil {
		logger.Error("[live] log trade %s: %v", rec.Symbol, err)
	}
	t.met.TradesTotal.WithLabelValues(rec.Type).Inc()
	t.met.PaperBalance.Set(t.balance)

	if t.notify != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := t.notify.Send(ctx, notification.FromTrade(rec)); err != nil {
				logger.Warn("[live] notify %s: %v", rec.Symbol, err)
			}
		}()
	}
}
