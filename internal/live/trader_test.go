package live

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"papertrader/internal/metrics"
	"papertrader/internal/model"
)

// scriptedFetcher returns a series chosen by call count, so tests can
// steer the loop through buy and sell cycles.
type scriptedFetcher struct {
	mu    sync.Mutex
	fn    func(call int) ([]float64, error)
	calls int
}

func (f *scriptedFetcher) Name() string { return "scripted" }

func (f *scriptedFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	closes, err := f.fn(call)
	if err != nil {
		return nil, err
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return candles, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memLogger records appends in memory, mimicking the CSV logger contract.
type memLogger struct {
	mu      sync.Mutex
	records []model.TradeRecord
}

func (l *memLogger) Append(symbol, timeframe string, rec model.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// rising produces a buy classification on the latest candle; falling a
// sell. Both need at least 15 closes for RSI to be defined.
func rising(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func falling(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	return closes
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PollInterval = 5 * time.Millisecond
	return opts
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartTrading_SecondCallAlreadyActive(t *testing.T) {
	f := &scriptedFetcher{fn: func(int) ([]float64, error) { return nil, errors.New("offline") }}
	tr := NewTrader(f, &memLogger{}, metrics.New(), testOptions())
	defer tr.Close()

	if err := tr.StartTrading("BTC/USDT", "1h"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := tr.StartTrading("BTC/USDT", "1h"); err != ErrAlreadyActive {
		t.Fatalf("second start: want ErrAlreadyActive, got %v", err)
	}

	st := tr.Status()
	if len(st.ActiveSymbols) != 1 || st.ActiveSymbols[0] != "BTC/USDT" {
		t.Errorf("unexpected active set: %v", st.ActiveSymbols)
	}
}

func TestStopTrading_NotActive(t *testing.T) {
	f := &scriptedFetcher{fn: func(int) ([]float64, error) { return nil, errors.New("offline") }}
	tr := NewTrader(f, &memLogger{}, metrics.New(), testOptions())
	defer tr.Close()

	if err := tr.StopTrading("BTC/USDT"); err != ErrNotActive {
		t.Fatalf("want ErrNotActive, got %v", err)
	}
}

func TestEntryThenExit_BalanceConservation(t *testing.T) {
	// First cycle sees a buy, later cycles a sell.
	f := &scriptedFetcher{fn: func(call int) ([]float64, error) {
		if call == 0 {
			return rising(20), nil
		}
		return falling(20), nil
	}}
	log := &memLogger{}
	tr := NewTrader(f, log, metrics.New(), testOptions())
	defer tr.Close()

	if err := tr.StartTrading("BTC/USDT", "1h"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return log.count() >= 2 })
	if err := tr.StopTrading("BTC/USDT"); err != nil {
		t.Fatal(err)
	}
	tr.Close()

	entryPrice := 119.0 // last close of rising(20)
	exitPrice := 181.0  // last close of falling(20)
	size := 100.0       // 10% of 1000
	qty := size / entryPrice
	pnl := (exitPrice - entryPrice) * qty

	st := tr.Status()
	if len(st.Positions) != 0 {
		t.Errorf("position should be closed, got %v", st.Positions)
	}
	if math.Abs(st.PaperBalance-(1000+pnl)) > 1e-9 {
		t.Errorf("balance: want %.6f, got %.6f", 1000+pnl, st.PaperBalance)
	}

	if len(st.TradeHistory) < 2 {
		t.Fatalf("expected at least 2 trades, got %d", len(st.TradeHistory))
	}
	buy, sell := st.TradeHistory[0], st.TradeHistory[1]
	if buy.Type != "buy" || buy.PnL != nil {
		t.Errorf("unexpected buy record: %+v", buy)
	}
	if sell.Type != "sell" || sell.PnL == nil {
		t.Fatalf("unexpected sell record: %+v", sell)
	}
	if math.Abs(*sell.PnL-pnl) > 1e-9 {
		t.Errorf("pnl: want %.6f, got %.6f", pnl, *sell.PnL)
	}
	if math.Abs(buy.Quantity-qty) > 1e-12 {
		t.Errorf("quantity: want %.12f, got %.12f", qty, buy.Quantity)
	}
}

func TestEntry_DeductsSizeAndBuyWhileLongIsNoop(t *testing.T) {
	// Every cycle signals buy; only the first may enter.
	f := &scriptedFetcher{fn: func(int) ([]float64, error) { return rising(20), nil }}
	log := &memLogger{}
	tr := NewTrader(f, log, metrics.New(), testOptions())
	defer tr.Close()

	if err := tr.StartTrading("BTC/USDT", "1h"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return f.callCount() >= 4 })
	tr.StopTrading("BTC/USDT")
	tr.Close()

	st := tr.Status()
	if st.PaperBalance != 900 {
		t.Errorf("balance after entry: want 900, got %.2f", st.PaperBalance)
	}
	if log.count() != 1 {
		t.Errorf("expected exactly 1 trade despite repeated buy signals, got %d", log.count())
	}
	pos, ok := st.Positions["BTC/USDT"]
	if !ok {
		t.Fatal("expected open position")
	}
	if pos.Type != "long" || pos.SizeUSDT != 100 || pos.EntryPrice != 119 {
		t.Errorf("unexpected position: %+v", pos)
	}
}

func TestSellWhileFlat_IsNoop(t *testing.T) {
	f := &scriptedFetcher{fn: func(int) ([]float64, error) { return falling(20), nil }}
	log := &memLogger{}
	tr := NewTrader(f, log, metrics.New(), testOptions())
	defer tr.Close()

	tr.StartTrading("BTC/USDT", "1h")
	waitFor(t, time.Second, func() bool { return f.callCount() >= 3 })
	tr.StopTrading("BTC/USDT")
	tr.Close()

	st := tr.Status()
	if st.PaperBalance != 1000 || log.count() != 0 {
		t.Errorf("sell while flat mutated state: balance %.2f, trades %d", st.PaperBalance, log.count())
	}
}

func TestStopTrading_NoTradesAfterLoopExit(t *testing.T) {
	f := &scriptedFetcher{fn: func(call int) ([]float64, error) {
		if call%2 == 0 {
			return rising(20), nil
		}
		return falling(20), nil
	}}
	log := &memLogger{}
	tr := NewTrader(f, log, metrics.New(), testOptions())
	defer tr.Close()

	tr.StartTrading("BTC/USDT", "1h")
	waitFor(t, time.Second, func() bool { return log.count() >= 2 })
	if err := tr.StopTrading("BTC/USDT"); err != nil {
		t.Fatal(err)
	}
	tr.Close() // waits for the loop to exit

	after := log.count()
	time.Sleep(20 * time.Millisecond) // several poll intervals
	if log.count() != after {
		t.Errorf("trades appended after stop: %d → %d", after, log.count())
	}
	if len(tr.Status().ActiveSymbols) != 0 {
		t.Errorf("active set not empty after stop")
	}
}

func TestFetchFailure_LoopKeepsRetrying(t *testing.T) {
	// Two failures, then a buy signal.
	f := &scriptedFetcher{fn: func(call int) ([]float64, error) {
		if call < 2 {
			return nil, errors.New("rate limited")
		}
		return rising(20), nil
	}}
	log := &memLogger{}
	tr := NewTrader(f, log, metrics.New(), testOptions())
	defer tr.Close()

	tr.StartTrading("BTC/USDT", "1h")
	waitFor(t, time.Second, func() bool { return log.count() >= 1 })
	tr.StopTrading("BTC/USDT")

	if tr.Status().PaperBalance != 900 {
		t.Errorf("entry should land after transient failures, balance %.2f", tr.Status().PaperBalance)
	}
}

func TestStatus_HistoryBoundedOldestFirst(t *testing.T) {
	f := &scriptedFetcher{fn: func(call int) ([]float64, error) {
		if call%2 == 0 {
			return rising(20), nil
		}
		return falling(20), nil
	}}
	opts := testOptions()
	opts.HistoryLimit = 4
	log := &memLogger{}
	tr := NewTrader(f, log, metrics.New(), opts)
	defer tr.Close()

	tr.StartTrading("BTC/USDT", "1h")
	waitFor(t, 2*time.Second, func() bool { return log.count() >= 6 })
	tr.StopTrading("BTC/USDT")
	tr.Close()

	st := tr.Status()
	if len(st.TradeHistory) != 4 {
		t.Fatalf("history should be capped at 4, got %d", len(st.TradeHistory))
	}
	// Alternating buy/sell: oldest-first ordering means pairs stay adjacent.
	for i := 1; i < len(st.TradeHistory); i++ {
		if st.TradeHistory[i].Type == st.TradeHistory[i-1].Type {
			t.Errorf("history not alternating at %d: %+v", i, st.TradeHistory)
		}
	}
}
