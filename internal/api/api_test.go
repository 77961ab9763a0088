package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/backtest"
	"papertrader/internal/gateway"
	"papertrader/internal/live"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/tradelog"
)

type stubFetcher struct {
	series map[string][]float64
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	closes, ok := f.series[symbol]
	if !ok {
		return nil, errors.Errorf("no data for %s", symbol)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{Timestamp: base.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return candles, nil
}

func rising(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func newTestServer(t *testing.T, fetcher model.CandleFetcher) (*Server, *live.Trader) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	met := metrics.New()
	store, err := backtest.NewStore(t.TempDir())
	require.NoError(t, err)
	liveLogs, err := tradelog.NewCSVLogger(t.TempDir())
	require.NoError(t, err)

	opts := live.DefaultOptions()
	opts.PollInterval = time.Hour // keep loops quiet during API tests
	trader := live.NewTrader(fetcher, liveLogs, met, opts)
	t.Cleanup(trader.Close)

	runner := backtest.NewRunner(fetcher, 2, met)
	hub := gateway.NewHub(trader, time.Second)
	return NewServer(runner, store, trader, liveLogs, hub), trader
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLiveStart_RequiresSymbol(t *testing.T) {
	s, _ := newTestServer(t, &stubFetcher{})
	router := s.Router()

	w := doJSON(router, http.MethodPost, "/live/start", gin.H{"timeframe": "1h"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "symbol is required")
}

func TestLiveStartStop_Lifecycle(t *testing.T) {
	s, _ := newTestServer(t, &stubFetcher{})
	router := s.Router()

	w := doJSON(router, http.MethodPost, "/live/start", gin.H{"symbol": "BTC/USDT"})
	require.Equal(t, http.StatusOK, w.Code)

	// second start conflicts
	w = doJSON(router, http.MethodPost, "/live/start", gin.H{"symbol": "BTC/USDT"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// status reflects the active symbol and the starting balance
	w = doJSON(router, http.MethodGet, "/live/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status model.LiveStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1000.0, status.PaperBalance)
	assert.Equal(t, []string{"BTC/USDT"}, status.ActiveSymbols)

	w = doJSON(router, http.MethodPost, "/live/stop", gin.H{"symbol": "BTC/USDT"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/live/stop", gin.H{"symbol": "BTC/USDT"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunBacktest_ReturnsSummariesAndPersistsLedgers(t *testing.T) {
	fetcher := &stubFetcher{series: map[string][]float64{"BTC/USDT": rising(30)}}
	s, _ := newTestServer(t, fetcher)
	router := s.Router()

	w := doJSON(router, http.MethodPost, "/run-backtest", gin.H{
		"symbols":    []string{"BTC/USDT"},
		"timeframes": []string{"1h"},
		"limit":      30,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var summaries []model.BacktestSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "BTC/USDT", summaries[0].Symbol)
	assert.Equal(t, 100.0, summaries[0].AccuracyPct)
	assert.NotEmpty(t, summaries[0].File)

	// history endpoint sees the persisted ledger
	w = doJSON(router, http.MethodGet, "/backtest-history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist []backtest.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, "BTCUSDT", hist[0].Symbol)

	// and the ledger file reads back with statistics
	w = doJSON(router, http.MethodGet, "/read-log/"+summaries[0].File, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "statistics")
}

func TestRunBacktest_ErrorPairStillSummarized(t *testing.T) {
	fetcher := &stubFetcher{series: map[string][]float64{}}
	s, _ := newTestServer(t, fetcher)
	router := s.Router()

	w := doJSON(router, http.MethodPost, "/run-backtest", gin.H{
		"symbols":    []string{"MISSING/USDT"},
		"timeframes": []string{"1h"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var summaries []model.BacktestSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.NotEmpty(t, summaries[0].Error)
}

func TestRunBacktest_RejectsEmptyRequest(t *testing.T) {
	s, _ := newTestServer(t, &stubFetcher{})
	router := s.Router()

	w := doJSON(router, http.MethodPost, "/run-backtest", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLiveLogs_EmptyList(t *testing.T) {
	s, _ := newTestServer(t, &stubFetcher{})
	router := s.Router()

	w := doJSON(router, http.MethodGet, "/live-logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestReadLiveLog_NotFound(t *testing.T) {
	s, _ := newTestServer(t, &stubFetcher{})
	router := s.Router()

	w := doJSON(router, http.MethodGet, "/read-live-log/nope.csv", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
