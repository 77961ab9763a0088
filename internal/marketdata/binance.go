// Package marketdata provides candle fetching from the exchange REST API,
// optionally fronted by a short-TTL Redis cache.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"papertrader/internal/model"
)

const klinesPath = "/api/v3/klines"

// BinanceFetcher fetches OHLCV candles from the public Binance klines
// endpoint. No authentication is required.
type BinanceFetcher struct {
	baseURL string
	client  *http.Client
}

// NewBinanceFetcher creates a fetcher against baseURL (e.g.
// "https://api.binance.com") with the given request timeout.
func NewBinanceFetcher(baseURL string, timeout time.Duration) *BinanceFetcher {
	return &BinanceFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *BinanceFetcher) Name() string { return "binance" }

// FetchCandles returns up to limit most recent candles for the symbol and
// timeframe, ascending by timestamp. Symbols may use the "BTC/USDT" form;
// the slash is stripped for the exchange.
func (f *BinanceFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(strings.ReplaceAll(symbol, "/", "")))
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+klinesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build klines request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch klines for %s", symbol)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("klines %s: status %d: %s", symbol, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Each row: [openTime, open, high, low, close, volume, ...extras]
	// with prices encoded as strings.
	var raw [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode klines payload")
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		open := parseFloat(row[1])
		high := parseFloat(row[2])
		low := parseFloat(row[3])
		cl := parseFloat(row[4])
		vol := parseFloat(row[5])
		if math.IsNaN(open) || math.IsNaN(high) || math.IsNaN(low) || math.IsNaN(cl) {
			continue
		}
		candles = append(candles, model.Candle{
			Timestamp: time.UnixMilli(int64(openTime)).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cl,
			Volume:    vol,
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle data for %s %s", symbol, timeframe)
	}
	return candles, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case float64:
		return val
	default:
		return math.NaN()
	}
}
