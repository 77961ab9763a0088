package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/logger"
	"papertrader/internal/model"
)

// CachedFetcher decorates a CandleFetcher with a short-TTL Redis cache so
// that concurrent backtests over the same (symbol, timeframe, limit) do not
// hammer the exchange. Cache failures degrade to a direct fetch.
type CachedFetcher struct {
	inner model.CandleFetcher
	rdb   *goredis.Client
	ttl   time.Duration
}

// NewCachedFetcher wraps inner with a Redis cache.
func NewCachedFetcher(inner model.CandleFetcher, rdb *goredis.Client, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedFetcher) Name() string {
	return c.inner.Name() + "+cache"
}

func (c *CachedFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	key := fmt.Sprintf("candles:%s:%s:%d", symbol, timeframe, limit)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var candles []model.Candle
		if jsonErr := json.Unmarshal(data, &candles); jsonErr == nil {
			return candles, nil
		}
		// corrupt entry: fall through to a fresh fetch
	} else if err != goredis.Nil {
		logger.Warn("[marketdata] cache get %s: %v", key, err)
	}

	candles, err := c.inner.FetchCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(candles); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.Warn("[marketdata] cache set %s: %v", key, err)
		}
	}
	return candles, nil
}
