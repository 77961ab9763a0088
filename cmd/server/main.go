package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrader/internal/api"
	"papertrader/internal/backtest"
	"papertrader/internal/config"
	"papertrader/internal/gateway"
	"papertrader/internal/live"
	"papertrader/internal/logger"
	"papertrader/internal/marketdata"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/notification"
	"papertrader/internal/tradelog"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := logger.Init("papertrader"); err != nil {
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetcher model.CandleFetcher = marketdata.NewBinanceFetcher(cfg.DataSource.BaseURL, cfg.FetchTimeout())

	// Redis is optional: without it candle fetches just go straight to the source.
	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at %s, caching disabled: %v", cfg.Redis.Addr, err)
		} else {
			logger.Info("redis connected at %s", cfg.Redis.Addr)
			fetcher = marketdata.NewCachedFetcher(fetcher, rdb, cfg.CacheTTL())
		}
	}

	met := metrics.New()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, met)
	metricsSrv.Start()

	backtestLogs, err := backtest.NewStore(cfg.Backtest.LogDir)
	if err != nil {
		logger.Fatal("create backtest log dir: %v", err)
	}
	liveLogs, err := tradelog.NewCSVLogger(cfg.Live.LogDir)
	if err != nil {
		logger.Fatal("create live log dir: %v", err)
	}

	runner := backtest.NewRunner(fetcher, cfg.Backtest.Workers, met)

	opts := live.DefaultOptions()
	opts.StartBalance = cfg.Live.StartBalance
	opts.PollInterval = cfg.PollInterval()
	opts.CandleLimit = cfg.Live.CandleLimit
	opts.PositionSizePct = cfg.Live.PositionSizePct
	trader := live.NewTrader(fetcher, liveLogs, met, opts)

	var notifiers notification.Multi
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	if len(notifiers) > 0 {
		trader.SetNotifier(notifiers)
		logger.Info("trade notifications enabled (%d backends)", len(notifiers))
	}

	hub := gateway.NewHub(trader, time.Duration(cfg.Live.StatusPushSeconds)*time.Second)
	go hub.Run(ctx)

	server := api.NewServer(runner, backtestLogs, trader, liveLogs, hub)
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}
	go func() {
		logger.Info("listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received %s, shutting down", sig)

	cancel()
	trader.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown: %v", err)
	}
	metricsSrv.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}
