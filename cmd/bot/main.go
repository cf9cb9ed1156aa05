package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"foto-produk-maker/internal/config"
	"foto-produk-maker/internal/gemini"
	"foto-produk-maker/internal/handlers"
	"foto-produk-maker/internal/httpclient"
	"foto-produk-maker/internal/mediagroup"
	"foto-produk-maker/internal/session"
	"foto-produk-maker/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := config.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:        cfg.TelegramToken,
		HTTPClient:   httpClient,
		Logger:       logger,
		Debug:        cfg.Debug,
		MaxFileBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	gem, err := gemini.New(ctx, gemini.Options{
		APIKey:            cfg.GeminiAPIKey,
		BaseURL:           cfg.GeminiBaseURL,
		APIVersion:        cfg.GeminiAPIVersion,
		PromptModel:       cfg.GeminiPromptModel,
		ImageModel:        cfg.GeminiImageModel,
		RequestsPerMinute: cfg.GeminiRequestsPerMinute,
		HTTPClient:        httpClient,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("gemini init failed", "err", err)
		os.Exit(1)
	}

	sessions := session.NewStore(session.StoreOptions{
		Session: session.Options{
			Client: gem,
			Logger: logger,
		},
		IdleTTL: cfg.SessionIdleTTL,
	})

	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Sessions: sessions,
		Logger:   logger,
	})

	sem := make(chan struct{}, cfg.MaxConcurrent)
	run := func(fn func(context.Context)) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			fn(reqCtx)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush: func(group mediagroup.Group) {
			run(func(reqCtx context.Context) { handler.HandleMediaGroup(reqCtx, group) })
		},
	})
	defer aggregator.Stop()
	handler.SetMediaGroupAggregator(aggregator)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sessions.RunSweeper(gctx, time.Minute, func(removed int) {
			logger.Info("idle sessions dropped", "count", removed)
		})
	})

	g.Go(func() error {
		logger.Info("bot started", "username", tg.Username())

		updates := tg.Updates(telegram.UpdatesOptions{
			Timeout: 30 * time.Second,
		})
		defer tg.StopUpdates()

		for {
			select {
			case <-gctx.Done():
				logger.Info("shutting down")
				return nil
			case update, ok := <-updates:
				if !ok {
					return errors.New("updates channel closed")
				}

				run(func(reqCtx context.Context) {
					if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("handle update failed", "err", err)
					}
				})
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("bot error", "err", err)
		os.Exit(1)
	}
}
