package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"foto-produk-maker/internal/config"
	"foto-produk-maker/internal/gemini"
	"foto-produk-maker/internal/httpclient"
	"foto-produk-maker/internal/metrics"
	"foto-produk-maker/internal/session"
	"foto-produk-maker/internal/web"
)

const metricsNamespace = "foto_produk"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := config.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

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

	collector := metrics.NewCollector(metricsNamespace)

	sessions := session.NewStore(session.StoreOptions{
		Session: session.Options{
			Client:   gem,
			Observer: collector,
			Logger:   logger,
		},
		IdleTTL: cfg.SessionIdleTTL,
	})
	collector.TrackSessions(metricsNamespace, sessions.Len)

	app, err := web.New(web.Options{
		Sessions:       sessions,
		Metrics:        collector,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		CookieSecure:   cfg.CookieSecure,
	})
	if err != nil {
		logger.Error("web init failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("web started", "addr", cfg.WebAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sessions.RunSweeper(gctx, time.Minute, func(removed int) {
			logger.Info("idle sessions dropped", "count", removed)
		})
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
