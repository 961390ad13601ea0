package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"advisorai/internal/app"
	"advisorai/internal/config"
	"advisorai/internal/server"
	"advisorai/internal/util"
	"advisorai/pkg/prefs"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var prefsStore prefs.Store
	if cfg.RedisAddr != "" {
		prefsStore, err = prefs.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Error("failed to init prefs store", "err", err)
			os.Exit(1)
		}
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:     cfg.DatabaseURL,
		Prefs:           prefsStore,
		Provider:        cfg.Provider,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GenerationModel: cfg.GenerationModel,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		JWTSecret:       cfg.JWTSecret,
	})
	if err != nil {
		logger.Error("failed to init app", "err", err)
		os.Exit(1)
	}

	httpServer, err := server.New(server.Config{
		App:              appCore,
		RedisAddr:        cfg.RedisAddr,
		RedisPassword:    cfg.RedisPassword,
		MessageRateLimit: cfg.RateLimitPerMinute,
	})
	if err != nil {
		logger.Error("failed to init server", "err", err)
		os.Exit(1)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: replies stream over SSE for as long as the
		// model keeps generating.
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("advisor server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
