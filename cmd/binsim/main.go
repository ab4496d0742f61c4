package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartbin-scan/internal/binsim"
	"smartbin-scan/internal/config"
	"smartbin-scan/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logHandler := logger.NewPrettyHandler(os.Stdout, &slog.HandlerOptions{
		Level: logger.ParseLevel(cfg.LogLevel),
	})
	slog.SetDefault(slog.New(logHandler))

	store := binsim.NewStore()
	if err := store.Seed(); err != nil {
		slog.Error("failed to seed store", "error", err)
		os.Exit(1)
	}

	auth := binsim.NewAuth(cfg.BinsimJWTSecret, cfg.BinsimTokenTTL)
	hub := binsim.NewHub()
	handlers := binsim.NewHandlers(store, auth, hub, cfg.PointsPerBottle)
	router := binsim.NewRouter(handlers, auth, cfg.BinsimCORSOrigin, cfg.BinsimRateRPM)

	server := &http.Server{
		Addr:              ":" + cfg.BinsimPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("binsim starting", "addr", server.Addr, "demo_user", "demo/demo123", "bin_token", "BIN-001")
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("binsim stopped")
}
