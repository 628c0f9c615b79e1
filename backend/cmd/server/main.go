package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioHazard786/warpcall/backend/internal/config"
	"github.com/BioHazard786/warpcall/backend/internal/server"
	"github.com/BioHazard786/warpcall/backend/internal/signaling"
	"github.com/BioHazard786/warpcall/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	logging.Init(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := signaling.NewHub()
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewMux(hub, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("signaling server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("signaling server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	<-hubDone
}
