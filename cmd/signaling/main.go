package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossy-p/peerconnect/config"
	"github.com/mossy-p/peerconnect/internal/handlers"
	"github.com/mossy-p/peerconnect/internal/logging"
	"github.com/mossy-p/peerconnect/internal/presence"
	"github.com/mossy-p/peerconnect/internal/relay"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "signaling",
	Short: "WebRTC signaling relay for two-party calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	var store presence.Store = presence.Noop{}
	if cfg.Redis.Enabled {
		rs, err := presence.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Error("connect to redis", slog.Any(logging.Error, err))
			return err
		}
		store = rs
		logger.Info("Redis connection established", slog.String("addr", cfg.Redis.Addr()))
	}
	defer store.Close()

	hub := relay.NewHub(store, logger)
	router := handlers.NewRouter(cfg, handlers.New(hub, cfg.SendBufferSize, logger), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting WebRTC signaling server", slog.String("port", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any(logging.Error, err))
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any(logging.Error, err))
		return err
	}
	return nil
}
