// ABOUTME: Entry point for the advisor development backend
// ABOUTME: Serves the chat websocket and REST endpoints over a SQLite store

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/stackpine/advisor/internal/config"
	"github.com/stackpine/advisor/internal/logging"
	"github.com/stackpine/advisor/internal/server"
	"github.com/stackpine/advisor/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (default: $ADVISOR_CONFIG, else built-in defaults)")
	addr := flag.String("addr", "", "override listen address")
	dbPath := flag.String("db", "", "override database path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *addr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("ADVISOR_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, configPath, addr, dbPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Server.DatabasePath = dbPath
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	gray := color.New(color.FgHiBlack)
	gray.Printf("advisor-backend %s\n", version)

	st, err := store.NewSQLiteStore(cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	srv := server.New(server.Options{
		Store:      st,
		TopK:       cfg.Server.TopK,
		ChunkDelay: cfg.Server.ChunkDelay,
		Logger:     logger,
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("backend listening", "addr", cfg.Server.Addr, "db", cfg.Server.DatabasePath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
