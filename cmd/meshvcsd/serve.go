package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DSLitvinov/difference-engine/internal/config"
	"github.com/DSLitvinov/difference-engine/internal/httpapi"
	"github.com/DSLitvinov/difference-engine/internal/logger"
	"github.com/DSLitvinov/difference-engine/internal/metrics"
	"github.com/DSLitvinov/difference-engine/internal/repo"
	"github.com/DSLitvinov/difference-engine/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Start the meshvcs HTTP API server, optionally watching the data root for external changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	levelFlag, _ := cmd.Flags().GetString("log-level")
	if levelFlag == "" {
		levelFlag = cfg.LogLevel
	}
	applyLogLevel(levelFlag)

	if bindAddr, _ := cmd.Flags().GetString("bind-addr"); bindAddr != "" {
		cfg.BindAddr = bindAddr
	}

	engine, err := repo.NewEngine(cfg.DataRoot)
	if err != nil {
		return fmt.Errorf("initialize repository engine at %s: %w", cfg.DataRoot, err)
	}
	logger.Info("repository engine ready at %s", cfg.DataRoot)

	migrator := repo.NewMigrator(engine.Scanner)
	if err := migrator.RunIfNeeded(context.Background()); err != nil {
		logger.Error("migration check failed: %v", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsOn() {
		m = metrics.New()
		engine.SetMetrics(m)
		logger.Info("metrics enabled, served at /metrics")
	}

	var fsWatcher *watcher.Watcher
	if cfg.WatchOn() {
		fsWatcher, err = watcher.New(cfg.DataRoot, 500*time.Millisecond, func() error {
			return engine.Rescan(context.Background(), "")
		})
		if err != nil {
			return fmt.Errorf("initialize filesystem watcher: %w", err)
		}
		if err := fsWatcher.Start(); err != nil {
			return fmt.Errorf("start filesystem watcher: %w", err)
		}
		defer fsWatcher.Stop()
		logger.Info("watching %s for external changes", cfg.DataRoot)
	}

	rateLimiter := httpapi.NewMeshRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	server := httpapi.NewServer(engine, m)
	handler := server.NewRouter(rateLimiter)

	httpServer := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-quit:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

func init() {
	serveCmd.Flags().String("bind-addr", "", "override the configured bind address")
}
