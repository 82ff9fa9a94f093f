package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/config"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/handler"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/hub"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/metrics"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/repository/memory"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/scenario"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/service"
)

func main() {
	configPath := flag.String("config", "configs/kiosk-sim.yaml", "path to the configuration file")
	envFile := flag.String("env-file", ".env", "dotenv file with KIOSKSIM_* overrides")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, "kiosk-sim:", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr).With("service", cfg.Service.Name)
	slog.SetDefault(logger)
	logger.Info("starting kiosk simulator", "environment", cfg.Service.Environment)

	sc, err := scenario.Load(cfg.Scenario.Path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewPrometheusCollector()

	// Create hub
	h := hub.New(hub.Config{
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}, logger, collector)

	svc := service.New(service.Config{
		FrameRate:     cfg.Frames.RatePerSecond,
		FrameBurst:    cfg.Frames.Burst,
		AdminUsername: cfg.Admin.Username,
		AdminPassword: cfg.Admin.Password,
	}, sc, memory.NewUserRepository(), memory.NewTransactionRepository(), h,
		service.WithLogger(logger), service.WithMetrics(collector))
	if err := svc.Seed(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr: cfg.HTTP.Address,
		Handler: handler.NewRouter(handler.Routes{
			Config:    cfg,
			API:       handler.NewHTTPHandler(svc, logger),
			WebSocket: handler.NewWebSocketHandler(cfg, h, svc, logger),
			Metrics:   collector.Handler(),
			Registry:  collector.Registry(),
			Logger:    logger,
			AccessLog: os.Stdout,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting HTTP server", "address", cfg.HTTP.Address, "websocket", cfg.WebSocket.Path+"/{session_id}")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
