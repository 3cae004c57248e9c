package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stonebomdic/credit-card-crawler/internal/api"
	"github.com/stonebomdic/credit-card-crawler/internal/config"
	"github.com/stonebomdic/credit-card-crawler/internal/recommend"
	"github.com/stonebomdic/credit-card-crawler/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	listenAddr := cfg.API.Addr
	if *addr != "" {
		listenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DB)
	if err != nil {
		logger.Error("open storage failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	scorer := recommend.NewScorer(recommend.Weights{
		Reward:    cfg.Recommend.RewardWeight,
		Feature:   cfg.Recommend.FeatureWeight,
		Promotion: cfg.Recommend.PromotionWeight,
	}, recommend.Strategy(cfg.Recommend.Strategy))
	engine := recommend.NewEngine(store, scorer, cfg.Recommend.DefaultLimit, logger)

	server := api.NewServer(store, engine, logger)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("api server listening", "addr", listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("api server stopped")
}
