package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stonebomdic/credit-card-crawler/internal/config"
	"github.com/stonebomdic/credit-card-crawler/internal/crawler"
	"github.com/stonebomdic/credit-card-crawler/internal/crawler/banks"
	"github.com/stonebomdic/credit-card-crawler/internal/fetcher"
	"github.com/stonebomdic/credit-card-crawler/internal/robots"
	"github.com/stonebomdic/credit-card-crawler/internal/storage"
	"github.com/stonebomdic/credit-card-crawler/internal/textextract"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	cleanup := flag.Bool("cleanup", false, "Delete expired promotions after the crawl")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DB)
	if err != nil {
		logger.Error("open storage failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	fetch, err := buildFetcher(*cfg, logger)
	if err != nil {
		logger.Error("build fetcher failed", "error", err)
		os.Exit(1)
	}

	sources := buildSources(*cfg, fetch, logger)
	if len(sources) == 0 {
		logger.Error("no bank sources enabled", "configured", cfg.Crawler.Banks)
		os.Exit(1)
	}

	fleet := crawler.NewFleet(store, cfg.Worker.Concurrency, logger)
	summaries, runErr := fleet.RunAll(ctx, sources)
	for _, summary := range summaries {
		logger.Info("run summary",
			"run_id", summary.RunID,
			"bank", summary.Bank,
			"cards", summary.Cards,
			"promotions", summary.Promotions,
			"item_errors", len(summary.Errors),
			"duration", summary.Duration,
		)
	}

	if *cleanup {
		deleted, err := store.DeleteExpiredPromotions(ctx, time.Now())
		if err != nil {
			logger.Error("cleanup failed", "error", err)
		} else {
			logger.Info("expired promotions removed", "deleted", deleted)
		}
	}

	if runErr != nil {
		logger.Error("crawl batch finished with failures", "error", runErr)
		os.Exit(1)
	}
	logger.Info("crawl batch finished", "banks", len(summaries))
}

func buildFetcher(cfg config.Config, logger *slog.Logger) (*fetcher.Client, error) {
	politeness := fetcher.NewRandomPoliteness(
		cfg.Crawler.DelayMin.Duration,
		cfg.Crawler.DelayMax.Duration,
		cfg.Crawler.UserAgents,
	)
	limiter := fetcher.NewHostLimiter(cfg.Crawler.PerHostDelay.Duration, fetcher.RateLimiterSettings{
		Requests: cfg.Crawler.RateLimit.Requests,
		Window:   cfg.Crawler.RateLimit.Window.Duration,
	})

	var renderer fetcher.Renderer
	if cfg.Rendering.Enabled {
		renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
			Timeout:            cfg.Rendering.Timeout.Duration,
			WaitForSelector:    cfg.Rendering.WaitForSelector,
			MaxBodyBytes:       cfg.Crawler.MaxBodyBytes,
			DisableHeadless:    cfg.Rendering.DisableHeadless,
			ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
		}, logger)
	}

	var checker fetcher.RobotsChecker
	if cfg.Robots.Respect {
		checker = robots.NewAgent(cfg.Robots, nil)
	}

	return fetcher.New(fetcher.Options{
		Politeness:   politeness,
		Limiter:      limiter,
		Robots:       checker,
		Renderer:     renderer,
		MaxRetries:   cfg.Crawler.MaxRetries,
		RetryBackoff: cfg.Crawler.RetryBackoff.Duration,
		Timeout:      cfg.Crawler.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
		Headers:      cfg.Crawler.Headers,
		ProxyURL:     cfg.Crawler.ProxyURL,
		Logger:       logger,
	})
}

// buildSources instantiates every known bank adapter, filtered by the
// configured bank list. An empty list enables all adapters.
func buildSources(cfg config.Config, fetch *fetcher.Client, logger *slog.Logger) []crawler.Source {
	extract := textextract.New()
	registry := map[string]crawler.Source{
		"ctbc": banks.NewCTBC(fetch, extract, banks.CTBCConfig{
			Rendered: cfg.Rendering.Enabled,
		}, logger),
	}

	if len(cfg.Crawler.Banks) == 0 {
		sources := make([]crawler.Source, 0, len(registry))
		for _, src := range registry {
			sources = append(sources, src)
		}
		return sources
	}

	var sources []crawler.Source
	for _, code := range cfg.Crawler.Banks {
		src, ok := registry[code]
		if !ok {
			logger.Warn("unknown bank code in config", "code", code)
			continue
		}
		sources = append(sources, src)
	}
	return sources
}
