package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/api"
	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/listing-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
	"github.com/JakeFAU/listing-crawler/internal/headless/detector"
	"github.com/JakeFAU/listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/listing-crawler/internal/persist"
	"github.com/JakeFAU/listing-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/listing-crawler/internal/store"
)

const shutdownTimeout = 5 * time.Second

// newScrapeCmd creates the 'scrape' subcommand, which performs one crawl run
// and prints its summary as JSON.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Runs one crawl and stores new listings",
		Long: `Fetches listing pages until each source runs dry, repeats itself, fails
or reaches its page ceiling. New listings are stored once per natural key.
The run summary is written to stdout. Failed pages or rejected records do not
change the exit status.`,
		Args: cobra.NoArgs,
		RunE: withRuntime(runScrapeCommand),
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string, rt *runtime) error {
	ctx := cmd.Context()
	if rt.cfg.DB.Ephemeral() {
		rt.logger.Warn("listing store is in memory: stored listings are lost on exit and a rerun will store them again",
			zap.String("dsn", rt.cfg.DB.DSN))
	}

	engine, cleanup, err := buildEngine(rt.cfg, rt.app, rt.logger)
	if err != nil {
		return err
	}
	defer cleanup()

	stopServer := startProbeServer(rt.cfg.Metrics.Port, rt.app.Store(), rt.logger)
	defer stopServer()

	summary, err := engine.Scrape(ctx)
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// buildEngine wires a crawl engine from configuration and opened services.
// The returned cleanup releases the fetcher.
func buildEngine(cfg config.Config, a App, logger *zap.Logger) (*crawler.Engine, func(), error) {
	fetcher, cleanup, err := buildFetcher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	gateway, err := persist.NewGateway(a.Store(), a.Publisher(), system.New(), persist.Config{
		Topic:            cfg.PubSub.TopicName,
		DetailsSeparator: cfg.HTML.DetailsSeparator,
	}, logger.Named("persist"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init persistence gateway: %w", err)
	}

	engine, err := crawler.NewEngine(crawler.EngineConfig{
		Mode:                crawler.Mode(cfg.Crawler.Mode),
		BaseURL:             cfg.Crawler.BaseURL,
		MaxPages:            cfg.Crawler.MaxPages,
		Concurrency:         cfg.Crawler.Concurrency,
		CategoryName:        cfg.Crawler.CategoryName,
		CategoryURLTemplate: cfg.Crawler.CategoryURLTemplate,
		CategoryMaxPages:    cfg.Crawler.CategoryMaxPages,
		ArchivePrefix:       cfg.Archive.Prefix,
	}, crawler.EngineDeps{
		Fetcher:   fetcher,
		Extractor: buildExtractor(cfg, logger),
		Links:     extract.NewLinkExtractor(),
		Persister: gateway,
		Archive:   a.Archive(),
		IDs:       uuid.New(),
		Clock:     system.New(),
	}, logger.Named("engine"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init engine: %w", err)
	}
	return engine, cleanup, nil
}

// buildFetcher builds the colly fetcher, optionally backed or replaced by
// headless Chrome, and wraps it with the per-host limiter and retry policy.
func buildFetcher(cfg config.Config, logger *zap.Logger) (crawler.Fetcher, func(), error) {
	var base crawler.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	cleanup := func() {}
	if cfg.Headless.Enabled {
		chrome, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		cleanup = chrome.Close
		if cfg.Headless.Promote {
			marker := ""
			if cfg.Crawler.Mode == config.ModeHTML {
				marker = cfg.HTML.ContainerClass
			}
			base = crawler.NewPromotingFetcher(base, chrome, detector.NewHeuristic(0, marker), logger.Named("promote"))
		} else {
			base = chrome
		}
		logger.Info("headless fetcher enabled",
			zap.Int("max_parallel", cfg.Headless.MaxParallel),
			zap.Bool("promote", cfg.Headless.Promote),
		)
	}

	backoffInitial, backoffMax := cfg.Backoff()
	fetcher := crawler.NewResilientFetcher(
		base,
		ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Crawler.RequestsPerSecond}),
		crawler.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries, backoffInitial, backoffMax),
		logger.Named("fetch"),
	)
	return fetcher, cleanup, nil
}

// buildExtractor returns the extractor for the configured mode. Each mode
// hashes its signatures under its own domain label.
func buildExtractor(cfg config.Config, logger *zap.Logger) crawler.Extractor {
	if cfg.Crawler.Mode == config.ModeHTML {
		htmlCfg := extract.DefaultHTMLConfig()
		if cfg.HTML.ContainerClass != "" {
			htmlCfg.ContainerClass = cfg.HTML.ContainerClass
		}
		if cfg.HTML.ClassBase != "" {
			htmlCfg.ClassBase = cfg.HTML.ClassBase
		}
		if cfg.HTML.TitleClass != "" {
			htmlCfg.TitleClass = cfg.HTML.TitleClass
		}
		return extract.NewHTMLExtractor(htmlCfg, sha256.NewWithDomain("html-cards"), logger.Named("extract"))
	}
	return extract.NewJSONExtractor(cfg.Crawler.KeyPrefix, sha256.NewWithDomain("json-ads"), logger.Named("extract"))
}

// startProbeServer serves health, readiness and metrics while a run is in
// progress. A zero port disables it. The returned func shuts it down.
func startProbeServer(port int, pinger store.Pinger, logger *zap.Logger) func() {
	if port <= 0 {
		return func() {}
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewServer(pinger, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("probe server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("probe server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("probe server shutdown error", zap.Error(err))
		}
	}
}
