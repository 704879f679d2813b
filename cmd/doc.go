// Package cmd defines the listingcrawler CLI.
//
// Architecture overview:
//   - Configuration: internal/config loads a YAML/JSON/TOML file (--config) through Viper and lets CRAWLER_* env vars
//     override any key. The logger is built from logging.development and logging.level and installed as zap's global.
//   - Services: internal/app opens the listing store named by db.dsn (required; postgres:// for durable runs,
//     memory:// for throwaway ones), the optional page archive
//     (memory, local directory or GCS) and the optional Pub/Sub publisher. Failing to open the store or create its
//     schema is the only fatal startup error.
//   - Fetch pipeline: the Colly fetcher (or chromedp when headless.enabled) is wrapped by crawler.ResilientFetcher,
//     which waits on a per-host token bucket and retries transient failures with exponential backoff.
//   - Crawl: crawler.Engine reads one numbered JSON source, or discovers categories on the root page and crawls each
//     on a bounded pool in HTML mode. Every page walk stops on an empty page, a repeated page, a fetch failure or the
//     page ceiling.
//   - Persistence: persist.Gateway stores each record in its own transaction, reports duplicate natural keys as
//     rejections and publishes a StoredEvent per new listing when a topic is configured.
//
// Operational notes:
//   - SIGINT/SIGTERM cancel the run. Records already committed stay committed; the rest are reported as not attempted.
//   - metrics.port > 0 serves /healthz, /readyz and /metrics for the duration of the run.
//   - scrape exits 0 whenever the run completes, even if pages or records failed. Inspect "degraded" in the summary.
//   - Services are released when a command returns, whether or not it failed.
//
// Quick checklist:
//   - go run . scrape --config config.yaml
//   - CRAWLER_CRAWLER_MODE=html CRAWLER_CRAWLER_BASE_URL=https://bama.ir/ CRAWLER_DB_DSN=postgres://... go run . scrape
//   - go run . listings get run_id <run-id>
package cmd
