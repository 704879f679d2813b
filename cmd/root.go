package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/app"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/logging"
	"github.com/JakeFAU/listing-crawler/internal/persist"
	"github.com/JakeFAU/listing-crawler/internal/store"
)

// runtimeKeyType is the key for storing the runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// App defines the services commands use. Tests swap in their own through
// newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Store() store.ListingStore
	Archive() crawler.BlobStore
	Publisher() persist.Publisher
}

// newApp is the application factory. It is a variable so tests can open
// in-memory services instead.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg       config.Config
	logger    *zap.Logger
	app       App
	closeOnce sync.Once
}

func (rt *runtime) close() {
	rt.closeOnce.Do(func() {
		rt.app.Close()
		_ = rt.logger.Sync()
	})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "listingcrawler",
		Short: "Crawls vehicle classified listings into a relational store.",
		Long: `listingcrawler walks the paginated listing feed of a classifieds site,
either through its JSON search API or by scraping category pages, and keeps
every listing it has not seen before.`,
		SilenceUsage: true,

		// Config, logger and services are built here so every subcommand
		// starts from the same state.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger, app: appInstance})
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml); CRAWLER_* env vars override it")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newListingsCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil || rt.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// withRuntime adapts fn into a RunE that receives the opened services and
// releases them once fn returns. Cobra skips post-run hooks when RunE fails,
// so the release cannot live there.
func withRuntime(fn func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := resolveRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()
		return fn(cmd, args, rt)
	}
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
