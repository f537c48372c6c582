// Package cli implements the bibfetch command line interface.
package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bibfetch/bibfetch/internal/config"
	"github.com/bibfetch/bibfetch/internal/fetcher"
	"github.com/bibfetch/bibfetch/internal/observability"
)

var (
	flagProvider string
	flagFormat   string
	flagVerbose  bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "bibfetch",
	Short: "Fetch bibliographic metadata from scholarly APIs",
	Long: `bibfetch runs paginated searches and record lookups against
bibliographic metadata providers (Crossref, Scopus), with per-provider
rate limiting and a persistent on-disk result cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "crossref", "provider to query (crossref, scopus)")
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "table", "output format (table, json, jsonl)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// app bundles the wired service for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
	registry *fetcher.Registry
	promReg  *prometheus.Registry
}

// newApp loads configuration and wires the fetcher registry. Metrics go to
// a private registry: the CLI has no scrape endpoint except under serve.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flagVerbose {
		cfg.Logging.Level = "debug"
	}
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})

	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	registry, err := fetcher.FromConfig(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		promReg:  promReg,
	}, nil
}

// fetcher resolves the --provider flag against the registry.
func (a *app) fetcher() (*fetcher.Fetcher, error) {
	f, err := a.registry.Get(flagProvider)
	if err != nil {
		return nil, fmt.Errorf("provider %q is not enabled (available: %v)", flagProvider, a.registry.Names())
	}
	return f, nil
}
