package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"proxycrawler/internal/app/version"
	"proxycrawler/internal/checker"
	"proxycrawler/internal/config"
	"proxycrawler/internal/database"
	"proxycrawler/internal/domain"
	"proxycrawler/internal/export"
	"proxycrawler/internal/pipeline"
	"proxycrawler/internal/sources"
	"proxycrawler/internal/support"
)

type options struct {
	debugMode       bool
	databaseURL     string
	outputPath      string
	groupByProtocol bool
	validate        bool
	saveOnRun       bool
	proxiesCount    int
	proxyFile       string
	protocol        string
	allProtocols    bool
}

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "proxycrawler",
		Short:         "Harvest, validate and export free proxies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debug("No .env file found. Falling back to system environment variables.")
			}

			if opts.debugMode || support.GetEnvBool("DEBUG", false) {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.InfoLevel)
			}

			if cmd.Name() == "version" {
				return nil
			}
			if err := config.ReadSettings(); err != nil {
				return err
			}
			return config.GetConfig().Validate()
		},
	}
	root.PersistentFlags().BoolVar(&opts.debugMode, "debug-mode", false, "Enable debug mode")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Database DSN (overrides DATABASE_URL and settings)")

	root.AddCommand(
		newVersionCommand(),
		newScrapeCommand(opts),
		newExportCommand(opts),
		newValidateCommand(opts),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the proxycrawler version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
			return err
		},
	}
}

func newScrapeCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scrape",
		Aliases: []string{"scrap"},
		Short:   "Scrape proxies from every enabled source",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := resolveOutputPath(opts.outputPath)
			if err := export.CheckOutputPath(output); err != nil {
				return err
			}

			return withCrawler(cmd.Context(), opts.databaseURL, func(crawler *pipeline.Crawler) error {
				written, err := crawler.Crawl(cmd.Context(), pipeline.CrawlOptions{
					Validate:        opts.validate,
					SaveOnRun:       opts.saveOnRun,
					GroupByProtocol: opts.groupByProtocol,
					OutputPath:      output,
				})
				reportWritten(written)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&opts.saveOnRun, "enable-save-on-run", true, "Save valid proxies after each source instead of once at the end")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "Validate each proxy that was found")
	addOutputFlags(cmd, opts)
	return cmd
}

func newExportCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-db",
		Short: "Export proxies from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.proxiesCount < 0 {
				return fmt.Errorf("--proxies-count must not be negative")
			}
			output := resolveOutputPath(opts.outputPath)
			if err := export.CheckOutputPath(output); err != nil {
				return err
			}

			return withCrawler(cmd.Context(), opts.databaseURL, func(crawler *pipeline.Crawler) error {
				written, err := crawler.Export(cmd.Context(), pipeline.ExportOptions{
					Limit:           opts.proxiesCount,
					Validate:        opts.validate,
					GroupByProtocol: opts.groupByProtocol,
					OutputPath:      output,
				})
				reportWritten(written)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&opts.proxiesCount, "proxies-count", 0, "Number of proxies to export (all by default)")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "Validate proxies before exporting them")
	addOutputFlags(cmd, opts)
	return cmd
}

func newValidateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a proxy list file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := export.ReadProxyFile(opts.proxyFile)
			if err != nil {
				return err
			}

			var protocol domain.Protocol
			if opts.protocol != "" {
				protocol, err = domain.ParseProtocol(opts.protocol)
				if err != nil {
					return err
				}
			}

			output := opts.outputPath
			if output == "" {
				output = export.DefaultValidatedPath(opts.proxyFile)
			}
			if err := export.CheckOutputPath(output); err != nil {
				return err
			}

			return withCrawler(cmd.Context(), opts.databaseURL, func(crawler *pipeline.Crawler) error {
				written, err := crawler.ValidateFile(cmd.Context(), lines, pipeline.ValidateFileOptions{
					Protocol:        protocol,
					AllProtocols:    opts.allProtocols,
					GroupByProtocol: opts.groupByProtocol,
					OutputPath:      output,
				})
				reportWritten(written)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.proxyFile, "proxy-file", "", "Path to the proxy file (.txt)")
	cmd.Flags().StringVar(&opts.protocol, "protocol", "", "Test every proxy on this protocol only")
	cmd.Flags().BoolVar(&opts.allProtocols, "test-all-protocols", false, "Test every protocol on each proxy")
	_ = cmd.MarkFlagRequired("proxy-file")
	cmd.MarkFlagsMutuallyExclusive("protocol", "test-all-protocols")
	addOutputFlags(cmd, opts)
	return cmd
}

func addOutputFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().BoolVar(&opts.groupByProtocol, "group-by-protocol", false, "Save proxies into separate files per protocol")
	cmd.Flags().StringVar(&opts.outputPath, "output-file-path", "", "Custom output file path (.txt)")
}

func resolveOutputPath(path string) string {
	if path != "" {
		return path
	}
	if configured := config.GetConfig().Output.DefaultPath; configured != "" {
		return configured
	}
	return export.DefaultOutputPath
}

// withCrawler opens the store and builds a crawler for the duration of fn.
func withCrawler(ctx context.Context, dsn string, fn func(*pipeline.Crawler) error) error {
	cfg := config.GetConfig()

	db, err := database.SetupDB(database.WithDSN(dsn))
	if err != nil {
		return err
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}()
	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	prober := checker.NewHTTPProber(cfg)
	cache := checker.NewVerdictCache(config.TimerDuration(cfg.Checker.VerdictTTL))

	crawler := pipeline.NewCrawler(
		sources.FromConfig(cfg),
		checker.NewEngine(prober, cache, checker.FreshPolicy(cfg)),
		checker.NewEngine(prober, checker.NopVerdictCache{}, checker.RevalidationPolicy(cfg)),
		database.NewProxyStore(db),
		export.NewFileSink(),
	)

	err = fn(crawler)
	if errors.Is(err, context.Canceled) || (err == nil && ctx.Err() != nil) {
		log.Warn("Interrupted, partial results were kept")
		return nil
	}
	return err
}

func reportWritten(paths []string) {
	for _, path := range paths {
		log.Info("Proxies written", "file", path)
	}
}
