package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/tululu-books/config"
	"github.com/aluiziolira/tululu-books/pipeline"
	"github.com/aluiziolira/tululu-books/scraper"
	"github.com/aluiziolira/tululu-books/storage"
)

const startPagePrompt = "Enter the start page with --start_page"

type options struct {
	startPage      int
	endPage        int
	booksDir       string
	imagesDir      string
	output         string
	format         string
	baseURL        string
	timeout        time.Duration
	imageCache     int
	replacePerPage bool
	skipBroken     bool
	respectRobots  bool
	metricsAddr    string
	verbose        bool
}

func newRootCmd() (*cobra.Command, error) {
	defaultCfg := config.DefaultConfig()
	endDefault := defaultCfg.EndPage
	if value, ok, err := config.EnvInt("SCRAPER_END_PAGE"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_END_PAGE: %w", err)
	} else if ok {
		endDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	baseURLDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		baseURLDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	opts := &options{}
	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Download books, covers and descriptions from the tululu.org catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.startPage == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), startPagePrompt)
				return nil
			}

			logger, level := newLogger(opts.verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())

			cfg := buildConfig(opts)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.startPage, "start_page", 0, "First catalog page to download")
	flags.IntVar(&opts.endPage, "end_page", endDefault, "Page to stop at (exclusive)")
	flags.StringVar(&opts.booksDir, "books-dir", defaultCfg.BooksDir, "Directory for book texts")
	flags.StringVar(&opts.imagesDir, "images-dir", defaultCfg.ImagesDir, "Directory for cover images")
	flags.StringVarP(&opts.output, "output", "o", outputDefault, "Output file path")
	flags.StringVar(&opts.format, "format", defaultCfg.OutputFormat, "Output format: json, csv, or dual")
	flags.StringVar(&opts.baseURL, "base-url", baseURLDefault, "Catalog site URL")
	flags.DurationVar(&opts.timeout, "timeout", defaultCfg.Timeout, "Per-request timeout")
	flags.IntVar(&opts.imageCache, "image-cache", defaultCfg.ImageCacheSize, "Number of saved covers remembered to avoid refetching (0 disables)")
	flags.BoolVar(&opts.replacePerPage, "replace-per-page", defaultCfg.ReplacePerPage, "Keep only the last page's books in the output")
	flags.BoolVar(&opts.skipBroken, "skip-broken", defaultCfg.SkipBrokenBooks, "Skip books that fail instead of stopping the run")
	flags.BoolVar(&opts.respectRobots, "respect-robots", defaultCfg.RespectRobotsTxt, "Respect robots.txt directives")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	return cmd, nil
}

func buildConfig(opts *options) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = opts.baseURL
	cfg.StartPage = opts.startPage
	cfg.EndPage = opts.endPage
	cfg.BooksDir = opts.booksDir
	cfg.ImagesDir = opts.imagesDir
	cfg.OutputFile = opts.output
	cfg.OutputFormat = strings.ToLower(opts.format)
	cfg.Timeout = opts.timeout
	cfg.ImageCacheSize = opts.imageCache
	cfg.ReplacePerPage = opts.replacePerPage
	cfg.SkipBrokenBooks = opts.skipBroken
	cfg.RespectRobotsTxt = opts.respectRobots
	cfg.MetricsAddr = opts.metricsAddr
	cfg.Verbose = opts.verbose
	return cfg
}

// run downloads the configured page range and writes the output file.
// Nothing is written when the scrape fails.
func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := storage.EnsureDirs(cfg.BooksDir, cfg.ImagesDir); err != nil {
		return err
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}
	s.SetProgressOutput(stdout)

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("start_page", cfg.StartPage),
		slog.Int("end_page", cfg.EndPage),
	)

	p := pipeline.NewPipeline(writer)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if err != nil {
		return fmt.Errorf("scraping failed: %w", err)
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	printSummary(stderr, result, cfg.OutputFile, p.GetMetrics())
	return nil
}
