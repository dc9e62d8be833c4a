package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/pipeline"
	"github.com/IshaanNene/CommentGoat/internal/storage"
	"github.com/IshaanNene/CommentGoat/internal/types"
	"github.com/IshaanNene/CommentGoat/pkg/commentgoat"
)

var (
	urlsFile       string
	maxComments    int
	outputFile     string
	outputFormat   string
	proxyList      string
	sufficiency    string
	noBrowser      bool
	learnSelectors bool
	resume         bool
)

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url...]",
		Short: "Extract comments from one or more post URLs",
		Long: `Extract comments from post pages.

One URL writes a flat list of comments. Several URLs (or --urls-file) run a
batch: pages are scraped one after another with a pause in between, and the
output keeps each comment's post URL.`,
		RunE: runScrape,
	}

	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "file with one post URL per line")
	cmd.Flags().IntVarP(&maxComments, "max-comments", "m", 0, "maximum comments per post (default from config)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path (default: timestamped file in storage.output_dir)")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format: json, jsonl, csv, mongodb")
	cmd.Flags().StringVar(&proxyList, "proxy-list", "", "file with one proxy URL per line")
	cmd.Flags().StringVar(&sufficiency, "sufficiency", "", "when stored patterns are enough: max, any, at_least")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "disable the rendered browser fallback")
	cmd.Flags().BoolVar(&learnSelectors, "learn-selectors", false, "derive CSS selector patterns from content analysis results")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume an interrupted batch from its checkpoint")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyScrapeOverrides(cfg); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	urls, err := collectURLs(args, urlsFile)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errors.New("no post URLs given: pass them as arguments or with --urls-file")
	}
	for _, rawURL := range urls {
		if err := config.ValidateURL(rawURL); err != nil {
			return fmt.Errorf("invalid URL %q: %w", rawURL, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	batch := len(urls) > 1
	scraper, err := commentgoat.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := scraper.Close(); err != nil {
			logger.Error("scraper close error", "error", err)
		}
	}()

	if batch && !resume {
		if err := scraper.ClearCheckpoint(); err != nil {
			logger.Warn("failed to remove stale checkpoint", "error", err)
		}
	}
	if cfg.Metrics.Enabled {
		if err := scraper.Metrics().StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	mode := storage.ModeSingle
	if batch {
		mode = storage.ModeBatch
	}
	out, err := storage.New(cfg.Storage, mode, time.Now(), logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	logger.Info("starting scrape",
		"posts", len(urls),
		"max_comments", cfg.Engine.MaxComments,
		"format", cfg.Storage.Type,
		"sufficiency", cfg.Engine.Sufficiency,
	)

	start := time.Now()
	var (
		results []types.PageResult
		runErr  error
	)
	if batch {
		results, runErr = scraper.ScrapeMultiple(ctx, urls, cfg.Engine.MaxComments)
	} else {
		var comments []types.Comment
		comments, runErr = scraper.ScrapeComments(ctx, urls[0], cfg.Engine.MaxComments)
		if runErr == nil {
			results = []types.PageResult{{URL: urls[0], Comments: comments}}
		}
	}

	if cfg.Storage.Dedup {
		for i := range results {
			dedup := pipeline.New(logger)
			dedup.Use(pipeline.NewDedupMiddleware())
			results[i].Comments = dedup.Apply(results[i].Comments)
		}
	}

	// Partial batch results are still written after a cancellation.
	if err := out.Store(results); err != nil {
		out.Close()
		return fmt.Errorf("store results: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}

	total := 0
	for _, r := range results {
		total += len(r.Comments)
	}
	logger.Info("scrape complete",
		"elapsed", time.Since(start),
		"posts", len(results),
		"comments", total,
		"output", outputLocation(out),
		"metrics", scraper.Metrics().Snapshot(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Scraped %d comments from %d post(s), saved to %s\n", total, len(results), outputLocation(out))

	if runErr != nil {
		if batch {
			return fmt.Errorf("scrape interrupted, rerun with --resume to continue: %w", runErr)
		}
		return fmt.Errorf("scrape interrupted: %w", runErr)
	}
	return nil
}

// applyScrapeOverrides applies command-line flag values to the config.
func applyScrapeOverrides(cfg *config.Config) error {
	if maxComments != 0 {
		cfg.Engine.MaxComments = maxComments
	}
	if outputFile != "" {
		cfg.Storage.OutputFile = outputFile
	}
	if outputFormat != "" {
		cfg.Storage.Type = strings.ToLower(outputFormat)
	}
	if sufficiency != "" {
		cfg.Engine.Sufficiency = strings.ToLower(sufficiency)
	}
	if noBrowser {
		cfg.Browser.Enabled = false
	}
	if learnSelectors {
		cfg.Patterns.LearnSelectors = true
	}
	if proxyList != "" {
		proxies, err := config.LoadProxyList(proxyList)
		if err != nil {
			return err
		}
		cfg.Proxy.URLs = append(cfg.Proxy.URLs, proxies...)
		cfg.Proxy.Enabled = len(cfg.Proxy.URLs) > 0
	}
	return nil
}

// collectURLs merges positional URLs with the lines of urlsFile.
func collectURLs(args []string, urlsFile string) ([]string, error) {
	urls := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			urls = append(urls, a)
		}
	}
	if urlsFile == "" {
		return urls, nil
	}

	f, err := os.Open(urlsFile)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return urls, nil
}

func outputLocation(s storage.Storage) string {
	if p, ok := s.(interface{ Path() string }); ok {
		return p.Path()
	}
	return s.Name()
}
