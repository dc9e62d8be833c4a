package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/CommentGoat/internal/api"
	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/pkg/commentgoat"
)

var servePort int

// serveCmd creates the "serve" subcommand running the job API.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction job API over HTTP",
		Long: `Serve a REST API for extraction jobs.

  POST   /api/scrape          scrape one post and return its comments
  POST   /api/jobs            queue a batch of posts
  GET    /api/jobs[/{id}]     job status and results
  DELETE /api/jobs/{id}       cancel a job
  GET    /api/patterns[/{id}] learned patterns (?url= filters)
  GET    /metrics             Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, closeLog, err := setupLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			// Jobs with different URL lists would overwrite each other's checkpoint.
			cfg.Engine.CheckpointDir = ""

			scraper, err := commentgoat.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := scraper.Close(); err != nil {
					logger.Error("scraper close error", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(scraper, scraper.Patterns(), scraper.Metrics(), cfg.Engine.MaxComments, logger)
			if err := srv.Run(ctx, servePort); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			logger.Info("api server stopped")
			return nil
		},
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 8080, "listen port")
	return cmd
}
