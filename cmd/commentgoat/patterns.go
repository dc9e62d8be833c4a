package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/CommentGoat/internal/config"
	"github.com/IshaanNene/CommentGoat/internal/patterns"
)

var patternURL string

// patternsCmd creates the "patterns" subcommand for inspecting learned patterns.
func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect learned extraction patterns",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored patterns, best success rate first when filtered by URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPatternStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var ps []patterns.Pattern
			if patternURL != "" {
				ps = store.MatchingPatterns(patternURL)
			} else {
				ps = store.All()
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMETHOD\tSUCCESS\tFAILURE\tRATE\tLAST USED\tURL PATTERN")
			for _, p := range ps {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%s\t%s\n",
					p.ID, p.Method(), p.SuccessCount, p.FailureCount, p.SuccessRate,
					p.LastUsedTime().Format(time.DateTime), p.URLPattern)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&patternURL, "url", "", "only patterns matching this post URL")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one pattern in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPatternStore()
			if err != nil {
				return err
			}
			defer store.Close()

			p, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("pattern %q not found", args[0])
			}
			out, err := yaml.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode pattern: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id: %s\n%s", p.ID, out)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func openPatternStore() (*patterns.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	backend, err := patterns.OpenBackend(cfg.Patterns.Backend, cfg.Patterns.Path)
	if err != nil {
		return nil, fmt.Errorf("open pattern store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := patterns.NewStore(backend, logger)
	store.Load()
	return store, nil
}
