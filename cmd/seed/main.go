package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/reelrate/internal/config"
	"github.com/Clark-Hu/reelrate/internal/logging"
	"github.com/Clark-Hu/reelrate/internal/seed"
	"github.com/Clark-Hu/reelrate/internal/store"
	"github.com/Clark-Hu/reelrate/internal/tmdb"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts seed.Options

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the catalog from TMDB",
		Long: `Fetch genres, popular movies and popular shows from TMDB together with
their cast and crew, and upsert them into the database. Running it again
refreshes existing rows.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Pages, "pages", 1, "pages of popular movies and shows to fetch")
	flags.IntVar(&opts.HighlightTop, "highlight", 5, "mark the N most popular items of each kind as highlighted")
	flags.IntVar(&opts.CastLimit, "cast-limit", 10, "billed cast members kept per item")
	flags.IntVar(&opts.Concurrency, "concurrency", 4, "items fetched in parallel")
	return cmd
}

func run(parent context.Context, opts seed.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := cfg.RequireTMDB(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, "reelrate-seed")

	st, err := store.New(ctx, cfg.DBURL, store.OptionsFromConfig(cfg, logger))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	client, err := tmdb.NewHTTPClient(cfg.TMDBBaseURL, cfg.TMDBAPIKey, cfg.TMDBImageBaseURL, time.Duration(cfg.TMDBTimeoutSecs)*time.Second, logger)
	if err != nil {
		return fmt.Errorf("init tmdb client: %w", err)
	}

	started := time.Now()
	report, err := seed.New(client, st, logger).Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info().
		Int("genres", report.Genres).
		Int("movies", report.Movies).
		Int("shows", report.Shows).
		Int("celebrities", report.Celebrities).
		Int("credits", report.Credits).
		Int("skipped", report.Skipped).
		Dur("elapsed", time.Since(started)).
		Msg("seed complete")
	return nil
}
