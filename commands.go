package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"watchfront/catalog"
	"watchfront/httputil"
	"watchfront/models"
	"watchfront/render"
	"watchfront/scheduler"
	"watchfront/scraper"
	"watchfront/server"
	"watchfront/storage"
	"watchfront/tui"
)

var (
	fetchProvider string
	daemonNow     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Acquire listings once and write the JSON file",
	Long: `Runs the provider chain once. When every provider fails the built-in
sample collection is written instead, so the file always exists afterwards.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run acquisition on a schedule and answer queued commands",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the storefront over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the storefront in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runBrowse,
}

var historyCmd = &cobra.Command{
	Use:   "history <listing-id>",
	Short: "Show the archived prices of one listing",
	Long:  `Reads the Postgres run archive (DATABASE_URL) and prints every captured price, oldest first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "run only this provider instead of the configured chain")
	daemonCmd.Flags().BoolVar(&daemonNow, "now", false, "run once immediately before waiting for the schedule")
}

// acquisition opens everything a run needs. The returned cleanup closes it
// all in reverse order.
func acquisition(ctx context.Context) (*scraper.Orchestrator, *storage.SQLiteStore, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open SQLite: %w", err)
	}
	closers = append(closers, func() { store.Close() })
	log.Printf("SQLite database: %s", cfg.DBPath)

	clients := httputil.NewClients(&cfg.Proxy)
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", maskConnectionString(cfg.Proxy.URL))
	}

	orchestrator, err := scraper.NewOrchestrator(cfg, store, clients)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	closers = append(closers, func() { orchestrator.Close() })

	if cfg.Postgres.URL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Printf("Warning: run archive disabled: %v", err)
		} else {
			orchestrator.SetArchive(pg)
			closers = append(closers, pg.Close)
			log.Printf("Archiving runs to Postgres: %s", maskConnectionString(cfg.Postgres.URL))
		}
	}

	if cfg.S3.Bucket != "" {
		pub, err := storage.NewS3Publisher(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Key:             cfg.S3.Key,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
		})
		if err != nil {
			log.Printf("Warning: publishing disabled: %v", err)
		} else {
			orchestrator.SetPublisher(pub)
			log.Printf("Publishing to s3://%s/%s", cfg.S3.Bucket, cfg.S3.Key)
		}
	}

	return orchestrator, store, cleanup, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator, _, cleanup, err := acquisition(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var result *scraper.RunResult
	if fetchProvider != "" {
		result, err = orchestrator.RunProvider(ctx, fetchProvider)
	} else {
		result, err = orchestrator.Run(ctx)
	}
	if err != nil {
		return err
	}

	for _, a := range result.Attempts {
		if a.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %-12s failed: %v\n", a.Provider, a.Err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d listings\n", a.Provider, a.Items)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: wrote %d listings to %s\n",
		result.Run.Status, result.Run.ItemsWritten, result.Run.OutputPath)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator, store, cleanup, err := acquisition(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sched := scheduler.New(cfg, orchestrator, store)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if daemonNow {
		if result, err := sched.TriggerNow(ctx); err != nil {
			log.Printf("Initial run failed: %v", err)
		} else {
			log.Printf("Initial run %s: %d listings written", result.Run.Status, result.Run.ItemsWritten)
		}
	}

	log.Printf("Daemon running for seller %q with providers %v. Press Ctrl+C to stop.", cfg.Seller.ID, orchestrator.ProviderIDs())
	<-ctx.Done()

	log.Println("Shutting down...")
	sched.Stop()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loaded := storage.LoadListings(cfg.Server.DataPath)
	if loaded.Fallback {
		log.Printf("Warning: serving sample listings: %v", loaded.Reason)
	} else {
		log.Printf("Loaded %d listings from %s", len(loaded.Document.ItemSummaries), cfg.Server.DataPath)
	}

	renderer, err := render.New()
	if err != nil {
		return err
	}
	srv, err := server.New(cfg.Server, loaded, renderer)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	loaded := storage.LoadListings(cfg.Server.DataPath)

	var (
		prefs tui.PrefStore
		runs  tui.RunStore
	)
	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Printf("Warning: preferences and runs unavailable: %v", err)
	} else {
		defer store.Close()
		prefs, runs = store, store
	}

	return tui.Run(tui.New(loaded, prefs, runs, cfg.Acquire.Providers))
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("history needs the run archive: set DATABASE_URL")
	}
	ctx := cmd.Context()
	pg, err := storage.NewPostgresStore(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer pg.Close()

	points, err := pg.PriceHistory(ctx, args[0])
	if err != nil {
		return fmt.Errorf("price history: %w", err)
	}
	printPriceHistory(cmd.OutOrStdout(), args[0], points)
	return nil
}

// printPriceHistory writes one line per snapshot and marks price changes.
func printPriceHistory(w io.Writer, listingID string, points []storage.PricePoint) {
	if len(points) == 0 {
		fmt.Fprintf(w, "No archived prices for %s\n", listingID)
		return
	}
	fmt.Fprintf(w, "Price history for %s (%d snapshots)\n", listingID, len(points))
	prev := ""
	for _, p := range points {
		price := catalog.FormatPrice(models.Price{Amount: p.Amount, Currency: p.Currency})
		mark := ""
		if prev != "" && price != prev {
			mark = "  (changed)"
		}
		fmt.Fprintf(w, "  %s  %-14s run %s%s\n", p.CapturedAt.UTC().Format("2006-01-02 15:04"), price, p.RunID.String()[:8], mark)
		prev = price
	}
}

// maskConnectionString masks the password in a URL for logging.
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
