package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"inventory_watch/config"
	"inventory_watch/export"
	"inventory_watch/httputil"
	"inventory_watch/ledger"
	"inventory_watch/logging"
	"inventory_watch/models"
	"inventory_watch/notify"
	"inventory_watch/scheduler"
	"inventory_watch/scraper"
	"inventory_watch/storage"
)

const recentDays = 7

var (
	searchNow = flag.Bool("search", false, "Run one search and exit")
	showStats = flag.Bool("stats", false, "Show ledger statistics and recent matches")
	reset     = flag.Bool("reset", false, "Clear all search history")
	exportDoc = flag.Bool("export", false, "Export the ledger to the file given as argument, or a timestamped file")
	prune     = flag.Bool("prune", false, "Drop vehicles older than RETENTION_DAYS and exit")
	verbose   = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	logging.SetVerbose(*verbose)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogFile)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	store := ledger.Open(cfg.Ledger.Path)

	switch {
	case *showStats:
		printStats(os.Stdout, store)
		return
	case *reset:
		if err := store.Reset(); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("Search history cleared")
		return
	case *exportDoc:
		path, err := store.Export(flag.Arg(0))
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Printf("Exported ledger to %s", path)
		return
	case *prune:
		removed, err := store.Prune(time.Duration(cfg.Ledger.RetentionDays) * 24 * time.Hour)
		if err != nil {
			log.Fatalf("Prune failed: %v", err)
		}
		log.Printf("Pruned %d vehicles older than %d days", removed, cfg.Ledger.RetentionDays)
		return
	}

	log.Println("Starting inventory_watch...")
	log.Printf("Watching %d locations for %s %v (min year %d)",
		len(cfg.Locations), cfg.Criteria.Make, cfg.Criteria.Models, cfg.Criteria.MinYear)
	for _, loc := range cfg.Locations {
		log.Printf("  - %s (%s)", loc.Name, loc.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := httputil.NewClients(cfg.Fetch)
	fetcher := scraper.NewFetcher(cfg.Fetch, clients)
	if bf, ok := fetcher.(*scraper.BrowserFetcher); ok {
		defer bf.Close()
	}
	if cfg.Fetch.ProxyURL != "" {
		log.Printf("Proxy: %s", maskConnectionString(cfg.Fetch.ProxyURL))
	}

	notifier := notify.FromConfig(cfg.Notify, notify.Deps{API: clients.API})
	if len(notifier) == 0 {
		log.Println("Warning: no notification channels configured")
	}

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	var mirror scraper.Mirror
	if cfg.DatabaseURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: Postgres mirror disabled: %v", err)
		} else {
			defer pgStore.Close()
			mirror = pgStore
			log.Printf("Mirroring to Postgres: %s", maskConnectionString(cfg.DatabaseURL))
		}
	}

	var uploader export.Uploader
	if cfg.S3.Enabled() {
		s3Uploader, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			log.Printf("Warning: dashboard upload disabled: %v", err)
		} else {
			uploader = s3Uploader
			log.Printf("Dashboard upload: %s", s3Uploader.PublicURL(cfg.S3.Key))
		}
	}
	publisher := export.NewPublisher(cfg.DashboardPath, uploader, cfg.S3.Key)

	orchestrator := scraper.NewOrchestrator(cfg, store, fetcher, notifier)
	orchestrator.SetSinks(sqliteStore, mirror, publisher)

	if *searchNow {
		log.Println("Running search...")
		res, err := orchestrator.RunAll(ctx)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		log.Printf("Search complete: %d targets (%d failed), %d vehicles, %d matching, %d new",
			res.Targets, res.TargetsFailed, res.Found, res.Accepted, len(res.New))
		for _, v := range res.New {
			log.Printf("  NEW: %s %s (%s)", v.Title, models.Deref(v.Price), v.Dealership)
		}
		return
	}

	sched := scheduler.New(cfg.Scheduler, orchestrator, sqliteStore)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	if cfg.Scheduler.Cron != "" {
		if runs, err := scheduler.NextRuns(cfg.Scheduler.Cron, time.Now(), 3); err == nil {
			for _, r := range runs {
				log.Printf("Next search: %s", r.Format("Mon Jan 2 15:04"))
			}
		}
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

func printStats(w io.Writer, store *ledger.Store) {
	stats := store.Stats()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Inventory Watch")
	t.AppendRows([]table.Row{
		{"Vehicles tracked", stats.TotalMatchesTracked},
		{"Total searches", stats.TotalSearches},
		{"Notifications sent", stats.NotificationsSent},
		{"No-matches notifications", stats.NoMatchesNotificationsSent},
		{"Last search", formatTime(stats.LastSearch)},
		{"Last no-matches notification", formatTime(stats.LastNoMatchesNotification)},
		{"Ledger file", fmt.Sprintf("%s (%d bytes)", store.Path(), stats.DataFileSize)},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	recent := store.RecentMatches(recentDays)
	if len(recent) == 0 {
		fmt.Fprintf(w, "\nNo matches in the last %d days\n", recentDays)
		return
	}

	r := table.NewWriter()
	r.SetOutputMirror(w)
	r.SetTitle(fmt.Sprintf("Matches in the last %d days", recentDays))
	r.AppendHeader(table.Row{"First seen", "Vehicle", "Price", "Dealership"})
	for _, e := range recent {
		r.AppendRow(table.Row{
			e.FirstSeen.Format("2006-01-02 15:04"),
			e.Title,
			models.Deref(e.Price),
			e.Dealership,
		})
	}
	r.SetStyle(table.StyleRounded)
	r.Render()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

// maskConnectionString hides the password in a DSN or proxy URL for logging.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
