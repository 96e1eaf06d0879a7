// Command feedhaven is a desktop RSS/Atom reader core: it subscribes to
// feeds, periodically downloads and digests them into a local article
// store, and answers paginated queries with unread bookkeeping.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/feedhaven/feedhaven/article"
	"github.com/feedhaven/feedhaven/catalog"
	"github.com/feedhaven/feedhaven/config"
	"github.com/feedhaven/feedhaven/fetch"
	"github.com/feedhaven/feedhaven/scheduler"
	"github.com/feedhaven/feedhaven/staging"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "add":
		handleAdd(args)
	case "remove":
		handleRemove(args)
	case "feeds":
		handleFeeds(args)
	case "articles":
		handleArticles(args)
	case "read":
		handleRead(args, true)
	case "unread":
		handleRead(args, false)
	case "tag":
		handleTag(args)
	case "sync":
		handleSync(args)
	case "daemon":
		handleDaemon(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: feedhaven <command> [options]

Commands:
  add <url>        Discover and subscribe to a feed
  remove <url>     Unsubscribe from a feed and delete its articles
  feeds            List subscribed feeds
  articles         List articles (paginated, filtered)
  read <guid>      Mark an article as read
  unread <guid>    Mark an article as unread
  tag              Manage tags (add, rename, remove, attach, detach)
  sync             Run one download cycle now
  daemon           Run the periodic download daemon
  help             Show this help

Environment:
  FEEDHAVEN_DATA_DIR   Data directory (default ~/.feedhaven)
  FEEDHAVEN_CONFIG     Config file path (default ~/.feedhaven/config.yaml)`)
}

// app bundles the wired-up application components shared by every command.
type app struct {
	cfg      *config.FileConfig
	catalog  *catalog.Catalog
	store    *article.Store
	stagingQ *staging.Queue
	sched    *scheduler.Scheduler
	client   *fetch.Client
}

// openApp loads the configuration and opens every store. verbose controls
// whether fetch progress is printed per URL.
func openApp(verbose bool) (*app, error) {
	var cfg *config.FileConfig
	var err error
	if configPath := os.Getenv("FEEDHAVEN_CONFIG"); configPath != "" {
		cfg, err = config.LoadConfigPath(configPath)
	} else {
		cfg, err = config.LoadConfigFile()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := getEnv("FEEDHAVEN_DATA_DIR", cfg.DataDir)
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".feedhaven")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cat, err := catalog.New(filepath.Join(dataDir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	store, err := article.NewStore(filepath.Join(dataDir, "articles.db"))
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("failed to open article store: %w", err)
	}

	var limiter *fetch.HostLimiter
	if cfg.Download.HostRequestsPerSecond > 0 {
		limiter = fetch.NewHostLimiter(cfg.Download.HostRequestsPerSecond, 1)
	}
	client := fetch.New(fetch.Config{
		Timeout:   cfg.FetchTimeout(fetch.BatchTimeout),
		UserAgent: cfg.UserAgent,
		Limiter:   limiter,
	})

	stagingQ := staging.New(filepath.Join(dataDir, "staging"))

	var onProgress func(scheduler.Progress)
	if verbose {
		onProgress = func(p scheduler.Progress) {
			fmt.Printf("  [%d/%d] %s: %s\n", p.Completed, p.Total, p.Status, p.URL)
		}
	}

	sched := scheduler.New(cat, store, client, stagingQ, nil, onProgress)

	return &app{
		cfg:      cfg,
		catalog:  cat,
		store:    store,
		stagingQ: stagingQ,
		sched:    sched,
		client:   client,
	}, nil
}

// Close releases the application's stores.
func (a *app) Close() {
	a.store.Close()
	a.catalog.Close()
}

// mustOpenApp opens the app or exits with an error message.
func mustOpenApp(verbose bool) *app {
	a, err := openApp(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}
