package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/feedhaven/feedhaven/catalog"
	"github.com/feedhaven/feedhaven/scheduler"
)

func handleDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show per-feed fetch progress")
	fs.Parse(args)

	a := mustOpenApp(*verbose)
	defer a.Close()

	// Unread totals are recomputed whenever the subscription set changes.
	a.catalog.Subscribe(func(event catalog.Event) {
		logUnreadTotal(a, event)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDownload := func() {
		if a.sched.IsWorking() {
			log.Println("INFO: Skipping download, previous run still in progress")
			return
		}

		background, err := a.sched.Download(ctx)
		if err != nil {
			if errors.Is(err, scheduler.ErrNoConnection) {
				log.Println("WARN: No connection")
			} else {
				log.Printf("ERROR: Download failed: %v", err)
			}
			return
		}

		go func() {
			if err := background.Run(ctx); err != nil {
				log.Printf("WARN: Background fetch failed: %v", err)
			}
		}()
	}

	c := cron.New()
	if _, err := c.AddFunc(a.cfg.Download.Schedule, runDownload); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid download schedule %q: %v\n", a.cfg.Download.Schedule, err)
		os.Exit(1)
	}

	if a.cfg.Retention.Days > 0 {
		days := a.cfg.Retention.Days
		keepTagged := a.cfg.Retention.KeepTagged
		if _, err := c.AddFunc("@daily", func() {
			cutoff := time.Now().AddDate(0, 0, -days)
			if err := a.store.RemoveOlderThan(cutoff, keepTagged); err != nil {
				log.Printf("ERROR: Retention sweep failed: %v", err)
			}
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to schedule retention sweep: %v\n", err)
			os.Exit(1)
		}
	}

	log.Println("Daemon starting")

	// Download immediately on startup, then on the configured schedule.
	runDownload()
	c.Start()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Println("Daemon stopping")
	cancel()
	cronCtx := c.Stop()
	<-cronCtx.Done()
}

// logUnreadTotal recomputes and logs the total unread count after a catalog
// change.
func logUnreadTotal(a *app, event catalog.Event) {
	feeds, err := a.catalog.Feeds()
	if err != nil {
		log.Printf("WARN: Failed to list feeds after catalog change: %v", err)
		return
	}

	total := 0
	for _, feed := range feeds {
		unread, err := a.store.CountUnread(feed.URL)
		if err != nil {
			log.Printf("WARN: Failed to count unread for %s: %v", feed.URL, err)
			continue
		}
		total += unread
	}

	log.Printf("INFO: Catalog changed (%s), %d unread across %d feeds",
		event.FeedURL, total, len(feeds))
}
