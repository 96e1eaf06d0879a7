package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/feedhaven/feedhaven/catalog"
	"github.com/feedhaven/feedhaven/discovery"
	"github.com/feedhaven/feedhaven/fetch"
)

func handleAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	category := fs.String("category", "", "Category for the new feed")
	fs.Parse(args)

	if len(fs.Args()) < 1 {
		fmt.Fprintln(os.Stderr, "Error: add requires a URL")
		os.Exit(1)
	}
	seedURL := fs.Args()[0]

	a := mustOpenApp(false)
	defer a.Close()

	// Discovery uses the longer one-off timeout rather than the batch one.
	client := fetch.New(fetch.Config{
		Timeout:   fetch.DefaultTimeout,
		UserAgent: a.cfg.UserAgent,
	})
	disc := discovery.New(client)

	fmt.Printf("Discovering feed for %s...\n", seedURL)
	feedURL, doc, err := disc.Discover(context.Background(), seedURL)
	if err != nil {
		switch {
		case errors.Is(err, discovery.ErrNoFeedFound):
			fmt.Fprintln(os.Stderr, "Error: no feed found at that address")
		case errors.Is(err, fetch.ErrNotFound), errors.Is(err, fetch.ErrHostNotFound):
			fmt.Fprintln(os.Stderr, "Error: that address does not exist")
		default:
			fmt.Fprintf(os.Stderr, "Error: discovery failed: %v\n", err)
		}
		os.Exit(1)
	}

	feed := catalog.Feed{
		URL:      feedURL,
		Title:    doc.Meta.Title,
		SiteURL:  doc.Meta.Link,
		Category: *category,
	}
	if err := a.catalog.AddFeed(feed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to add feed: %v\n", err)
		os.Exit(1)
	}

	// Digest the articles discovery already fetched, so the feed is not
	// empty until the next download cycle.
	if len(doc.Articles) > 0 {
		if err := a.store.Digest(feedURL, doc.Articles); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: initial digest failed: %v\n", err)
		}
	}

	fmt.Printf("Subscribed to %s (%s)\n", feed.Title, feedURL)
}

func handleRemove(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	fs.Parse(args)

	if len(fs.Args()) < 1 {
		fmt.Fprintln(os.Stderr, "Error: remove requires a feed URL")
		os.Exit(1)
	}
	feedURL := fs.Args()[0]

	a := mustOpenApp(false)
	defer a.Close()

	if err := a.catalog.RemoveFeed(feedURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to remove feed: %v\n", err)
		os.Exit(1)
	}
	// Removing a subscription cascades to its articles.
	if err := a.store.RemoveAllForFeed(feedURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to remove articles: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Unsubscribed from %s\n", feedURL)
}

func handleFeeds(args []string) {
	fs := flag.NewFlagSet("feeds", flag.ExitOnError)
	fs.Parse(args)

	a := mustOpenApp(false)
	defer a.Close()

	feeds, err := a.catalog.Feeds()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list feeds: %v\n", err)
		os.Exit(1)
	}

	if len(feeds) == 0 {
		fmt.Println("No subscriptions. Use 'feedhaven add <url>' to subscribe.")
		return
	}

	for _, feed := range feeds {
		unread, err := a.store.CountUnread(feed.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to count unread: %v\n", err)
			os.Exit(1)
		}

		title := feed.Title
		if title == "" {
			title = "(untitled)"
		}
		if feed.Category != "" {
			fmt.Printf("[%s] ", feed.Category)
		}
		fmt.Printf("%s (%d unread)\n    %s\n", title, unread, feed.URL)
	}
}
