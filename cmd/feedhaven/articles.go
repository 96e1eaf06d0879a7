package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/feedhaven/feedhaven/article"
)

func handleArticles(args []string) {
	fs := flag.NewFlagSet("articles", flag.ExitOnError)
	feedURL := fs.String("feed", "", "Restrict to one feed URL (default: all feeds)")
	tagIDStr := fs.String("tag", "", "Restrict to articles carrying this tag ID")
	from := fs.Int("from", 0, "Start index of the page")
	limit := fs.Int("limit", 20, "Page size")
	fs.Parse(args)

	a := mustOpenApp(false)
	defer a.Close()

	var feedURLs []string
	if *feedURL != "" {
		feedURLs = []string{*feedURL}
	} else {
		feeds, err := a.catalog.Feeds()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list feeds: %v\n", err)
			os.Exit(1)
		}
		for _, feed := range feeds {
			feedURLs = append(feedURLs, feed.URL)
		}
	}

	var opts *article.QueryOptions
	if *tagIDStr != "" {
		tagID, err := uuid.Parse(*tagIDStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid tag ID: %v\n", err)
			os.Exit(1)
		}
		opts = &article.QueryOptions{TagID: tagID}
	}

	page, err := a.store.GetArticles(feedURLs, *from, *from+*limit, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list articles: %v\n", err)
		os.Exit(1)
	}

	if page.NumAll == 0 {
		fmt.Println("No articles.")
		return
	}

	fmt.Printf("Articles %d-%d of %d (%d unread before, %d unread after)\n\n",
		*from, *from+len(page.Articles), page.NumAll, page.UnreadBefore, page.UnreadAfter)

	for _, art := range page.Articles {
		marker := " "
		if !art.IsRead {
			marker = "*"
		}
		published := time.UnixMilli(art.PubTime).Format("2006-01-02 15:04")
		fmt.Printf("%s %s  %s\n", marker, published, art.Title)
		fmt.Printf("    %s\n", art.Link)
		fmt.Printf("    guid: %s\n", art.GUID)
		if art.IsAbandoned {
			fmt.Println("    (no longer in feed)")
		}
	}
}

func handleRead(args []string, markRead bool) {
	name := "read"
	if !markRead {
		name = "unread"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	all := fs.String("all-for-feed", "", "Mark every article of this feed as read")
	fs.Parse(args)

	a := mustOpenApp(false)
	defer a.Close()

	if *all != "" {
		if !markRead {
			fmt.Fprintln(os.Stderr, "Error: -all-for-feed only supports marking as read")
			os.Exit(1)
		}
		if err := a.store.MarkAllRead([]string{*all}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to mark all as read: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Marked all articles of %s as read\n", *all)
		return
	}

	if len(fs.Args()) < 1 {
		fmt.Fprintf(os.Stderr, "Error: %s requires an article guid\n", name)
		os.Exit(1)
	}

	guid := fs.Args()[0]
	if err := a.store.SetReadState(guid, markRead); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to update read state: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Marked %s as %s\n", guid, name)
}

func handleTag(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, `Usage: feedhaven tag <subcommand>

Subcommands:
  list                       List tags
  add <name>                 Create a tag (returns the existing one if present)
  rename <id> <name>         Rename a tag
  remove <id>                Delete a tag and detach it everywhere
  attach <guid> <id>         Tag an article
  detach <guid> <id>         Untag an article`)
		os.Exit(1)
	}

	a := mustOpenApp(false)
	defer a.Close()

	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		tags, err := a.store.Tags()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list tags: %v\n", err)
			os.Exit(1)
		}
		for _, tag := range tags {
			fmt.Printf("%s  %s\n", tag.ID, tag.Name)
		}
	case "add":
		requireArgs(rest, 1, "tag add <name>")
		tag, err := a.store.AddTag(rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to add tag: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s  %s\n", tag.ID, tag.Name)
	case "rename":
		requireArgs(rest, 2, "tag rename <id> <name>")
		if err := a.store.ChangeTagName(parseTagID(rest[0]), rest[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to rename tag: %v\n", err)
			os.Exit(1)
		}
	case "remove":
		requireArgs(rest, 1, "tag remove <id>")
		if err := a.store.RemoveTag(parseTagID(rest[0])); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to remove tag: %v\n", err)
			os.Exit(1)
		}
	case "attach":
		requireArgs(rest, 2, "tag attach <guid> <id>")
		if err := a.store.TagArticle(rest[0], parseTagID(rest[1])); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to tag article: %v\n", err)
			os.Exit(1)
		}
	case "detach":
		requireArgs(rest, 2, "tag detach <guid> <id>")
		if err := a.store.UntagArticle(rest[0], parseTagID(rest[1])); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to untag article: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown tag subcommand %q\n", sub)
		os.Exit(1)
	}
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "Usage: feedhaven %s\n", usage)
		os.Exit(1)
	}
}

func parseTagID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid tag ID: %v\n", err)
		os.Exit(1)
	}
	return id
}
