package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/feedhaven/feedhaven/scheduler"
)

func handleSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show per-feed fetch progress")
	foregroundOnly := fs.Bool("foreground-only", false, "Skip the low-priority background fetch")
	fs.Parse(args)

	a := mustOpenApp(*verbose)
	defer a.Close()

	fmt.Println("Downloading feeds...")

	ctx := context.Background()
	background, err := a.sched.Download(ctx)
	if err != nil {
		if errors.Is(err, scheduler.ErrNoConnection) {
			fmt.Fprintln(os.Stderr, "No connection. Showing cached articles only.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: download failed: %v\n", err)
		}
		os.Exit(1)
	}

	if !*foregroundOnly {
		// One-shot invocation: run the background phase to completion so
		// low-priority bodies are staged for the next digest.
		if err := background.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: background fetch failed: %v\n", err)
		}
	}

	fmt.Println("Done.")
}
