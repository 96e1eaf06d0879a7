package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedhaven/feedhaven/staging"
)

// Background represents the deferred low-priority phase of a download run.
// The caller decides when (and whether) to run it.
type Background struct {
	run func(ctx context.Context) error
}

// Run executes the background fetch, writing results into the staging
// queue.
func (b *Background) Run(ctx context.Context) error {
	return b.run(ctx)
}

// Download runs one full download cycle:
//
//  1. Partition the catalog's feeds into priority baskets.
//  2. Record the download time immediately, so baskets recompute sanely
//     even if this run is interrupted.
//  3. Concurrently drain leftover staged bodies from a previous run and
//     fetch the high-priority basket.
//  4. Demote URLs that failed with a connection error into the
//     low-priority basket for background retry.
//
// On success the returned Background runs the low-priority fetch, staging
// results instead of digesting them. IsWorking is true only for the
// foreground phase. ErrNoConnection is the primary failure.
func (s *Scheduler) Download(ctx context.Context) (*Background, error) {
	s.working.Store(true)
	defer s.working.Store(false)

	activities, err := s.catalog.FeedActivities()
	if err != nil {
		return nil, err
	}
	lastDownload, err := s.catalog.LastFeedsDownload()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	baskets := ActivityBaskets(activities, lastDownload, now)

	if err := s.catalog.SetLastFeedsDownload(now); err != nil {
		log.Printf("WARN: Failed to record download time: %v", err)
	}

	// Connection-error URLs from the foreground wave get a second chance in
	// the background basket.
	var mu sync.Mutex
	lo := append([]string(nil), baskets.Lo...)
	progress := func(p Progress) {
		if p.Status == StatusConnectionError {
			mu.Lock()
			lo = append(lo, p.URL)
			mu.Unlock()
		}
		if s.onProgress != nil {
			s.onProgress(p)
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		s.drainStaging(ctx)
		return nil
	})
	g.Go(func() error {
		return s.fetchWave(ctx, baskets.Hi, s.config.SimultaneousTasks, true, s.digestBody, progress)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mu.Lock()
	background := append([]string(nil), lo...)
	mu.Unlock()

	return &Background{
		run: func(ctx context.Context) error {
			return s.fetchWave(ctx, background, s.config.BackgroundTasks, false, s.stageBody, s.onProgress)
		},
	}, nil
}

// drainStaging digests everything left in the staging queue from earlier
// runs. Failures are logged and the drain moves on; a stale staged body is
// never worth failing a download over.
func (s *Scheduler) drainStaging(ctx context.Context) {
	if s.stagingQ == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := s.stagingQ.GetOne()
		if errors.Is(err, staging.ErrEmpty) {
			return
		}
		if err != nil {
			log.Printf("WARN: Failed to read staging queue: %v", err)
			return
		}

		if status := s.digestBody(entry.URL, entry.Body); status == StatusParseError {
			log.Printf("WARN: Discarded unparseable staged body for %s", entry.URL)
		}
	}
}
