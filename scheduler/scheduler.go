// Package scheduler decides which feeds to fetch and in what priority, and
// executes the fetches with bounded concurrency. Transient per-feed
// failures degrade gracefully; a streak of connection errors across the
// wave escalates into ErrNoConnection, distinguishing "a few feeds are
// broken" from "the network is down".
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/feedhaven/feedhaven/feedparse"
	"github.com/feedhaven/feedhaven/fetch"
	"github.com/feedhaven/feedhaven/staging"
)

// ErrNoConnection is the aggregate connectivity failure: enough fetches in
// a row failed at the network level that the network itself is presumed
// down.
var ErrNoConnection = errors.New("no connection")

// Status classifies the outcome of one completed fetch within a wave.
type Status string

const (
	StatusOK              Status = "ok"
	StatusParseError      Status = "parseError"
	StatusNotFound        Status = "404"
	StatusConnectionError Status = "connectionError"
)

// Progress reports one completed URL within a fetch wave.
type Progress struct {
	Completed int
	Total     int
	URL       string
	Status    Status
}

// Fetcher downloads one document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Digester applies a harvest to the article store.
type Digester interface {
	Digest(feedURL string, harvest []feedparse.RawArticle) error
}

// Catalog is the scheduler's view of the feed catalog.
type Catalog interface {
	FeedActivities() (map[string]int, error)
	SetAverageActivity(url string, hours int) error
	LastFeedsDownload() (time.Time, error)
	SetLastFeedsDownload(t time.Time) error
}

// Stager is the durable waiting room for background fetch results.
type Stager interface {
	StoreOne(url string, body []byte) error
	GetOne() (*staging.Entry, error)
}

// Config holds scheduler tuning knobs.
type Config struct {
	// SimultaneousTasks bounds in-flight fetches in a foreground wave.
	SimultaneousTasks int
	// BackgroundTasks bounds in-flight fetches in a background wave.
	BackgroundTasks int
	// TimeoutStreakLimit is the number of consecutive connection errors
	// that escalates into ErrNoConnection.
	TimeoutStreakLimit int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SimultaneousTasks:  5,
		BackgroundTasks:    3,
		TimeoutStreakLimit: 5,
	}
}

// Scheduler drives fetch waves against the catalog's feeds and digests the
// results into the article store.
type Scheduler struct {
	catalog    Catalog
	store      Digester
	fetcher    Fetcher
	stagingQ   Stager
	config     *Config
	onProgress func(Progress)
	working    atomic.Bool
}

// New creates a scheduler. onProgress may be nil; config nil means
// DefaultConfig.
func New(cat Catalog, store Digester, fetcher Fetcher, stagingQ Stager, config *Config, onProgress func(Progress)) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		catalog:    cat,
		store:      store,
		fetcher:    fetcher,
		stagingQ:   stagingQ,
		config:     config,
		onProgress: onProgress,
	}
}

// IsWorking reports whether a foreground download phase is in progress.
func (s *Scheduler) IsWorking() bool {
	return s.working.Load()
}

type fetchResult struct {
	url  string
	body []byte
	err  error
}

// fetchWave pops URLs off the work list LIFO, keeping up to concurrency
// fetches in flight. Each completed fetch is classified, handed to handle
// on success, and reported through progress. With escalate set, a streak of
// connection errors reaching the configured limit (or the whole wave)
// aborts with ErrNoConnection; in-flight fetches are not cancelled, the
// wave just stops issuing new ones.
func (s *Scheduler) fetchWave(
	ctx context.Context,
	urls []string,
	concurrency int,
	escalate bool,
	handle func(url string, body []byte) Status,
	progress func(Progress),
) error {
	total := len(urls)
	if total == 0 {
		return nil
	}

	queue := make([]string, total)
	copy(queue, urls)

	// Buffered so in-flight fetches can always deliver their result, even
	// after an abort has been returned.
	results := make(chan fetchResult, total)

	launch := func() {
		url := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		go func() {
			body, err := s.fetcher.Fetch(ctx, url)
			results <- fetchResult{url: url, body: body, err: err}
		}()
	}

	inFlight := 0
	for inFlight < concurrency && len(queue) > 0 {
		launch()
		inFlight++
	}

	completed := 0
	timeoutsInARow := 0
	for completed < total {
		result := <-results
		completed++
		inFlight--

		var status Status
		switch {
		case result.err == nil:
			timeoutsInARow = 0
			status = handle(result.url, result.body)
		case errors.Is(result.err, fetch.ErrNotFound):
			// An explicit 404 is the feed's problem, not the network's; it
			// neither extends nor resets the streak.
			status = StatusNotFound
		default:
			timeoutsInARow++
			status = StatusConnectionError
		}

		if progress != nil {
			progress(Progress{
				Completed: completed,
				Total:     total,
				URL:       result.url,
				Status:    status,
			})
		}

		if escalate && (timeoutsInARow >= s.config.TimeoutStreakLimit || timeoutsInARow == total) {
			return ErrNoConnection
		}

		if len(queue) > 0 && inFlight < concurrency {
			launch()
			inFlight++
		}
	}

	return nil
}

// FetchFeeds fetches the given URLs with foreground concurrency, digesting
// each successful fetch into the article store. Returns ErrNoConnection
// when the connection-error streak escalates; individual parse failures and
// 404s are reported as progress and otherwise swallowed.
func (s *Scheduler) FetchFeeds(ctx context.Context, urls []string) error {
	return s.fetchWave(ctx, urls, s.config.SimultaneousTasks, true, s.digestBody, s.onProgress)
}

// FetchFeedsBackground fetches the given URLs with reduced concurrency and
// no escalation, writing each successful fetch into the staging queue for
// later digestion instead of digesting it immediately.
func (s *Scheduler) FetchFeedsBackground(ctx context.Context, urls []string) error {
	return s.fetchWave(ctx, urls, s.config.BackgroundTasks, false, s.stageBody, s.onProgress)
}

// digestBody parses a fetched body and digests it, writing the feed's
// refreshed activity estimate back to the catalog.
func (s *Scheduler) digestBody(url string, body []byte) Status {
	doc, err := feedparse.Parse(body)
	if err != nil {
		return StatusParseError
	}

	if err := s.store.Digest(url, doc.Articles); err != nil {
		log.Printf("WARN: Failed to digest %s: %v", url, err)
	}

	hours := AverageActivity(pubDates(doc.Articles), time.Now())
	if err := s.catalog.SetAverageActivity(url, hours); err != nil {
		log.Printf("WARN: Failed to update activity for %s: %v", url, err)
	}

	return StatusOK
}

// stageBody stores a fetched body in the staging queue.
func (s *Scheduler) stageBody(url string, body []byte) Status {
	if err := s.stagingQ.StoreOne(url, body); err != nil {
		log.Printf("WARN: Failed to stage %s: %v", url, err)
	}
	return StatusOK
}

// pubDates extracts the publish dates of a harvest in feed order.
func pubDates(articles []feedparse.RawArticle) []*time.Time {
	dates := make([]*time.Time, len(articles))
	for i, article := range articles {
		dates[i] = article.PubDate
	}
	return dates
}
