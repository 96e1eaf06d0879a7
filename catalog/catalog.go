// Package catalog manages the set of subscribed feeds: their URLs (the
// primary key everything else hangs off), categories, and the cached
// average-activity scalar the fetch scheduler reads and writes. Subscribers
// are notified whenever the feed set changes.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrFeedNotFound indicates an operation referenced an unknown feed URL.
var ErrFeedNotFound = errors.New("feed not found")

// Feed is one subscribed feed.
type Feed struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	SiteURL  string `json:"site_url"`
	Category string `json:"category"`
	// AverageActivity is the estimated number of hours between the feed's
	// successive publications. Zero means very active or unknown. Written
	// back by the scheduler after each successful harvest.
	AverageActivity int `json:"average_activity"`
}

// EventType classifies a catalog change notification.
type EventType int

const (
	// FeedAdded fires when a new feed joins the catalog.
	FeedAdded EventType = iota
	// FeedRemoved fires when a feed is removed.
	FeedRemoved
	// FeedChanged fires when a feed's stored fields change.
	FeedChanged
)

// Event is a typed catalog change notification.
type Event struct {
	Type    EventType
	FeedURL string
}

// Catalog is a SQLite-backed feed catalog.
type Catalog struct {
	db *sql.DB

	mu          sync.Mutex
	subscribers []func(Event)
}

// New opens (creating if necessary) the catalog database at dbPath.
func New(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return c, nil
}

// initSchema creates the catalog tables if they don't exist.
func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		site_url TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		average_activity INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := c.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Subscribe registers a callback invoked synchronously for every catalog
// change event.
func (c *Catalog) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// notify delivers an event to every subscriber.
func (c *Catalog) notify(event Event) {
	c.mu.Lock()
	subscribers := make([]func(Event), len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(event)
	}
}

// AddFeed stores a new feed and notifies subscribers.
func (c *Catalog) AddFeed(feed Feed) error {
	_, err := c.db.Exec(`
		INSERT INTO feeds (url, title, site_url, category, average_activity)
		VALUES (?, ?, ?, ?, ?)
	`, feed.URL, feed.Title, feed.SiteURL, feed.Category, feed.AverageActivity)
	if err != nil {
		return fmt.Errorf("failed to insert feed: %w", err)
	}

	c.notify(Event{Type: FeedAdded, FeedURL: feed.URL})
	return nil
}

// RemoveFeed deletes a feed and notifies subscribers. The caller is
// responsible for cascading the article deletion.
func (c *Catalog) RemoveFeed(url string) error {
	result, err := c.db.Exec("DELETE FROM feeds WHERE url = ?", url)
	if err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFeedNotFound
	}

	c.notify(Event{Type: FeedRemoved, FeedURL: url})
	return nil
}

// GetFeed retrieves a feed by URL.
func (c *Catalog) GetFeed(url string) (*Feed, error) {
	var feed Feed
	err := c.db.QueryRow(`
		SELECT url, title, site_url, category, average_activity
		FROM feeds WHERE url = ?
	`, url).Scan(&feed.URL, &feed.Title, &feed.SiteURL, &feed.Category, &feed.AverageActivity)
	if err == sql.ErrNoRows {
		return nil, ErrFeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	return &feed, nil
}

// Feeds lists all subscribed feeds ordered by category then title.
func (c *Catalog) Feeds() ([]Feed, error) {
	rows, err := c.db.Query(`
		SELECT url, title, site_url, category, average_activity
		FROM feeds ORDER BY category, title
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var feed Feed
		if err := rows.Scan(&feed.URL, &feed.Title, &feed.SiteURL, &feed.Category, &feed.AverageActivity); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// FeedActivities returns the average-activity scalar for every feed, keyed
// by feed URL. This is the scheduler's input for basket computation.
func (c *Catalog) FeedActivities() (map[string]int, error) {
	rows, err := c.db.Query("SELECT url, average_activity FROM feeds")
	if err != nil {
		return nil, fmt.Errorf("failed to query feed activities: %w", err)
	}
	defer rows.Close()

	activities := make(map[string]int)
	for rows.Next() {
		var url string
		var activity int
		if err := rows.Scan(&url, &activity); err != nil {
			return nil, fmt.Errorf("failed to scan feed activity: %w", err)
		}
		activities[url] = activity
	}
	return activities, rows.Err()
}

// SetAverageActivity writes back the scheduler's activity estimate for a
// feed. Unknown URLs are ignored (the feed may have been removed while a
// harvest was in flight).
func (c *Catalog) SetAverageActivity(url string, hours int) error {
	_, err := c.db.Exec("UPDATE feeds SET average_activity = ? WHERE url = ?", hours, url)
	if err != nil {
		return fmt.Errorf("failed to update average activity: %w", err)
	}
	return nil
}

// UpdateFeed updates a feed's title, site URL, and category, then notifies
// subscribers.
func (c *Catalog) UpdateFeed(feed Feed) error {
	result, err := c.db.Exec(`
		UPDATE feeds SET title = ?, site_url = ?, category = ? WHERE url = ?
	`, feed.Title, feed.SiteURL, feed.Category, feed.URL)
	if err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrFeedNotFound
	}

	c.notify(Event{Type: FeedChanged, FeedURL: feed.URL})
	return nil
}

const lastDownloadKey = "last_feeds_download"

// LastFeedsDownload returns the time of the last successful full download,
// or the zero time when none is recorded.
func (c *Catalog) LastFeedsDownload() (time.Time, error) {
	var value string
	err := c.db.QueryRow("SELECT value FROM state WHERE key = ?", lastDownloadKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last download time: %w", err)
	}

	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last download time: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// SetLastFeedsDownload records the time of the latest download run.
func (c *Catalog) SetLastFeedsDownload(t time.Time) error {
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)",
		lastDownloadKey, strconv.FormatInt(t.UnixMilli(), 10),
	)
	if err != nil {
		return fmt.Errorf("failed to store last download time: %w", err)
	}
	return nil
}
