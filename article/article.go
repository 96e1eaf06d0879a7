// Package article owns the persistent article collection: reconciling
// harvested feed entries against stored records, tracking read and
// abandonment state, tagging, and paginated retrieval with unread
// accounting. Articles are stored in SQLite and addressed by GUID, which is
// unique across the whole store.
package article

import (
	"errors"

	"github.com/google/uuid"
)

// Custom errors for store operations.
var (
	// ErrEmptyHarvest rejects a digest with no articles. A transient empty
	// parse must not wipe out abandonment tracking for a feed.
	ErrEmptyHarvest = errors.New("harvest contains no articles")
	// ErrStoreClosed is returned by operations issued after Close.
	ErrStoreClosed = errors.New("article store is closed")
	// ErrTagNotFound indicates an operation referenced an unknown tag.
	ErrTagNotFound = errors.New("tag not found")
)

// Article is one stored article record.
type Article struct {
	// GUID is the article's stable identity: the feed-provided GUID, or
	// the link when the feed gave none. Never changes once stored.
	GUID string `json:"guid"`
	// FeedURL identifies the owning feed.
	FeedURL string `json:"feed_url"`
	Link    string `json:"link"`
	Title   string `json:"title"`
	Content string `json:"content"`
	// PubTime is the publish time in Unix milliseconds. When the feed gave
	// no date it is the wall-clock time of first observation and is never
	// recomputed, so sort order stays stable across runs.
	PubTime int64 `json:"pub_time"`
	IsRead  bool  `json:"is_read"`
	// IsAbandoned marks an article that no longer appears in its feed's
	// latest harvest. Cleared again if the same GUID reappears.
	IsAbandoned bool        `json:"is_abandoned"`
	Tags        []uuid.UUID `json:"tags,omitempty"`
	Enclosures  []Enclosure `json:"enclosures,omitempty"`
}

// Enclosure is an audio enclosure attached to an article. Only audio/mpeg
// enclosures survive ingestion; everything else is dropped.
type Enclosure struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Tag is a user-defined label that can be attached to any article.
type Tag struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Page is one slice of a filtered, newest-first article listing, together
// with unread bookkeeping over the whole filtered result so the UI can say
// "N unread above/below" without a second query.
type Page struct {
	Articles []Article
	// NumAll is the size of the full filtered result, not the page.
	NumAll int
	// UnreadBefore counts unread articles at indexes before the page.
	UnreadBefore int
	// UnreadAfter counts unread articles at indexes at or past the page end.
	UnreadAfter int
}

// QueryOptions narrows a GetArticles listing. The zero value applies no
// extra filtering.
type QueryOptions struct {
	// TagID, when not uuid.Nil, restricts the listing to articles carrying
	// that tag.
	TagID uuid.UUID
}
