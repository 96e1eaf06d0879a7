package article

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/feedhaven/feedhaven/feedparse"
)

// Store persists articles and tags in SQLite. Digestion is serialized
// through a single worker goroutine: at most one digest runs at a time, and
// queued digests apply in the order they were issued. Read queries are not
// serialized against digests.
type Store struct {
	db      *sql.DB
	digests chan digestRequest
	quit    chan struct{}
	done    chan struct{}
}

type digestRequest struct {
	feedURL string
	harvest []feedparse.RawArticle
	reply   chan error
}

// NewStore opens (creating if necessary) the article database at dbPath and
// starts the digest worker.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:      db,
		digests: make(chan digestRequest),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go store.digestWorker()

	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		guid TEXT PRIMARY KEY,
		feed_url TEXT NOT NULL,
		link TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		pub_time INTEGER NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		is_abandoned INTEGER NOT NULL DEFAULT 0,
		enclosures TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_articles_feed_url ON articles(feed_url);

	CREATE TABLE IF NOT EXISTS tags (
		tag_id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS article_tags (
		guid TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		PRIMARY KEY (guid, tag_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close stops the digest worker and closes the database. Any digest queued
// after Close fails with ErrStoreClosed.
func (s *Store) Close() error {
	close(s.quit)
	<-s.done
	return s.db.Close()
}

// digestWorker applies queued digests one at a time, in arrival order.
func (s *Store) digestWorker() {
	defer close(s.done)
	for {
		select {
		case req := <-s.digests:
			req.reply <- s.applyDigest(req.feedURL, req.harvest)
		case <-s.quit:
			return
		}
	}
}

// Digest reconciles a harvest against the stored articles for feedURL:
// known GUIDs are refreshed in place, unknown ones inserted, and stored
// articles missing from the harvest marked abandoned. An empty harvest is
// rejected without touching the store. Concurrent calls queue up and apply
// strictly one after another.
func (s *Store) Digest(feedURL string, harvest []feedparse.RawArticle) error {
	if len(harvest) == 0 {
		return ErrEmptyHarvest
	}

	req := digestRequest{
		feedURL: feedURL,
		harvest: harvest,
		reply:   make(chan error, 1),
	}

	select {
	case s.digests <- req:
		return <-req.reply
	case <-s.quit:
		return ErrStoreClosed
	}
}

// candidate is the working-set view of a stored article during
// reconciliation.
type candidate struct {
	feedURL     string
	title       string
	content     string
	isAbandoned bool
}

// applyDigest runs the reconciliation algorithm for one harvest inside a
// transaction. Matching is purely by GUID; a changed link on an existing
// GUID is not persisted.
func (s *Store) applyDigest(feedURL string, harvest []feedparse.RawArticle) error {
	now := time.Now().UnixMilli()

	// GUID falls back to the link for feeds that don't provide one.
	guids := make([]string, len(harvest))
	for i, raw := range harvest {
		guids[i] = raw.GUID
		if guids[i] == "" {
			guids[i] = raw.Link
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pending, err := loadCandidates(tx, feedURL, guids)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(harvest))
	for i, raw := range harvest {
		guid := guids[i]
		if guid == "" || seen[guid] {
			continue
		}
		seen[guid] = true

		existing, ok := pending[guid]
		if ok {
			delete(pending, guid)

			if existing.title != raw.Title || existing.content != raw.Description {
				if _, err := tx.Exec(
					"UPDATE articles SET title = ?, content = ? WHERE guid = ?",
					raw.Title, raw.Description, guid,
				); err != nil {
					return fmt.Errorf("failed to update article: %w", err)
				}
			}

			// The article is present in the harvest again, so it is no
			// longer abandoned.
			if existing.isAbandoned {
				if _, err := tx.Exec(
					"UPDATE articles SET is_abandoned = 0 WHERE guid = ?", guid,
				); err != nil {
					return fmt.Errorf("failed to clear abandonment: %w", err)
				}
			}
			continue
		}

		if err := insertArticle(tx, feedURL, guid, raw, now); err != nil {
			return err
		}
	}

	// Whatever is left existed for this feed but was absent from this
	// harvest.
	for guid, existing := range pending {
		if existing.feedURL != feedURL || existing.isAbandoned {
			continue
		}
		if _, err := tx.Exec(
			"UPDATE articles SET is_abandoned = 1 WHERE guid = ?", guid,
		); err != nil {
			return fmt.Errorf("failed to mark article abandoned: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit digest: %w", err)
	}
	return nil
}

// loadCandidates loads the reconciliation working set: every live article of
// the feed, plus any article (abandoned or not, any feed) whose GUID appears
// in the harvest. The second clause is what lets a previously-abandoned
// article be found again by GUID and merged instead of duplicated.
func loadCandidates(tx *sql.Tx, feedURL string, guids []string) (map[string]candidate, error) {
	query := fmt.Sprintf(`
		SELECT guid, feed_url, title, content, is_abandoned
		FROM articles
		WHERE (feed_url = ? AND is_abandoned = 0) OR guid IN (%s)
	`, placeholders(len(guids)))

	args := make([]any, 0, len(guids)+1)
	args = append(args, feedURL)
	for _, guid := range guids {
		args = append(args, guid)
	}

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	defer rows.Close()

	pending := make(map[string]candidate)
	for rows.Next() {
		var guid string
		var c candidate
		if err := rows.Scan(&guid, &c.feedURL, &c.title, &c.content, &c.isAbandoned); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		pending[guid] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	return pending, nil
}

// insertArticle stores a newly observed article. The publish time falls back
// to the current wall clock when the feed gave no date, and only audio
// enclosures are kept.
func insertArticle(tx *sql.Tx, feedURL, guid string, raw feedparse.RawArticle, now int64) error {
	pubTime := now
	if raw.PubDate != nil {
		pubTime = raw.PubDate.UnixMilli()
	}

	var enclosuresJSON sql.NullString
	if audio := audioEnclosures(raw.Enclosures); len(audio) > 0 {
		data, err := json.Marshal(audio)
		if err != nil {
			return fmt.Errorf("failed to marshal enclosures: %w", err)
		}
		enclosuresJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := tx.Exec(`
		INSERT INTO articles (guid, feed_url, link, title, content, pub_time, is_read, is_abandoned, enclosures)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)
	`, guid, feedURL, raw.Link, raw.Title, raw.Description, pubTime, enclosuresJSON)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// audioEnclosures filters a harvest's enclosures down to audio/mpeg ones
// with a URL present.
func audioEnclosures(enclosures []feedparse.Enclosure) []Enclosure {
	var audio []Enclosure
	for _, enc := range enclosures {
		if enc.Type == "audio/mpeg" && enc.URL != "" {
			audio = append(audio, Enclosure{URL: enc.URL, Type: enc.Type})
		}
	}
	return audio
}

// placeholders builds a comma-separated list of n SQL placeholders.
func placeholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
