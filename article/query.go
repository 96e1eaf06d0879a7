package article

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetArticles returns the [from, to) page of the articles belonging to the
// given feeds, sorted newest-first by publish time (GUID breaks ties so the
// order is deterministic). Unread counts cover the full filtered result:
// articles before the page and at or past its end, so a page in the middle
// of a listing knows how much unread material surrounds it.
func (s *Store) GetArticles(feedURLs []string, from, to int, opts *QueryOptions) (*Page, error) {
	if len(feedURLs) == 0 {
		return &Page{Articles: []Article{}}, nil
	}

	query := fmt.Sprintf(`
		SELECT a.guid, a.feed_url, a.link, a.title, a.content, a.pub_time, a.is_read, a.is_abandoned, a.enclosures
		FROM articles a
		WHERE a.feed_url IN (%s)
	`, placeholders(len(feedURLs)))

	args := make([]any, 0, len(feedURLs)+1)
	for _, url := range feedURLs {
		args = append(args, url)
	}

	if opts != nil && opts.TagID != uuid.Nil {
		query += " AND a.guid IN (SELECT guid FROM article_tags WHERE tag_id = ?)"
		args = append(args, opts.TagID.String())
	}

	query += " ORDER BY a.pub_time DESC, a.guid DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var all []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	page := &Page{NumAll: len(all)}
	for i, a := range all {
		if a.IsRead {
			continue
		}
		if i < from {
			page.UnreadBefore++
		} else if i >= to {
			page.UnreadAfter++
		}
	}

	start := clamp(from, 0, len(all))
	end := clamp(to, start, len(all))
	page.Articles = all[start:end]

	if err := s.attachTags(page.Articles); err != nil {
		return nil, err
	}

	return page, nil
}

// attachTags fills in the Tags field for each article on a page.
func (s *Store) attachTags(articles []Article) error {
	if len(articles) == 0 {
		return nil
	}

	guids := make([]any, len(articles))
	index := make(map[string]*Article, len(articles))
	for i := range articles {
		guids[i] = articles[i].GUID
		index[articles[i].GUID] = &articles[i]
	}

	query := fmt.Sprintf(
		"SELECT guid, tag_id FROM article_tags WHERE guid IN (%s)",
		placeholders(len(guids)),
	)
	rows, err := s.db.Query(query, guids...)
	if err != nil {
		return fmt.Errorf("failed to query article tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guid, tagIDStr string
		if err := rows.Scan(&guid, &tagIDStr); err != nil {
			return fmt.Errorf("failed to scan article tag: %w", err)
		}
		tagID, err := uuid.Parse(tagIDStr)
		if err != nil {
			return fmt.Errorf("failed to parse tag id: %w", err)
		}
		if article, ok := index[guid]; ok {
			article.Tags = append(article.Tags, tagID)
		}
	}
	return rows.Err()
}

// scanArticle reads one article row, decoding the optional enclosure JSON.
func scanArticle(rows *sql.Rows) (*Article, error) {
	var article Article
	var enclosuresJSON sql.NullString

	err := rows.Scan(
		&article.GUID, &article.FeedURL, &article.Link, &article.Title,
		&article.Content, &article.PubTime, &article.IsRead,
		&article.IsAbandoned, &enclosuresJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	if enclosuresJSON.Valid {
		if err := json.Unmarshal([]byte(enclosuresJSON.String), &article.Enclosures); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enclosures: %w", err)
		}
	}

	return &article, nil
}

// SetReadState updates the read state of every record sharing the given
// GUID (normally exactly one).
func (s *Store) SetReadState(guid string, isRead bool) error {
	_, err := s.db.Exec("UPDATE articles SET is_read = ? WHERE guid = ?", isRead, guid)
	if err != nil {
		return fmt.Errorf("failed to set read state: %w", err)
	}
	return nil
}

// MarkAllRead marks every currently-unread article of the given feeds as
// read.
func (s *Store) MarkAllRead(feedURLs []string) error {
	if len(feedURLs) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE articles SET is_read = 1 WHERE is_read = 0 AND feed_url IN (%s)",
		placeholders(len(feedURLs)),
	)
	args := make([]any, len(feedURLs))
	for i, url := range feedURLs {
		args[i] = url
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to mark all as read: %w", err)
	}
	return nil
}

// CountUnread returns the number of unread articles for a feed.
func (s *Store) CountUnread(feedURL string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM articles WHERE feed_url = ? AND is_read = 0", feedURL,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread articles: %w", err)
	}
	return count, nil
}

// RemoveOlderThan deletes abandoned articles published before the cutoff.
// With leaveTagged set, tagged articles survive regardless of age.
// Non-abandoned articles are never touched.
func (s *Store) RemoveOlderThan(cutoff time.Time, leaveTagged bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "DELETE FROM articles WHERE pub_time < ? AND is_abandoned = 1"
	if leaveTagged {
		query += " AND guid NOT IN (SELECT guid FROM article_tags)"
	}
	if _, err := tx.Exec(query, cutoff.UnixMilli()); err != nil {
		return fmt.Errorf("failed to remove old articles: %w", err)
	}

	// Drop tag links whose article no longer exists.
	if _, err := tx.Exec(
		"DELETE FROM article_tags WHERE guid NOT IN (SELECT guid FROM articles)",
	); err != nil {
		return fmt.Errorf("failed to clean up article tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	return nil
}

// RemoveAllForFeed deletes every article of a feed unconditionally. Used
// when a feed subscription is removed.
func (s *Store) RemoveAllForFeed(feedURL string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM article_tags WHERE guid IN (SELECT guid FROM articles WHERE feed_url = ?)",
		feedURL,
	); err != nil {
		return fmt.Errorf("failed to remove article tags: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM articles WHERE feed_url = ?", feedURL); err != nil {
		return fmt.Errorf("failed to remove articles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	return nil
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
