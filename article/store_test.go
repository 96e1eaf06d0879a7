package article

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedhaven/feedhaven/feedparse"
)

// Test helper: open a store backed by a temp database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "articles.db"))
	require.NoError(t, err, "NewStore should succeed")
	t.Cleanup(func() { store.Close() })
	return store
}

// Test helper: build a harvest article with a link-based identity.
func rawArticle(link string, pubDate *time.Time) feedparse.RawArticle {
	return feedparse.RawArticle{
		Title:       "Title for " + link,
		Description: "Description for " + link,
		Link:        link,
		PubDate:     pubDate,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

// Test helper: load every article of a feed.
func allArticles(t *testing.T, store *Store, feedURL string) []Article {
	t.Helper()
	page, err := store.GetArticles([]string{feedURL}, 0, 1000, nil)
	require.NoError(t, err)
	return page.Articles
}

// TestDigest_EmptyHarvest verifies an empty harvest is rejected without
// touching the store.
func TestDigest_EmptyHarvest(t *testing.T) {
	store := newTestStore(t)

	err := store.Digest("http://example.com/feed", nil)
	assert.ErrorIs(t, err, ErrEmptyHarvest)

	err = store.Digest("http://example.com/feed", []feedparse.RawArticle{})
	assert.ErrorIs(t, err, ErrEmptyHarvest)
}

// TestDigest_Idempotent verifies digesting the same harvest twice yields
// the same article count and field values as digesting it once.
func TestDigest_Idempotent(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	harvest := []feedparse.RawArticle{
		rawArticle("l3", timePtr(time.UnixMilli(3))),
		rawArticle("l1", timePtr(time.UnixMilli(1))),
	}

	require.NoError(t, store.Digest(feed, harvest))
	first := allArticles(t, store, feed)

	require.NoError(t, store.Digest(feed, harvest))
	second := allArticles(t, store, feed)

	assert.Len(t, second, 2, "re-digesting must not duplicate articles")
	assert.Equal(t, first, second, "field values must be unchanged")
}

// TestDigest_LinkFallbackIdentity verifies an article without a guid is
// addressable by its link and merges rather than duplicates on re-harvest.
func TestDigest_LinkFallbackIdentity(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	harvest := []feedparse.RawArticle{rawArticle("http://example.com/a", nil)}
	require.NoError(t, store.Digest(feed, harvest))
	require.NoError(t, store.Digest(feed, harvest))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	assert.Equal(t, "http://example.com/a", articles[0].GUID, "guid should fall back to the link")
}

// TestDigest_ExplicitGUID verifies the feed-provided guid wins over the
// link for identity.
func TestDigest_ExplicitGUID(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	article := rawArticle("http://example.com/a", nil)
	article.GUID = "guid-1"
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{article}))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	assert.Equal(t, "guid-1", articles[0].GUID)
}

// TestDigest_Abandonment verifies articles missing from the latest harvest
// are flagged abandoned, new ones inserted, and survivors untouched.
func TestDigest_Abandonment(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l1", nil), rawArticle("l2", nil), rawArticle("l3", nil),
	}))
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l2", nil), rawArticle("l3", nil), rawArticle("l4", nil),
	}))

	byGUID := map[string]Article{}
	for _, a := range allArticles(t, store, feed) {
		byGUID[a.GUID] = a
	}
	require.Len(t, byGUID, 4)

	assert.True(t, byGUID["l1"].IsAbandoned, "l1 disappeared and should be abandoned")
	assert.False(t, byGUID["l2"].IsAbandoned)
	assert.False(t, byGUID["l3"].IsAbandoned)
	assert.False(t, byGUID["l4"].IsAbandoned, "new insert starts unabandoned")
}

// TestDigest_AbandonedReappears verifies an abandoned article found again
// by guid is merged (not duplicated) and no longer abandoned.
func TestDigest_AbandonedReappears(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l1", nil), rawArticle("l2", nil),
	}))
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l2", nil),
	}))
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l1", nil), rawArticle("l2", nil),
	}))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 2, "reappearance must merge, not duplicate")
	for _, a := range articles {
		assert.False(t, a.IsAbandoned, "%s should not be abandoned after reappearing", a.GUID)
	}
}

// TestDigest_ContentChange verifies a changed title/description updates
// those fields while preserving pub time, read state, and tags.
func TestDigest_ContentChange(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	original := rawArticle("l1", nil)
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{original}))

	before := allArticles(t, store, feed)
	require.Len(t, before, 1)
	require.NoError(t, store.SetReadState("l1", true))
	tag, err := store.AddTag("keeper")
	require.NoError(t, err)
	require.NoError(t, store.TagArticle("l1", tag.ID))

	changed := original
	changed.Title = "New title"
	changed.Description = "New description"
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{changed}))

	after := allArticles(t, store, feed)
	require.Len(t, after, 1)
	assert.Equal(t, "New title", after[0].Title)
	assert.Equal(t, "New description", after[0].Content)
	assert.Equal(t, before[0].PubTime, after[0].PubTime, "pub time must never be recomputed")
	assert.True(t, after[0].IsRead, "read state must survive a content refresh")
	require.Len(t, after[0].Tags, 1)
	assert.Equal(t, tag.ID, after[0].Tags[0], "tags must survive a content refresh")
}

// TestDigest_LinkChangeNotPersisted verifies matching is purely by guid: a
// changed link on an existing guid is not written to the store.
func TestDigest_LinkChangeNotPersisted(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	original := feedparse.RawArticle{
		GUID:        "guid-1",
		Title:       "Stable",
		Description: "Stable",
		Link:        "http://example.com/old",
	}
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{original}))

	moved := original
	moved.Link = "http://example.com/new"
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{moved}))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	assert.Equal(t, "http://example.com/old", articles[0].Link)
}

// TestDigest_MissingPubDate verifies an article with no publish date gets a
// pub time close to now, and that it stays fixed on re-harvest.
func TestDigest_MissingPubDate(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	harvest := []feedparse.RawArticle{rawArticle("l1", nil)}
	before := time.Now().UnixMilli()
	require.NoError(t, store.Digest(feed, harvest))
	after := time.Now().UnixMilli()

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	pubTime := articles[0].PubTime
	assert.GreaterOrEqual(t, pubTime, before-500)
	assert.LessOrEqual(t, pubTime, after+500)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Digest(feed, harvest))
	articles = allArticles(t, store, feed)
	require.Len(t, articles, 1)
	assert.Equal(t, pubTime, articles[0].PubTime, "pub time must not change on re-harvest")
}

// TestDigest_PubDateFromFeed verifies a feed-provided publish date is
// stored as-is in milliseconds.
func TestDigest_PubDateFromFeed(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l1", timePtr(published)),
	}))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	assert.Equal(t, published.UnixMilli(), articles[0].PubTime)
}

// TestDigest_AudioEnclosures verifies only audio/mpeg enclosures survive
// ingestion.
func TestDigest_AudioEnclosures(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	article := rawArticle("l1", nil)
	article.Enclosures = []feedparse.Enclosure{
		{URL: "http://example.com/ep.mp3", Type: "audio/mpeg"},
		{URL: "http://example.com/cover.jpg", Type: "image/jpeg"},
		{URL: "", Type: "audio/mpeg"},
	}
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{article}))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	require.Len(t, articles[0].Enclosures, 1)
	assert.Equal(t, "http://example.com/ep.mp3", articles[0].Enclosures[0].URL)
}

// TestDigest_GuidUniqueAcrossFeeds verifies an existing guid is merged even
// when harvested for a different feed, keeping guid globally unique.
func TestDigest_GuidUniqueAcrossFeeds(t *testing.T) {
	store := newTestStore(t)

	article := feedparse.RawArticle{GUID: "shared", Title: "A", Description: "A", Link: "l"}
	require.NoError(t, store.Digest("http://example.com/one", []feedparse.RawArticle{article}))
	require.NoError(t, store.Digest("http://example.com/two", []feedparse.RawArticle{article}))

	one := allArticles(t, store, "http://example.com/one")
	two := allArticles(t, store, "http://example.com/two")
	assert.Len(t, one, 1, "record stays with its original feed")
	assert.Len(t, two, 0, "no duplicate record for the second feed")
}

// TestDigest_SequentialCallsApplyInOrder verifies two back-to-back digests
// both apply, with the final state reflecting both harvests.
func TestDigest_SequentialCallsApplyInOrder(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l1", nil), rawArticle("l2", nil),
	}))
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l2", nil), rawArticle("l3", nil),
	}))

	byGUID := map[string]Article{}
	for _, a := range allArticles(t, store, feed) {
		byGUID[a.GUID] = a
	}
	require.Len(t, byGUID, 3)
	assert.True(t, byGUID["l1"].IsAbandoned)
	assert.False(t, byGUID["l2"].IsAbandoned)
	assert.False(t, byGUID["l3"].IsAbandoned)
}

// TestDigest_ConcurrentCallsSerialize verifies concurrent digests queue up
// rather than interleave: many goroutines digesting the same harvest leave
// exactly one copy of each article.
func TestDigest_ConcurrentCallsSerialize(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"

	harvest := make([]feedparse.RawArticle, 10)
	for i := range harvest {
		harvest[i] = rawArticle(fmt.Sprintf("l%d", i), nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Digest(feed, harvest))
		}()
	}
	wg.Wait()

	articles := allArticles(t, store, feed)
	assert.Len(t, articles, 10, "serialized digests must not duplicate articles")
	for _, a := range articles {
		assert.False(t, a.IsAbandoned)
	}
}

// TestDigest_AfterClose verifies digests issued after Close fail with
// ErrStoreClosed.
func TestDigest_AfterClose(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "articles.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.Digest("http://example.com/feed", []feedparse.RawArticle{rawArticle("l1", nil)})
	assert.ErrorIs(t, err, ErrStoreClosed)
}
