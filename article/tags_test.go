package article

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedhaven/feedhaven/feedparse"
)

// TestAddTag_DedupesByName verifies adding the same name twice returns the
// same tag id both times.
func TestAddTag_DedupesByName(t *testing.T) {
	store := newTestStore(t)

	first, err := store.AddTag("x")
	require.NoError(t, err)
	second, err := store.AddTag("x")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	tags, err := store.Tags()
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

// TestAddTag_CaseSensitive verifies names are matched exactly: a different
// casing creates a different tag.
func TestAddTag_CaseSensitive(t *testing.T) {
	store := newTestStore(t)

	lower, err := store.AddTag("news")
	require.NoError(t, err)
	upper, err := store.AddTag("News")
	require.NoError(t, err)

	assert.NotEqual(t, lower.ID, upper.ID)
}

// TestChangeTagName verifies renames and the not-found error.
func TestChangeTagName(t *testing.T) {
	store := newTestStore(t)

	tag, err := store.AddTag("before")
	require.NoError(t, err)
	require.NoError(t, store.ChangeTagName(tag.ID, "after"))

	tags, err := store.Tags()
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "after", tags[0].Name)

	err = store.ChangeTagName(uuid.New(), "whatever")
	assert.ErrorIs(t, err, ErrTagNotFound)
}

// TestTagArticle_Idempotent verifies attaching an already-present tag is a
// no-op.
func TestTagArticle_Idempotent(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{rawArticle("l1", nil)}))

	tag, err := store.AddTag("x")
	require.NoError(t, err)
	require.NoError(t, store.TagArticle("l1", tag.ID))
	require.NoError(t, store.TagArticle("l1", tag.ID))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	assert.Len(t, articles[0].Tags, 1)
}

// TestUntagArticle verifies detaching leaves the article with no tags.
func TestUntagArticle(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{rawArticle("l1", nil)}))

	tag, err := store.AddTag("x")
	require.NoError(t, err)
	require.NoError(t, store.TagArticle("l1", tag.ID))
	require.NoError(t, store.UntagArticle("l1", tag.ID))

	articles := allArticles(t, store, feed)
	require.Len(t, articles, 1)
	assert.Empty(t, articles[0].Tags)
}

// TestRemoveTag_StripsEverywhere verifies removing a tag deletes its
// definition and detaches it from every article.
func TestRemoveTag_StripsEverywhere(t *testing.T) {
	store := newTestStore(t)
	feed := "http://example.com/feed"
	require.NoError(t, store.Digest(feed, []feedparse.RawArticle{
		rawArticle("l1", nil), rawArticle("l2", nil),
	}))

	tag, err := store.AddTag("x")
	require.NoError(t, err)
	require.NoError(t, store.TagArticle("l1", tag.ID))
	require.NoError(t, store.TagArticle("l2", tag.ID))

	require.NoError(t, store.RemoveTag(tag.ID))

	tags, err := store.Tags()
	require.NoError(t, err)
	assert.Empty(t, tags)

	for _, a := range allArticles(t, store, feed) {
		assert.Empty(t, a.Tags, "%s should have no tags left", a.GUID)
	}
}
