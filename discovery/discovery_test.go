package discovery

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedhaven/feedhaven/fetch"
)

const discoveryFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example News</title>
<link>http://example.com</link>
<item><title>First</title><link>http://example.com/first</link></item>
</channel></rss>`

// fakeFetcher serves canned bodies keyed by URL; unknown URLs get
// fetch.ErrNotFound, matching a real 404.
type fakeFetcher struct {
	bodies    map[string]string
	errs      map[string]error
	requested []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.requested = append(f.requested, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if body, ok := f.bodies[url]; ok {
		return []byte(body), nil
	}
	return nil, fmt.Errorf("%w: %s", fetch.ErrNotFound, url)
}

// TestDiscover_DirectFeed verifies a URL that is already a feed comes back
// unchanged with its parsed document.
func TestDiscover_DirectFeed(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://example.com/feed.xml": discoveryFeed,
	}}
	d := New(fetcher)

	feedURL, doc, err := d.Discover(context.Background(), "http://example.com/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/feed.xml", feedURL)
	assert.Equal(t, "Example News", doc.Meta.Title)
	require.Len(t, doc.Articles, 1)
}

// TestDiscover_BareDomain verifies a schemeless input gets http:// prepended
// before fetching.
func TestDiscover_BareDomain(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://example.com": discoveryFeed,
	}}
	d := New(fetcher)

	feedURL, _, err := d.Discover(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", feedURL)
}

// TestDiscover_HTMLLinkElement verifies the HTML fallback: the page
// advertises its feed through a <link> element with a relative href, which
// is resolved against the page URL.
func TestDiscover_HTMLLinkElement(t *testing.T) {
	page := `<html><head>
<link rel="alternate" type="application/rss+xml" title="RSS" href="/feeds/main.xml">
</head><body>welcome</body></html>`
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://example.com":                page,
		"http://example.com/feeds/main.xml": discoveryFeed,
	}}
	d := New(fetcher)

	feedURL, doc, err := d.Discover(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/feeds/main.xml", feedURL)
	assert.Equal(t, "Example News", doc.Meta.Title)
	assert.Equal(t, []string{
		"http://example.com", "http://example.com/feeds/main.xml",
	}, fetcher.requested)
}

// TestDiscover_AtomLinkElement verifies Atom link elements are recognized
// too, including absolute hrefs.
func TestDiscover_AtomLinkElement(t *testing.T) {
	page := `<html><head>
<link rel="alternate" type="application/atom+xml" href="http://feeds.example.com/atom.xml">
</head></html>`
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://example.com":                page,
		"http://feeds.example.com/atom.xml": discoveryFeed,
	}}
	d := New(fetcher)

	feedURL, _, err := d.Discover(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.Equal(t, "http://feeds.example.com/atom.xml", feedURL)
}

// TestDiscover_NoLinkElement verifies a plain HTML page without a feed link
// yields ErrNoFeedFound.
func TestDiscover_NoLinkElement(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://example.com": "<html><head><title>No feeds here</title></head></html>",
	}}
	d := New(fetcher)

	_, _, err := d.Discover(context.Background(), "http://example.com")
	assert.ErrorIs(t, err, ErrNoFeedFound)
}

// TestDiscover_AdvertisedFeedDoesNotParse verifies a link pointing at a
// non-feed also yields ErrNoFeedFound.
func TestDiscover_AdvertisedFeedDoesNotParse(t *testing.T) {
	page := `<html><head>
<link rel="alternate" type="application/rss+xml" href="/feed">
</head></html>`
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://example.com":      page,
		"http://example.com/feed": "<html>surprise, more html</html>",
	}}
	d := New(fetcher)

	_, _, err := d.Discover(context.Background(), "http://example.com")
	assert.ErrorIs(t, err, ErrNoFeedFound)
}

// TestDiscover_NetworkErrorsPropagate verifies fetch-layer failures pass
// through untouched so callers can report them distinctly.
func TestDiscover_NetworkErrorsPropagate(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{
		"http://gone.example.com": fetch.ErrHostNotFound,
	}}
	d := New(fetcher)

	_, _, err := d.Discover(context.Background(), "http://gone.example.com")
	assert.ErrorIs(t, err, fetch.ErrHostNotFound)
	assert.NotErrorIs(t, err, ErrNoFeedFound)
}

// TestDiscover_CandidateFetchFails verifies a 404 on the advertised feed
// URL also propagates from the fetch layer.
func TestDiscover_CandidateFetchFails(t *testing.T) {
	page := `<html><head>
<link rel="alternate" type="application/rss+xml" href="/missing.xml">
</head></html>`
	fetcher := &fakeFetcher{bodies: map[string]string{
		"http://example.com": page,
	}}
	d := New(fetcher)

	_, _, err := d.Discover(context.Background(), "http://example.com")
	assert.ErrorIs(t, err, fetch.ErrNotFound)
}
