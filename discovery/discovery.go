// Package discovery finds the machine-readable feed endpoint behind a
// user-entered URL or bare domain: either the URL is a feed itself, or it
// is an HTML page advertising one through a <link> element.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/feedhaven/feedhaven/feedparse"
)

// ErrNoFeedFound indicates the URL is neither a feed nor an HTML page
// pointing at one. Network-level failures (404, DNS, timeout) propagate
// from the fetch layer instead, so callers can give differentiated
// feedback.
var ErrNoFeedFound = errors.New("no feed found")

// Fetcher downloads one document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Discoverer resolves seed URLs to feed endpoints.
type Discoverer struct {
	fetcher Fetcher
}

// New creates a discoverer using the given fetcher.
func New(fetcher Fetcher) *Discoverer {
	return &Discoverer{fetcher: fetcher}
}

// Discover resolves a user-entered URL to a working feed endpoint and
// returns the endpoint URL together with its parsed document. A bare
// domain gets an http:// scheme prepended. If the URL does not parse as a
// feed, its body is treated as HTML and searched for an RSS or Atom <link>
// element; a relative href is resolved against the original URL. The
// candidate must itself parse as a feed, otherwise ErrNoFeedFound.
func (d *Discoverer) Discover(ctx context.Context, rawURL string) (string, *feedparse.Document, error) {
	rawURL = normalizeURL(rawURL)

	body, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", nil, err
	}

	doc, err := feedparse.Parse(body)
	if err == nil {
		return rawURL, doc, nil
	}
	if !errors.Is(err, feedparse.ErrNotAFeed) {
		return "", nil, err
	}

	candidate, err := feedLinkFromHTML(body, rawURL)
	if err != nil {
		return "", nil, err
	}

	candidateBody, err := d.fetcher.Fetch(ctx, candidate)
	if err != nil {
		return "", nil, err
	}

	doc, err = feedparse.Parse(candidateBody)
	if err != nil {
		return "", nil, fmt.Errorf("%w: advertised feed at %s did not parse", ErrNoFeedFound, candidate)
	}

	return candidate, doc, nil
}

// normalizeURL prepends an http:// scheme when the input has none.
func normalizeURL(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		return "http://" + rawURL
	}
	return rawURL
}

// feedLinkFromHTML extracts the first RSS or Atom <link> href from an HTML
// document, resolved against the page URL.
func feedLinkFromHTML(body []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoFeedFound, err)
	}

	selection := doc.Find(`link[type="application/rss+xml"], link[type="application/atom+xml"]`).First()
	href, ok := selection.Attr("href")
	if !ok || href == "" {
		return "", ErrNoFeedFound
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoFeedFound, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoFeedFound, err)
	}

	return base.ResolveReference(ref).String(), nil
}
