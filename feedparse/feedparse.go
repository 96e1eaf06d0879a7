// Package feedparse turns raw feed bytes into a normalized document. The
// gofeed library handles RSS and Atom transparently; this package adds
// character-encoding normalization and maps the parsed feed onto the small
// article shape the rest of the system consumes.
package feedparse

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrNotAFeed indicates the input parsed as neither RSS nor Atom. Discovery
// relies on this to fall back to HTML link sniffing.
var ErrNotAFeed = errors.New("input is not a recognized feed")

// Document is a normalized feed: feed-level metadata plus its articles.
type Document struct {
	Meta     Meta
	Articles []RawArticle
}

// Meta holds the feed-level title and site link.
type Meta struct {
	Title string
	Link  string
}

// RawArticle is one parsed feed entry before reconciliation. GUID may be
// empty (some feeds omit it); PubDate is nil when the feed gave no usable
// date.
type RawArticle struct {
	Title       string
	Description string
	Link        string
	GUID        string
	PubDate     *time.Time
	Enclosures  []Enclosure
}

// Enclosure is an attached media resource declared by the feed.
type Enclosure struct {
	URL  string
	Type string
}

// Matches the encoding attribute of an XML declaration, e.g.
// <?xml version="1.0" encoding="ISO-8859-1"?>
var encodingPattern = regexp.MustCompile(`(?i)<\?xml[^>]*\bencoding=["']([^"']+)["']`)

// Parse parses raw feed bytes into a Document. A declared non-UTF-8 XML
// encoding is converted before parsing; unsupported declared encodings fall
// back silently to the raw bytes.
func Parse(data []byte) (*Document, error) {
	data = normalizeEncoding(data)

	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAFeed, err)
	}

	doc := &Document{
		Meta: Meta{
			Title: feed.Title,
			Link:  feed.Link,
		},
		Articles: make([]RawArticle, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		doc.Articles = append(doc.Articles, itemToArticle(item))
	}

	return doc, nil
}

// itemToArticle maps one gofeed item onto a RawArticle. gofeed normalizes
// RSS <description> and Atom <summary>/<content> into Description, and RSS
// <pubDate> and Atom <published>/<updated> into the parsed date fields.
func itemToArticle(item *gofeed.Item) RawArticle {
	article := RawArticle{
		Title:       item.Title,
		Description: item.Description,
		Link:        item.Link,
		GUID:        item.GUID,
	}

	if item.PublishedParsed != nil {
		article.PubDate = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		article.PubDate = item.UpdatedParsed
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		article.Enclosures = append(article.Enclosures, Enclosure{
			URL:  enc.URL,
			Type: enc.Type,
		})
	}

	return article
}

// normalizeEncoding converts data to UTF-8 when its XML declaration names a
// different charset. Unknown encodings and conversion failures leave the
// input untouched.
func normalizeEncoding(data []byte) []byte {
	match := encodingPattern.FindSubmatch(data)
	if match == nil {
		return data
	}

	name := strings.ToLower(string(match[1]))
	if name == "utf-8" || name == "utf8" {
		return data
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return data
	}

	converted, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return data
	}

	// Strip the now-stale encoding attribute so the XML parser does not
	// reinterpret the converted bytes.
	converted = encodingPattern.ReplaceAll(converted, []byte("<?xml version=\"1.0\""))
	return converted
}
