package scheduler

import (
	"math"
	"sort"
	"time"
)

const (
	// A last-download time older than this is treated as never: everything
	// goes into the high-priority basket.
	staleAfter = 72 * time.Hour
	// At least this much staleness is always assumed, so frequent manual
	// refreshes cannot starve slow feeds out of the high-priority basket.
	minElapsed = 24 * time.Hour
	// A feed is "probably fresh" once the elapsed time exceeds roughly a
	// third of its typical inter-publication gap.
	hiRatio = 0.33
)

// Baskets is a priority partition of feed URLs for one fetch wave.
type Baskets struct {
	Hi []string
	Lo []string
}

// ActivityBaskets partitions feeds into priority baskets based on their
// average publish activity and the time of the last full download. Feeds
// likely to have new content go into Hi; the rest into Lo. If nothing lands
// in Hi, the baskets are swapped so a wave always has foreground work.
func ActivityBaskets(activities map[string]int, lastDownload, now time.Time) Baskets {
	if now.Sub(lastDownload) > staleAfter {
		lastDownload = time.Time{}
	} else if now.Sub(lastDownload) < minElapsed {
		lastDownload = now.Add(-minElapsed)
	}
	hoursSince := now.Sub(lastDownload).Hours()

	// Map order is random; sort so the partition is deterministic.
	urls := make([]string, 0, len(activities))
	for url := range activities {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	var baskets Baskets
	for _, url := range urls {
		if hoursSince >= float64(activities[url])*hiRatio {
			baskets.Hi = append(baskets.Hi, url)
		} else {
			baskets.Lo = append(baskets.Lo, url)
		}
	}

	if len(baskets.Hi) == 0 {
		baskets.Hi, baskets.Lo = baskets.Lo, nil
	}

	return baskets
}

// AverageActivity estimates a feed's typical number of hours between
// publications from the publish dates of its most recent articles
// (newest-first, at most the first five are considered). A missing date
// among them means the cadence cannot be reasoned about, so the feed is
// treated as maximally active (0). Gaps are walked backward starting from
// now, averaged in milliseconds, and rounded to whole hours.
func AverageActivity(pubDates []*time.Time, now time.Time) int {
	if len(pubDates) == 0 {
		return 0
	}
	if len(pubDates) > 5 {
		pubDates = pubDates[:5]
	}

	ref := now
	var totalMs int64
	for _, pubDate := range pubDates {
		if pubDate == nil {
			return 0
		}
		totalMs += ref.UnixMilli() - pubDate.UnixMilli()
		ref = *pubDate
	}

	meanMs := float64(totalMs) / float64(len(pubDates))
	return int(math.Round(meanMs / float64(time.Hour.Milliseconds())))
}
