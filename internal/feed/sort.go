package feed

import (
	"sort"
	"time"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/normalize"
)

// Sort orders records newest first. Records published within the same second
// are ordered by chapter key, greatest first. The input slice is sorted in place.
func Sort(records []crawler.ChapterRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[j], records[i])
	})
}

// less reports whether a sorts strictly before b in ascending feed order.
func less(a, b crawler.ChapterRecord) bool {
	ta := a.PublishedAt.Truncate(time.Second)
	tb := b.PublishedAt.Truncate(time.Second)
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return normalize.CompareKeys(a.ChapterKey, b.ChapterKey) < 0
}
