package pipeline

import (
	"sort"
	"time"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/feed"
)

// AuditRow summarizes the paid chapters currently listed for one novel.
type AuditRow struct {
	Title      string
	Paid       int
	Latest     time.Time
	NewestName string
}

// Audit condenses crawl results into one row per novel whose page loaded,
// most recently updated first. Novels with no paid chapters get a zero row
// and sort last; failed novels are left out.
func Audit(results []crawler.NovelResult) []AuditRow {
	rows := make([]AuditRow, 0, len(results))
	for _, res := range results {
		if len(res.Records) == 0 {
			if pageLoaded(res) {
				rows = append(rows, AuditRow{Title: res.Title})
			}
			continue
		}
		records := make([]crawler.ChapterRecord, len(res.Records))
		copy(records, res.Records)
		feed.Sort(records)
		rows = append(rows, AuditRow{
			Title:      res.Title,
			Paid:       len(records),
			Latest:     records[0].PublishedAt,
			NewestName: records[0].ChapterLabel,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Latest.Equal(rows[j].Latest) {
			return rows[i].Latest.After(rows[j].Latest)
		}
		return rows[i].Title < rows[j].Title
	})
	return rows
}

func pageLoaded(res crawler.NovelResult) bool {
	if res.Err != nil {
		return false
	}
	switch res.Outcome {
	case crawler.OutcomeExtracted, crawler.OutcomeEmpty, crawler.OutcomeSkipped:
		return true
	default:
		return false
	}
}
