// Package detector decides when a novel page must be re-fetched through the
// headless browser.
package detector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/extract"
)

const defaultThreshold = 2048

// Heuristic promotes pages whose chapter list has not been rendered server-side.
type Heuristic struct {
	// BodyLengthThreshold is the size under which a script-dominated page is
	// treated as a loader shell.
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// ShouldPromote decides whether a headless fetch is required. Already rendered
// responses are never promoted again.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.UsedHeadless || !resp.OK() {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	doc, err := extract.Parse(resp.Body)
	if err != nil {
		return false
	}
	if extract.NeedsRendering(doc) {
		return true
	}
	return len(resp.Body) < h.BodyLengthThreshold && scriptHeavy(doc)
}

// scriptHeavy reports whether inline script outweighs visible text four to one.
func scriptHeavy(doc *goquery.Document) bool {
	script := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		script += len(strings.TrimSpace(s.Text()))
	})
	if script == 0 {
		return false
	}
	body := doc.Find("body").Clone()
	body.Find("script, noscript, style").Remove()
	visible := len(strings.Join(strings.Fields(body.Text()), " "))
	return visible*4 <= script
}
