// Package extract locates chapter lists on Madara-style novel pages and lifts
// the recent paid chapters out of them.
package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
	"github.com/JakeFAU/paid-chapter-feed/internal/normalize"
)

// DefaultWindow is the staleness cutoff for republished chapters.
const DefaultWindow = 7 * 24 * time.Hour

// ChapterSelector matches one chapter node in either layout.
const ChapterSelector = "li.wp-manga-chapter"

const (
	holderSelector   = "#manga-chapters-holder"
	synopsisSelector = "div.description-summary"
	synopsisFallback = "div.summary__content"
	readMoreSelector = "div.c-content-readmore"
	chapterIDPrefix  = "data-chapter-"
)

var whitespace = regexp.MustCompile(`\s+`)

// Result is everything extracted from one novel page.
type Result struct {
	Strategy       string
	Synopsis       string
	Chapters       []crawler.RawChapter
	Inspected      int
	StoppedAtStale bool
}

// Extractor applies the first matching Strategy and the staleness window.
type Extractor struct {
	strategies []Strategy
	window     time.Duration
}

// New builds an Extractor with the volume-grouped and flat strategies.
// A window <= 0 disables the staleness cutoff.
func New(window time.Duration) *Extractor {
	return &Extractor{
		strategies: []Strategy{VolumeGrouped{}, Flat{}},
		window:     window,
	}
}

// Parse builds a goquery document from raw markup.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Select returns the first strategy whose capability check passes, or nil.
func (e *Extractor) Select(doc *goquery.Document) Strategy {
	for _, s := range e.strategies {
		if s.Detect(doc) {
			return s
		}
	}
	return nil
}

// Extract returns the restricted chapters released within the window, newest
// first, plus the page synopsis. Scanning stops at the first stale chapter.
func (e *Extractor) Extract(doc *goquery.Document, now time.Time) Result {
	res := Result{Synopsis: Synopsis(doc)}
	strategy := e.Select(doc)
	if strategy == nil {
		return res
	}
	res.Strategy = strategy.Name()
	for _, node := range strategy.Nodes(doc) {
		res.Inspected++
		raw, ok := parseNode(node.Selection, node.VolumeLabel)
		if !ok || !raw.Restricted {
			continue
		}
		if e.stale(raw.ReleaseLabel, now) {
			res.StoppedAtStale = true
			break
		}
		res.Chapters = append(res.Chapters, raw)
	}
	return res
}

// QuickCheck inspects only the first chapter node: it must be premium and
// released within the window.
func (e *Extractor) QuickCheck(doc *goquery.Document, now time.Time) bool {
	first := doc.Find(ChapterSelector).First()
	if first.Length() == 0 {
		return false
	}
	raw, _ := parseNode(first, "")
	if !raw.Premium || !raw.Restricted {
		return false
	}
	return !e.stale(raw.ReleaseLabel, now)
}

// NeedsRendering reports a chapter holder that has not been populated yet,
// which happens when the list is loaded by script after page load.
func NeedsRendering(doc *goquery.Document) bool {
	holder := doc.Find(holderSelector)
	return holder.Length() > 0 && doc.Find(ChapterSelector).Length() == 0
}

func (e *Extractor) stale(label string, now time.Time) bool {
	if e.window <= 0 {
		return false
	}
	released := normalize.ParseReleaseTime(label, now)
	return released.Before(now.UTC().Add(-e.window))
}

// Synopsis returns the cleaned inner HTML of the first summary block.
func Synopsis(doc *goquery.Document) string {
	summary := doc.Find(synopsisSelector).First()
	if summary.Length() == 0 {
		summary = doc.Find(synopsisFallback).First()
	}
	if summary.Length() == 0 {
		return ""
	}
	summary = summary.Clone()
	summary.Find(readMoreSelector).Remove()
	html, err := summary.Html()
	if err != nil {
		return ""
	}
	return collapse(html)
}

func parseNode(sel *goquery.Selection, volumeLabel string) (crawler.RawChapter, bool) {
	raw := crawler.RawChapter{VolumeLabel: volumeLabel}
	for _, class := range strings.Fields(sel.AttrOr("class", "")) {
		switch {
		case class == "premium":
			raw.Premium = true
		case strings.HasPrefix(class, chapterIDPrefix):
			raw.ChapterID = strings.TrimPrefix(class, chapterIDPrefix)
		}
	}
	raw.Restricted = !sel.HasClass("free-chap")
	raw.ReleaseLabel = releaseLabel(sel)
	raw.CoinLabel = collapse(sel.Find("span.coin").First().Text())

	anchor := sel.Find("a").First()
	if anchor.Length() == 0 {
		return raw, false
	}
	raw.Href = strings.TrimSpace(anchor.AttrOr("href", ""))
	label := anchor.Clone()
	label.Find("i, img, span").Remove()
	raw.Label = collapse(label.Text())
	return raw, true
}

func releaseLabel(sel *goquery.Selection) string {
	span := sel.Find("span.chapter-release-date").First()
	if span.Length() == 0 {
		return ""
	}
	if text := collapse(span.Find("i").First().Text()); text != "" {
		return text
	}
	if title, ok := span.Find("a[title]").First().Attr("title"); ok && strings.TrimSpace(title) != "" {
		return collapse(title)
	}
	return collapse(span.Text())
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
