package normalize

import (
	"strings"
	"time"

	"github.com/JakeFAU/paid-chapter-feed/internal/catalog"
	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

// Resolver supplies catalog enrichment for a record.
type Resolver interface {
	ResolveTranslator(title string) (string, bool)
	ResolveMentionRole(translator string) string
	ResolveCoverImage(title string) string
	IsAdult(title string) bool
}

// Normalizer converts RawChapters into ChapterRecords.
type Normalizer struct {
	resolver  Resolver
	adultRole string
}

// New builds a Normalizer. adultRole is appended to the mention of adult titles.
func New(resolver Resolver, adultRole string) *Normalizer {
	return &Normalizer{resolver: resolver, adultRole: strings.TrimSpace(adultRole)}
}

// Normalize builds the canonical record for one raw chapter of entry.
// Translator is left empty when the catalog does not know the title.
func (n *Normalizer) Normalize(
	entry crawler.CatalogEntry,
	raw crawler.RawChapter,
	synopsis string,
	now time.Time,
) crawler.ChapterRecord {
	head, extended := SplitLabel(raw.Label)
	volume := VolumeNumber(head)
	if volume == "" {
		volume = VolumeNumber(raw.VolumeLabel)
	}
	chapter := ChapterNumber(head)

	permalink := ResolveHref(entry.SourceURL, raw.Href)
	if permalink == "" {
		permalink = SynthesizePermalink(entry.SourceURL, volume, chapter, catalog.Slugify(head))
	}
	pathVolume, pathChapter := PathNumbers(permalink)
	if volume == "" && pathVolume != "" {
		volume = pathVolume
	}
	if pathChapter != "" && pathChapter != chapter {
		chapter = pathChapter
	}

	record := crawler.ChapterRecord{
		NovelTitle:    entry.Title,
		VolumeLabel:   volume,
		ChapterLabel:  chapter,
		ChapterKey:    ChapterKey(chapter),
		ExtendedTitle: extended,
		Permalink:     permalink,
		Synopsis:      synopsis,
		PublishedAt:   ParseReleaseTime(raw.ReleaseLabel, now),
		GUID:          guidFor(entry.Title, raw.ChapterID, volume, chapter),
		CoinPrice:     strings.TrimSpace(raw.CoinLabel),
	}
	if n.resolver == nil {
		return record
	}
	translator, _ := n.resolver.ResolveTranslator(entry.Title)
	record.Translator = translator
	record.IsAdult = n.resolver.IsAdult(entry.Title)
	record.CoverImage = n.resolver.ResolveCoverImage(entry.Title)
	record.MentionRole = n.resolver.ResolveMentionRole(translator)
	if record.IsAdult && n.adultRole != "" {
		record.MentionRole = strings.TrimSpace(record.MentionRole + " " + n.adultRole)
	}
	return record
}

func guidFor(title, chapterID, volume, chapter string) string {
	if id := strings.TrimSpace(chapterID); id != "" {
		return id
	}
	parts := []string{catalog.Slugify(title)}
	if volume != "" {
		parts = append(parts, "v"+volume)
	}
	parts = append(parts, "c"+chapter)
	return strings.Join(parts, "-")
}
