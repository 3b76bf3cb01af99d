package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

type stubResolver struct {
	translators map[string]string
	roles       map[string]string
	adult       map[string]bool
	covers      map[string]string
}

func (s stubResolver) ResolveTranslator(title string) (string, bool) {
	tr, ok := s.translators[title]
	return tr, ok
}

func (s stubResolver) ResolveMentionRole(translator string) string { return s.roles[translator] }
func (s stubResolver) ResolveCoverImage(title string) string       { return s.covers[title] }
func (s stubResolver) IsAdult(title string) bool                   { return s.adult[title] }

func newStubResolver() stubResolver {
	return stubResolver{
		translators: map[string]string{"Moon Song": "Aurora", "Night Bloom": "Vesper"},
		roles:       map[string]string{"Aurora": "<@&111>", "Vesper": "<@&222>"},
		adult:       map[string]bool{"Night Bloom": true},
		covers:      map[string]string{"Moon Song": "https://img.example/moon.jpg"},
	}
}

func TestNormalize_WithVolumeAndHref(t *testing.T) {
	t.Parallel()

	n := New(newStubResolver(), "<@&999>")
	entry := crawler.CatalogEntry{Title: "Moon Song", SourceURL: "https://dragonholic.com/novel/moon-song/"}
	raw := crawler.RawChapter{
		Restricted:   true,
		VolumeLabel:  "Volume 2",
		Label:        "Chapter 37.2 - The Return",
		Href:         "https://dragonholic.com/novel/moon-song/2/37.2/",
		CoinLabel:    " 15 ",
		ReleaseLabel: "3 hours ago",
		ChapterID:    "48211",
	}

	rec := n.Normalize(entry, raw, "<p>Synopsis</p>", fixedNow)

	assert.Equal(t, "Moon Song", rec.NovelTitle)
	assert.Equal(t, "2", rec.VolumeLabel)
	assert.Equal(t, "37.2", rec.ChapterLabel)
	assert.Equal(t, []float64{37.2}, rec.ChapterKey)
	assert.Equal(t, "The Return", rec.ExtendedTitle)
	assert.Equal(t, raw.Href, rec.Permalink)
	assert.Equal(t, "<p>Synopsis</p>", rec.Synopsis)
	assert.True(t, fixedNow.Add(-3*time.Hour).Equal(rec.PublishedAt))
	assert.Equal(t, "48211", rec.GUID)
	assert.Equal(t, "15", rec.CoinPrice)
	assert.Equal(t, "Aurora", rec.Translator)
	assert.False(t, rec.IsAdult)
	assert.Equal(t, "<@&111>", rec.MentionRole)
	assert.Equal(t, "https://img.example/moon.jpg", rec.CoverImage)
}

func TestNormalize_PlaceholderHrefSynthesizesPermalink(t *testing.T) {
	t.Parallel()

	n := New(newStubResolver(), "<@&999>")
	entry := crawler.CatalogEntry{Title: "Night Bloom", SourceURL: "https://dragonholic.com/novel/night-bloom/"}
	raw := crawler.RawChapter{Label: "Volume 1 Chapter 5", Href: "#", ReleaseLabel: "February 16, 2025"}

	rec := n.Normalize(entry, raw, "", fixedNow)

	assert.Equal(t, "https://dragonholic.com/novel/night-bloom/1/5/", rec.Permalink)
	assert.Equal(t, "1", rec.VolumeLabel)
	assert.Equal(t, "5", rec.ChapterLabel)
	assert.Equal(t, "night-bloom-v1-c5", rec.GUID)
	assert.True(t, rec.IsAdult)
	assert.Equal(t, "<@&222> <@&999>", rec.MentionRole)
	assert.True(t, time.Date(2025, 2, 16, 0, 0, 0, 0, time.UTC).Equal(rec.PublishedAt))
}

func TestNormalize_PathOverridesChapterNumber(t *testing.T) {
	t.Parallel()

	n := New(newStubResolver(), "")
	entry := crawler.CatalogEntry{Title: "Moon Song", SourceURL: "https://dragonholic.com/novel/moon-song/"}
	raw := crawler.RawChapter{Label: "Chapter 40", Href: "/novel/moon-song/3/41/"}

	rec := n.Normalize(entry, raw, "", fixedNow)

	assert.Equal(t, "3", rec.VolumeLabel)
	assert.Equal(t, "41", rec.ChapterLabel)
	assert.Equal(t, []float64{41}, rec.ChapterKey)
	assert.Equal(t, "https://dragonholic.com/novel/moon-song/3/41/", rec.Permalink)
}

func TestNormalize_UnknownTitleLeavesTranslatorEmpty(t *testing.T) {
	t.Parallel()

	n := New(newStubResolver(), "<@&999>")
	entry := crawler.CatalogEntry{Title: "Unlisted", SourceURL: "https://dragonholic.com/novel/unlisted/"}
	rec := n.Normalize(entry, crawler.RawChapter{Label: "Epilogue", Href: "#"}, "", fixedNow)

	require.Empty(t, rec.Translator)
	assert.Equal(t, UnknownChapter, rec.ChapterLabel)
	assert.Equal(t, []float64{0}, rec.ChapterKey)
	assert.Equal(t, "https://dragonholic.com/novel/unlisted/epilogue/", rec.Permalink)
	assert.True(t, fixedNow.Equal(rec.PublishedAt))
}
