package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLabel(t *testing.T) {
	t.Parallel()

	head, ext := SplitLabel("Chapter 37 - Side Story - Part 1")
	assert.Equal(t, "Chapter 37", head)
	assert.Equal(t, "Side Story - Part 1", ext)

	head, ext = SplitLabel("  Chapter   12  ")
	assert.Equal(t, "Chapter 12", head)
	assert.Empty(t, ext)
}

func TestVolumeAndChapterNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3", VolumeNumber("Volume 3 Chapter 9"))
	assert.Equal(t, "", VolumeNumber("Chapter 9"))
	assert.Equal(t, "9", ChapterNumber("Volume 3 Chapter 9"))
	assert.Equal(t, "37.2", ChapterNumber("Ch 37.2"))
	assert.Equal(t, "4", ChapterNumber("Ep. 4"))
	assert.Equal(t, "120", ChapterNumber("120"))
	assert.Equal(t, UnknownChapter, ChapterNumber("Epilogue"))
}

func TestPathNumbers(t *testing.T) {
	t.Parallel()

	vol, chap := PathNumbers("https://dragonholic.com/novel/some-novel/2/37.5/")
	assert.Equal(t, "2", vol)
	assert.Equal(t, "37.5", chap)

	vol, chap = PathNumbers("https://dragonholic.com/novel/some-novel/chapter-1/")
	assert.Empty(t, vol)
	assert.Empty(t, chap)
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	base := "https://dragonholic.com/novel/some-novel/"
	assert.Equal(t, "", ResolveHref(base, "#"))
	assert.Equal(t, "", ResolveHref(base, "javascript:void(0)"))
	assert.Equal(t, "https://dragonholic.com/novel/some-novel/1/2/", ResolveHref(base, "1/2/"))
	assert.Equal(t, "https://dragonholic.com/x/", ResolveHref(base, "/x/"))
	assert.Equal(t, "https://other.example/a", ResolveHref(base, "https://other.example/a"))
}

func TestSynthesizePermalink(t *testing.T) {
	t.Parallel()

	base := "https://dragonholic.com/novel/some-novel"
	assert.Equal(t, base+"/1/37/", SynthesizePermalink(base, "1", "37", "chapter-37"))
	assert.Equal(t, base+"/37/", SynthesizePermalink(base, "", "37", "chapter-37"))
	assert.Equal(t, base+"/epilogue/", SynthesizePermalink(base, "", UnknownChapter, "epilogue"))
}
