package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

// UnknownChapter is the chapter label used when a node carries no number at all.
const UnknownChapter = "unknown"

var (
	volumePattern  = regexp.MustCompile(`(?i)Volume\s+(\d+)`)
	chapterPattern = regexp.MustCompile(`(?i)(?:Chapter|Ch|Ep)\.?\s*(\d+(?:\.\d+)*)`)
	firstNumber    = regexp.MustCompile(`\d+(?:\.\d+)*`)
	chapterPath    = regexp.MustCompile(`/novel/[^/]+/(\d+)/(\d+(?:\.\d+)*)/?`)
)

// SplitLabel separates the chapter label from the extended title at the first " - ".
func SplitLabel(label string) (string, string) {
	label = strings.Join(strings.Fields(label), " ")
	head, tail, found := strings.Cut(label, " - ")
	if !found {
		return label, ""
	}
	return strings.TrimSpace(head), strings.TrimSpace(tail)
}

// VolumeNumber returns the number following "Volume", or "".
func VolumeNumber(label string) string {
	if m := volumePattern.FindStringSubmatch(label); m != nil {
		return m[1]
	}
	return ""
}

// ChapterNumber returns the number following Chapter/Ch/Ep, else the first
// number in label, else UnknownChapter.
func ChapterNumber(label string) string {
	if m := chapterPattern.FindStringSubmatch(label); m != nil {
		return m[1]
	}
	if m := firstNumber.FindString(label); m != "" {
		return m
	}
	return UnknownChapter
}

// PathNumbers extracts volume and chapter from a /novel/<slug>/<vol>/<chap>/ URL.
func PathNumbers(link string) (string, string) {
	m := chapterPath.FindStringSubmatch(link)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// IsPlaceholderHref reports whether href cannot serve as a permalink.
func IsPlaceholderHref(href string) bool {
	h := strings.TrimSpace(href)
	return h == "" || h == "#" || strings.HasPrefix(strings.ToLower(h), "javascript:")
}

// ResolveHref makes href absolute against base. Placeholders resolve to "".
func ResolveHref(base, href string) string {
	if IsPlaceholderHref(href) {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// SynthesizePermalink builds base/<vol>/<chap>/, base/<chap>/ or base/<slug>/.
func SynthesizePermalink(base, volume, chapter, labelSlug string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	switch {
	case chapter != "" && chapter != UnknownChapter && volume != "":
		return base + volume + "/" + chapter + "/"
	case chapter != "" && chapter != UnknownChapter:
		return base + chapter + "/"
	case labelSlug != "":
		return base + labelSlug + "/"
	default:
		return base
	}
}
