package catalog

import (
	"regexp"
	"strings"
)

var (
	slugStrip   = regexp.MustCompile(`[^\w\s\x{0080}-\x{FFFF}-]`)
	slugSpace   = regexp.MustCompile(`[\s_]+`)
	slugHyphens = regexp.MustCompile(`-{2,}`)
)

// Slugify lowercases text, drops punctuation other than word characters,
// non-ASCII letters and hyphens, and joins words with single hyphens.
func Slugify(text string) string {
	t := strings.TrimSpace(strings.ToLower(text))
	t = slugStrip.ReplaceAllString(t, "")
	t = slugSpace.ReplaceAllString(t, "-")
	return slugHyphens.ReplaceAllString(t, "-")
}
