// Package catalog models the set of tracked novels and resolves per-title
// metadata: translator, mention role, cover image, adult flag and source URL.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

// DefaultBaseURL is the prefix used to derive a source URL from a title slug.
const DefaultBaseURL = "https://dragonholic.com/novel/"

// ErrDuplicateTitle is returned when two novels share a title or alias.
var ErrDuplicateTitle = errors.New("duplicate catalog title")

// Source loads a catalog from its backing store.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// Novel is one tracked title.
type Novel struct {
	Title      string
	Translator string
	Aliases    []string
	SourceURL  string
	CoverImage string
	Adult      bool
}

// Catalog is an immutable, keyed view over the tracked novels.
type Catalog struct {
	baseURL string
	novels  []Novel
	byKey   map[string]int
	roles   map[string]string
}

// New validates novels and builds a Catalog. Titles and aliases are matched
// case-insensitively with whitespace collapsed and must be unique.
func New(baseURL string, novels []Novel, roles map[string]string) (*Catalog, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Catalog{
		baseURL: baseURL,
		novels:  make([]Novel, 0, len(novels)),
		byKey:   make(map[string]int, len(novels)),
		roles:   make(map[string]string, len(roles)),
	}
	for translator, role := range roles {
		c.roles[strings.TrimSpace(translator)] = strings.TrimSpace(role)
	}
	for _, n := range novels {
		n.Title = strings.TrimSpace(n.Title)
		n.Translator = strings.TrimSpace(n.Translator)
		if n.Title == "" {
			return nil, fmt.Errorf("novel with empty title (translator %q)", n.Translator)
		}
		idx := len(c.novels)
		for _, name := range append([]string{n.Title}, n.Aliases...) {
			k := key(name)
			if k == "" {
				continue
			}
			if prev, ok := c.byKey[k]; ok && prev != idx {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateTitle, name)
			}
			c.byKey[k] = idx
		}
		c.novels = append(c.novels, n)
	}
	return c, nil
}

func key(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func (c *Catalog) lookup(title string) (Novel, bool) {
	if c == nil {
		return Novel{}, false
	}
	idx, ok := c.byKey[key(title)]
	if !ok {
		return Novel{}, false
	}
	return c.novels[idx], true
}

// Len returns the number of tracked novels.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.novels)
}

// Novels returns a copy of the tracked novels in catalog order.
func (c *Catalog) Novels() []Novel {
	if c == nil {
		return nil
	}
	out := make([]Novel, len(c.novels))
	copy(out, c.novels)
	return out
}

// Entries returns the pipeline inputs in catalog order.
func (c *Catalog) Entries() []crawler.CatalogEntry {
	if c == nil {
		return nil
	}
	entries := make([]crawler.CatalogEntry, 0, len(c.novels))
	for _, n := range c.novels {
		entries = append(entries, crawler.CatalogEntry{
			Title:     n.Title,
			SourceURL: c.ResolveSourceURL(n.Title),
		})
	}
	return entries
}

// Roles returns a copy of the translator mention roles.
func (c *Catalog) Roles() map[string]string {
	out := map[string]string{}
	if c == nil {
		return out
	}
	for k, v := range c.roles {
		out[k] = v
	}
	return out
}

// Translators maps each translator to its titles, in catalog order.
func (c *Catalog) Translators() map[string][]string {
	out := map[string][]string{}
	if c == nil {
		return out
	}
	for _, n := range c.novels {
		if n.Translator == "" {
			continue
		}
		out[n.Translator] = append(out[n.Translator], n.Title)
	}
	return out
}

// ResolveTranslator returns the translator of title or one of its aliases.
func (c *Catalog) ResolveTranslator(title string) (string, bool) {
	n, ok := c.lookup(title)
	if !ok || n.Translator == "" {
		return "", false
	}
	return n.Translator, true
}

// ResolveCoverImage returns the cover URL for title, or "".
func (c *Catalog) ResolveCoverImage(title string) string {
	n, _ := c.lookup(title)
	return n.CoverImage
}

// ResolveMentionRole returns the mention token for translator, or "".
func (c *Catalog) ResolveMentionRole(translator string) string {
	if c == nil {
		return ""
	}
	return c.roles[strings.TrimSpace(translator)]
}

// IsAdult reports whether title is flagged as adult content.
func (c *Catalog) IsAdult(title string) bool {
	n, _ := c.lookup(title)
	return n.Adult
}

// ResolveSourceURL prefers the manual override and otherwise derives the URL
// from the slugified title.
func (c *Catalog) ResolveSourceURL(title string) string {
	if n, ok := c.lookup(title); ok && strings.TrimSpace(n.SourceURL) != "" {
		return strings.TrimSpace(n.SourceURL)
	}
	base := DefaultBaseURL
	if c != nil {
		base = c.baseURL
	}
	return base + Slugify(title) + "/"
}
