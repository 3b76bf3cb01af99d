package feed

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

// DateLayout is RFC 822 with a numeric zone; times are always rendered in UTC.
const DateLayout = "Mon, 02 Jan 2006 15:04:05 +0000"

// namespaces are declared on <rss> for downstream readers, in this order.
var namespaces = []struct{ prefix, uri string }{
	{"content", "http://purl.org/rss/1.0/modules/content/"},
	{"wfw", "http://wellformedweb.org/CommentAPI/"},
	{"dc", "http://purl.org/dc/elements/1.1/"},
	{"atom", "http://www.w3.org/2005/Atom"},
	{"sy", "http://purl.org/rss/1.0/modules/syndication/"},
	{"slash", "http://purl.org/rss/1.0/modules/slash/"},
	{"webfeeds", "http://www.webfeeds.org/rss/1.0"},
	{"georss", "http://www.georss.org/georss"},
	{"geo", "http://www.w3.org/2003/01/geo/wgs84_pos#"},
}

// Render writes the document as indented XML.
func Render(w io.Writer, doc Document) error {
	root := tree(doc)
	if err := root.WriteWithOptions(w,
		xmlquery.WithEmptyTagSupport(),
		xmlquery.WithIndentation("  "),
	); err != nil {
		return fmt.Errorf("render feed: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("render feed: %w", err)
	}
	return nil
}

// Marshal renders the document into memory.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tree(doc Document) *xmlquery.Node {
	root := &xmlquery.Node{Type: xmlquery.DocumentNode}

	decl := &xmlquery.Node{Type: xmlquery.DeclarationNode, Data: "xml"}
	xmlquery.AddAttr(decl, "version", "1.0")
	xmlquery.AddAttr(decl, "encoding", "utf-8")
	xmlquery.AddChild(root, decl)

	rss := element("rss")
	for _, ns := range namespaces {
		xmlquery.AddAttr(rss, "xmlns:"+ns.prefix, ns.uri)
	}
	xmlquery.AddAttr(rss, "version", "2.0")
	xmlquery.AddChild(root, rss)

	channel := element("channel")
	xmlquery.AddChild(rss, channel)
	xmlquery.AddChild(channel, text("title", doc.Channel.Title))
	xmlquery.AddChild(channel, text("link", doc.Channel.Link))
	xmlquery.AddChild(channel, text("description", doc.Channel.Description))
	xmlquery.AddChild(channel, text("lastBuildDate", formatDate(doc.LastBuildDate)))

	for _, rec := range doc.Items {
		xmlquery.AddChild(channel, item(rec))
	}
	return root
}

func item(rec crawler.ChapterRecord) *xmlquery.Node {
	n := element("item")
	xmlquery.AddChild(n, text("title", rec.NovelTitle))
	if rec.VolumeLabel != "" {
		xmlquery.AddChild(n, text("volume", rec.VolumeLabel))
	}
	xmlquery.AddChild(n, text("chaptername", rec.ChapterLabel))
	xmlquery.AddChild(n, text("nameextend", NameExtend(rec.ExtendedTitle)))
	xmlquery.AddChild(n, text("link", rec.Permalink))
	xmlquery.AddChild(n, cdata("description", rec.Synopsis))
	xmlquery.AddChild(n, text("category", Category(rec.IsAdult)))
	xmlquery.AddChild(n, text("translator", rec.Translator))
	xmlquery.AddChild(n, cdata("discord_role_id", rec.MentionRole))

	img := element("featuredImage")
	xmlquery.AddAttr(img, "url", rec.CoverImage)
	xmlquery.AddChild(n, img)

	if rec.CoinPrice != "" {
		xmlquery.AddChild(n, text("coin", rec.CoinPrice))
	}
	xmlquery.AddChild(n, text("pubDate", formatDate(rec.PublishedAt)))

	guid := text("guid", rec.GUID)
	xmlquery.AddAttr(guid, "isPermaLink", "false")
	xmlquery.AddChild(n, guid)
	return n
}

// NameExtend wraps a non-blank extended title in the *** marker.
func NameExtend(extended string) string {
	if strings.TrimSpace(extended) == "" {
		return ""
	}
	return "***" + extended + "***"
}

// Category maps the adult flag to the feed category.
func Category(adult bool) string {
	if adult {
		return "NSFW"
	}
	return "SFW"
}

func formatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func element(name string) *xmlquery.Node {
	return &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
}

// text always carries a child so empty values render as <x></x>, not <x/>.
func text(name, value string) *xmlquery.Node {
	n := element(name)
	xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.TextNode, Data: value})
	return n
}

// cdata splits any "]]>" so the section stays well formed.
func cdata(name, value string) *xmlquery.Node {
	n := element(name)
	parts := strings.Split(value, "]]>")
	for i, p := range parts {
		if i < len(parts)-1 {
			p += "]]"
		}
		if i > 0 {
			p = ">" + p
		}
		xmlquery.AddChild(n, &xmlquery.Node{Type: xmlquery.CharDataNode, Data: p})
	}
	return n
}
