package extract

import "github.com/PuerkitoBio/goquery"

// Node is a chapter element together with the label of its volume group.
type Node struct {
	Selection   *goquery.Selection
	VolumeLabel string
}

// Strategy is one page layout the extractor understands.
type Strategy interface {
	Name() string
	// Detect reports whether the document uses this layout.
	Detect(doc *goquery.Document) bool
	// Nodes returns chapter elements in document order.
	Nodes(doc *goquery.Document) []Node
}

const (
	volumeSelector    = "ul.version-chap.volumns > li.parent.has-child"
	volumeLabelSel    = "a.has-child"
	volumeChaptersSel = "ul.sub-chap-list " + ChapterSelector
)

var flatContainers = []string{
	"ul.version-chap.no-volumn",
	"div.listing-chapters_wrap",
	"ul.version-chap",
}

// VolumeGrouped handles pages that nest chapter lists under volume headings.
type VolumeGrouped struct{}

// Name implements Strategy.
func (VolumeGrouped) Name() string { return "volume" }

// Detect implements Strategy.
func (VolumeGrouped) Detect(doc *goquery.Document) bool {
	return doc.Find(volumeSelector).Length() > 0
}

// Nodes implements Strategy.
func (VolumeGrouped) Nodes(doc *goquery.Document) []Node {
	var nodes []Node
	doc.Find(volumeSelector).Each(func(_ int, volume *goquery.Selection) {
		label := collapse(volume.Find(volumeLabelSel).First().Text())
		volume.Find(volumeChaptersSel).Each(func(_ int, chapter *goquery.Selection) {
			nodes = append(nodes, Node{Selection: chapter, VolumeLabel: label})
		})
	})
	return nodes
}

// Flat handles a single chapter list without volume grouping.
type Flat struct{}

// Name implements Strategy.
func (Flat) Name() string { return "flat" }

// Detect implements Strategy.
func (Flat) Detect(doc *goquery.Document) bool {
	return doc.Find(ChapterSelector).Length() > 0
}

// Nodes implements Strategy.
func (Flat) Nodes(doc *goquery.Document) []Node {
	sel := doc.Find(ChapterSelector)
	for _, container := range flatContainers {
		if scoped := doc.Find(container + " " + ChapterSelector); scoped.Length() > 0 {
			sel = scoped
			break
		}
	}
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, chapter *goquery.Selection) {
		nodes = append(nodes, Node{Selection: chapter})
	})
	return nodes
}
