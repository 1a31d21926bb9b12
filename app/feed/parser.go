package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
	now          func() time.Time
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		now:          time.Now,
	}
}

// Run parses an RSS or Atom document into candidates in feed order. Entries
// without a link are dropped.
func (p *Parser) Run(data []byte) ([]Candidate, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	fetchedAt := p.now().UTC()
	candidates := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		candidate := p.normalizeItem(item, fetchedAt)
		if candidate.Link == "" {
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, fetchedAt time.Time) Candidate {
	candidate := Candidate{
		Title:       cmp.Or(strings.TrimSpace(item.Title), UntitledTitle),
		Link:        strings.TrimSpace(item.Link),
		PublishedAt: fetchedAt,
		Content:     cmp.Or(CleanText(item.Description), strings.TrimSpace(item.Content)),
		HTML:        cmp.Or(item.Content, item.Description),
		Categories:  item.Categories,
	}

	if item.PublishedParsed != nil {
		candidate.PublishedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		candidate.PublishedAt = item.UpdatedParsed.UTC()
	}

	candidate.ImageURL = p.extractImage(item, candidate.HTML)

	return candidate
}

// extractImage prefers an image enclosure, then media:content, then the first
// <img> in the item HTML.
func (p *Parser) extractImage(item *gofeed.Item, html string) string {
	for _, enclosure := range item.Enclosures {
		if enclosure != nil && enclosure.URL != "" && strings.HasPrefix(strings.ToLower(enclosure.Type), "image/") {
			return enclosure.URL
		}
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, content := range media["content"] {
			if url := content.Attrs["url"]; url != "" {
				return url
			}
		}
	}

	return FirstImage(html)
}

// FirstImage returns the src of the first <img> element in an HTML fragment.
func FirstImage(html string) string {
	if !strings.Contains(strings.ToLower(html), "<img") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}
