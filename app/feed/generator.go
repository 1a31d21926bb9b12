package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/framefuture/newsdeck/app/cfg"
	"github.com/framefuture/newsdeck/app/database"
)

const (
	channelTitle       = "Newsdeck"
	channelDescription = "Deduplicated, tagged and summarized AI news from %d sources"
)

// Generator renders stored articles as an RSS 2.0 document.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(articles []database.Article, sourceCount int) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">`)
	buf.WriteString("\n  <channel>\n")

	baseURL := g.baseURL()

	g.writeElement(&buf, "title", channelTitle, 4)
	g.writeElement(&buf, "link", baseURL, 4)
	g.writeElement(&buf, "description", fmt.Sprintf(channelDescription, sourceCount), 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(baseURL+"/feed.xml")))

	lastBuildDate := time.Now().In(time.Local)
	if len(articles) > 0 {
		lastBuildDate = articles[0].PublishedAt
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Newsdeck/%s", cfg.Get().Version), 4)

	for _, article := range articles {
		g.writeItem(&buf, article)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) baseURL() string {
	if cfg.Get().BaseUrl != "" {
		return strings.TrimSuffix(cfg.Get().BaseUrl, "/")
	}
	return fmt.Sprintf("http://localhost:%s", cfg.Get().Port)
}

func (g *Generator) writeItem(buf *bytes.Buffer, article database.Article) {
	buf.WriteString("    <item>\n")

	guid := article.SourceURL
	if guid == "" {
		guid = article.ID
	}
	if guid != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(guid)))
		xml.EscapeText(buf, []byte(guid))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", article.Title, 6)
	g.writeElement(buf, "link", article.SourceURL, 6)
	g.writeElement(buf, "description", article.Summary, 6)
	g.writeElement(buf, "pubDate", article.PublishedAt.Format(time.RFC1123Z), 6)

	if article.SourceName != "" {
		g.writeElement(buf, "source", article.SourceName, 6)
	}

	for _, tag := range article.Tags {
		if tag != "" {
			g.writeElement(buf, "category", tag, 6)
		}
	}

	if article.ImageURL != nil && *article.ImageURL != "" {
		buf.WriteString(fmt.Sprintf("      <media:content url=\"%s\" medium=\"image\" />\n",
			html.EscapeString(*article.ImageURL)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
