package feed

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	summaryMaxLength     = 250
	summaryMinSentence   = 20
	summaryMaxSentences  = 3
	summaryMinCutOffset  = 100
	summaryEllipsis      = "..."
	emptyContentTemplate = "%s. This article discusses recent developments in artificial intelligence and technology."
	noSentenceTemplate   = "%s. Read the full article for more details."
)

var (
	htmlTagPattern  = regexp.MustCompile(`<[^>]*>`)
	sentencePattern = regexp.MustCompile(`[.!?]\s+`)
)

type Summarizer struct{}

func NewSummarizer() *Summarizer {
	return &Summarizer{}
}

// Run builds an extractive summary of at most three sentences. The result is
// never empty and never longer than 253 characters.
func (s *Summarizer) Run(content, title string) string {
	if strings.TrimSpace(content) == "" {
		return s.truncate(fmt.Sprintf(emptyContentTemplate, title))
	}

	cleaned := CleanText(content)
	sentences := s.splitSentences(cleaned)
	if len(sentences) == 0 {
		return s.truncate(fmt.Sprintf(noSentenceTemplate, title))
	}

	if len(sentences) > summaryMaxSentences {
		sentences = sentences[:summaryMaxSentences]
	}

	summary := strings.TrimSpace(strings.Join(sentences, ". "))
	if !endsWithTerminal(summary) {
		summary += "."
	}

	return s.truncate(summary)
}

// CleanText strips HTML tags and collapses whitespace.
func CleanText(content string) string {
	stripped := htmlTagPattern.ReplaceAllString(content, " ")
	return strings.Join(strings.Fields(stripped), " ")
}

func (s *Summarizer) splitSentences(text string) []string {
	var sentences []string

	start := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		// keep the punctuation, drop the whitespace that follows it
		sentences = s.appendSentence(sentences, text[start:loc[0]+1])
		start = loc[1]
	}
	sentences = s.appendSentence(sentences, text[start:])

	return sentences
}

func (s *Summarizer) appendSentence(sentences []string, sentence string) []string {
	if len([]rune(strings.TrimSpace(sentence))) > summaryMinSentence {
		return append(sentences, sentence)
	}
	return sentences
}

func (s *Summarizer) truncate(summary string) string {
	runes := []rune(summary)
	if len(runes) <= summaryMaxLength {
		return summary
	}

	truncated := string(runes[:summaryMaxLength])
	if lastPeriod := strings.LastIndex(truncated, "."); lastPeriod >= 0 && len([]rune(truncated[:lastPeriod])) > summaryMinCutOffset {
		return truncated[:lastPeriod+1]
	}

	return truncated + summaryEllipsis
}

func endsWithTerminal(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}
