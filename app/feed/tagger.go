package feed

import (
	"regexp"
	"sort"
	"strings"
)

type Tag string

const (
	TagLegal      Tag = "LEGAL"
	TagModels     Tag = "MODELS"
	TagTools      Tag = "TOOLS"
	TagBusiness   Tag = "BUSINESS"
	TagCreator    Tag = "CREATOR"
	TagFilmmaking Tag = "FILMMAKING"
	TagResearch   Tag = "RESEARCH"
)

const (
	maxTags         = 2
	defaultTagBonus = 2
	FallbackTag     = TagResearch
)

// Tags lists the vocabulary in enumeration order. Ties between equal scores
// resolve in this order.
var Tags = []Tag{TagLegal, TagModels, TagTools, TagBusiness, TagCreator, TagFilmmaking, TagResearch}

var tagKeywords = map[Tag][]string{
	TagLegal: {
		"regulation", "regulatory", "law", "legal", "compliance", "policy", "governance",
		"eu ai act", "copyright", "lawsuit", "legislation", "ethical", "safety",
		"oversight", "audit", "liability", "privacy", "gdpr", "ban", "restrict",
	},
	TagModels: {
		"gpt", "llm", "language model", "foundation model", "transformer", "neural network",
		"deep learning", "machine learning", "model", "training", "fine-tuning",
		"parameters", "inference", "benchmark", "performance", "accuracy",
		"claude", "gemini", "llama", "mistral", "anthropic", "openai",
	},
	TagTools: {
		"tool", "platform", "software", "api", "sdk", "integration", "plugin",
		"extension", "automation", "workflow", "product", "feature", "release",
		"launch", "update", "version", "github", "open source", "library",
	},
	TagBusiness: {
		"funding", "investment", "valuation", "revenue", "profit", "ipo", "acquisition",
		"merger", "partnership", "collaboration", "enterprise", "startup", "unicorn",
		"market", "industry", "commercial", "business", "strategy", "growth",
		"microsoft", "google", "amazon", "meta", "apple", "nvidia",
	},
	TagCreator: {
		"artist", "designer", "creator", "content", "creative", "art", "illustration",
		"graphic design", "music", "audio", "voice", "podcast", "writing",
		"copywriting", "marketing", "social media", "influencer", "brand",
	},
	TagFilmmaking: {
		"video", "film", "movie", "cinema", "animation", "motion", "visual effects",
		"vfx", "cgi", "rendering", "3d", "camera", "editing", "production",
		"director", "scene", "frame", "shot", "storyboard", "generative video",
	},
	TagResearch: {
		"research", "paper", "study", "experiment", "arxiv", "publication",
		"journal", "conference", "neurips", "icml", "cvpr", "acl", "breakthrough",
		"discovery", "innovation", "novel", "method", "algorithm", "architecture",
		"university", "lab", "scientist", "phd", "academic",
	},
}

type Tagger struct {
	patterns map[Tag][]*regexp.Regexp
}

func NewTagger() *Tagger {
	patterns := make(map[Tag][]*regexp.Regexp, len(tagKeywords))
	for tag, keywords := range tagKeywords {
		for _, keyword := range keywords {
			patterns[tag] = append(patterns[tag], regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(keyword)+`\b`))
		}
	}
	return &Tagger{patterns: patterns}
}

// Run scores title and content against the keyword lexicons and returns one
// or two tags. Source default tags add a fixed bonus to their category.
func (t *Tagger) Run(title, content string, defaultTags []string) []Tag {
	text := strings.ToLower(title + " " + content)

	scores := make(map[Tag]int, len(Tags))
	for _, tag := range Tags {
		for _, pattern := range t.patterns[tag] {
			scores[tag] += len(pattern.FindAllStringIndex(text, -1))
		}
	}

	for _, defaultTag := range defaultTags {
		if tag, ok := ParseTag(defaultTag); ok {
			scores[tag] += defaultTagBonus
		}
	}

	ranked := make([]Tag, 0, len(Tags))
	for _, tag := range Tags {
		if scores[tag] > 0 {
			ranked = append(ranked, tag)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})

	if len(ranked) > maxTags {
		ranked = ranked[:maxTags]
	}
	if len(ranked) > 0 {
		return ranked
	}

	return t.fallback(defaultTags)
}

func (t *Tagger) fallback(defaultTags []string) []Tag {
	var tags []Tag
	for _, defaultTag := range defaultTags {
		if tag, ok := ParseTag(defaultTag); ok {
			tags = append(tags, tag)
		}
		if len(tags) == maxTags {
			break
		}
	}

	if len(tags) == 0 {
		return []Tag{FallbackTag}
	}
	return tags
}

// ParseTag maps a case-insensitive tag name onto the vocabulary.
func ParseTag(name string) (Tag, bool) {
	candidate := Tag(strings.ToUpper(strings.TrimSpace(name)))
	for _, tag := range Tags {
		if tag == candidate {
			return tag, true
		}
	}
	return "", false
}

func TagStrings(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = string(tag)
	}
	return out
}
