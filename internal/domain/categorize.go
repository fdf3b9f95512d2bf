package domain

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

const (
	// Scoring weights
	ScoreKeywordMatch       = 1.0
	ScoreQuotedKeywordMatch = 0.5 // keyword found only in quoted content
	ScoreDomainMatch        = 2.0
	ScoreHandleMatch        = 2.0
	ScoreMediaMatch         = 1.0

	// DefaultCategoryThreshold is used when a rule leaves Threshold unset.
	DefaultCategoryThreshold = 1.0
)

// CategoryRule describes how a topical tag is recognized.
// Every heuristic contributes to one score; the tag is assigned when the
// score reaches Threshold.
type CategoryRule struct {
	Name       string   `yaml:"name"`
	Keywords   []string `yaml:"keywords,omitempty"`
	Domains    []string `yaml:"domains,omitempty"`
	Handles    []string `yaml:"handles,omitempty"`
	MediaTypes []string `yaml:"media_types,omitempty"`
	Threshold  float64  `yaml:"threshold,omitempty"`
}

// DefaultCategories is the built-in rule set used when no rules file is configured.
var DefaultCategories = []CategoryRule{
	{
		Name:     "programming",
		Keywords: []string{"golang", "rust", "python", "javascript", "typescript", "programming", "compiler", "refactor", "api", "open source", "kubernetes", "docker"},
		Domains:  []string{"github.com", "gitlab.com", "stackoverflow.com", "go.dev", "pkg.go.dev"},
	},
	{
		Name:     "ai",
		Keywords: []string{"ai", "llm", "gpt", "machine learning", "neural", "transformer", "embedding", "agents", "inference"},
		Domains:  []string{"huggingface.co", "arxiv.org", "openai.com", "anthropic.com"},
	},
	{
		Name:     "design",
		Keywords: []string{"design", "typography", "figma", "ux", "ui", "color palette", "illustration"},
		Domains:  []string{"dribbble.com", "behance.net", "figma.com"},
	},
	{
		Name:     "security",
		Keywords: []string{"security", "vulnerability", "cve", "exploit", "malware", "phishing", "encryption", "zero day"},
		Domains:  []string{"krebsonsecurity.com", "cve.org"},
	},
	{
		Name:     "science",
		Keywords: []string{"research", "paper", "physics", "biology", "astronomy", "study", "climate"},
		Domains:  []string{"nature.com", "science.org", "arxiv.org"},
	},
	{
		Name:      "business",
		Keywords:  []string{"startup", "founder", "revenue", "fundraising", "marketing", "saas", "pricing"},
		Threshold: 2.0,
	},
	{
		Name:       "video",
		Domains:    []string{"youtube.com", "youtu.be", "vimeo.com"},
		MediaTypes: []string{"video", "animated_gif"},
	},
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}#+]+`)

// Categorizer assigns topical tags from bookmark content.
// It is stateless after construction and safe for concurrent use.
type Categorizer struct {
	rules []CategoryRule
}

// NewCategorizer normalizes rules (lowercased, blank entries dropped).
// Rules sharing a name are merged by union.
func NewCategorizer(rules []CategoryRule) *Categorizer {
	byName := make(map[string]*CategoryRule)
	order := make([]string, 0, len(rules))
	for _, r := range rules {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			continue
		}
		existing, ok := byName[name]
		if !ok {
			existing = &CategoryRule{Name: name, Threshold: r.Threshold}
			byName[name] = existing
			order = append(order, name)
		}
		existing.Keywords = append(existing.Keywords, normalizeList(r.Keywords, normalizePhrase)...)
		existing.Domains = append(existing.Domains, normalizeList(r.Domains, normalizeHost)...)
		existing.Handles = append(existing.Handles, normalizeList(r.Handles, normalizeHandle)...)
		existing.MediaTypes = append(existing.MediaTypes, normalizeList(r.MediaTypes, strings.ToLower)...)
		if r.Threshold > existing.Threshold {
			existing.Threshold = r.Threshold
		}
	}

	normalized := make([]CategoryRule, 0, len(order))
	for _, name := range order {
		r := byName[name]
		if r.Threshold <= 0 {
			r.Threshold = DefaultCategoryThreshold
		}
		normalized = append(normalized, *r)
	}
	return &Categorizer{rules: normalized}
}

// Categorize returns the sorted, de-duplicated set of categories for b.
// Identical input always yields identical output.
func (c *Categorizer) Categorize(b RawBookmark) []string {
	if c == nil || len(c.rules) == 0 {
		return nil
	}
	doc := newDocument(b)

	seen := make(map[string]bool)
	tags := make([]string, 0, 2)
	for _, rule := range c.rules {
		if seen[rule.Name] {
			continue
		}
		if doc.score(rule) >= rule.Threshold {
			seen[rule.Name] = true
			tags = append(tags, rule.Name)
		}
	}
	sort.Strings(tags)
	return tags
}

// Score exposes the raw score of b against a single rule.
func (c *Categorizer) Score(b RawBookmark, name string) float64 {
	if c == nil {
		return 0
	}
	name = strings.ToLower(strings.TrimSpace(name))
	doc := newDocument(b)
	for _, rule := range c.rules {
		if rule.Name == name {
			return doc.score(rule)
		}
	}
	return 0
}

// document is the tokenized view of a bookmark used for scoring.
type document struct {
	text   string // " word word ... " padded for whole-word phrase lookups
	quoted string
	hosts  []string
	handle string
	media  map[string]bool
}

func newDocument(b RawBookmark) *document {
	d := &document{
		text:   tokenize(b.Text),
		quoted: tokenize(b.QuotedText),
		handle: normalizeHandle(b.AuthorHandle),
		media:  make(map[string]bool, len(b.Media)),
	}
	for _, raw := range b.URLs {
		if host := hostOf(raw); host != "" {
			d.hosts = append(d.hosts, host)
		}
	}
	for _, m := range b.Media {
		d.media[strings.ToLower(m.Type)] = true
	}
	return d
}

func (d *document) score(rule CategoryRule) float64 {
	var total float64

	for _, kw := range rule.Keywords {
		needle := " " + kw + " "
		switch {
		case strings.Contains(d.text, needle):
			total += ScoreKeywordMatch
		case strings.Contains(d.quoted, needle):
			total += ScoreQuotedKeywordMatch
		}
	}

	for _, domain := range rule.Domains {
		for _, host := range d.hosts {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				total += ScoreDomainMatch
				break
			}
		}
	}

	if d.handle != "" {
		for _, h := range rule.Handles {
			if h == d.handle {
				total += ScoreHandleMatch
				break
			}
		}
	}

	for _, mt := range rule.MediaTypes {
		if d.media[mt] {
			total += ScoreMediaMatch
		}
	}

	return total
}

// tokenize lowercases s and joins its words with single spaces, padded on both ends.
func tokenize(s string) string {
	words := wordRe.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return ""
	}
	return " " + strings.Join(words, " ") + " "
}

func normalizePhrase(s string) string {
	return strings.TrimSpace(tokenize(s))
}

func normalizeHost(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "www.")
}

func normalizeHandle(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "@")
}

func normalizeList(in []string, fn func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if n := fn(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// hostOf extracts the host of a URL. Bare "example.com/path" links, common
// in post text, are read as https.
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}
