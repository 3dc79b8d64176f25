// Package search holds the relevance rules applied to discovered items before
// any response is generated for them.
//
// Matching is Unicode-aware: both keywords and item text are case-folded with
// golang.org/x/text/cases, so "CAFÉ" matches "café". A matcher is immutable after construction and safe for
// concurrent use. The package does no logging.
package search

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Matcher decides whether an item's text is relevant.
type Matcher interface {
	Match(text string) bool
}

// Option configures a KeywordMatcher.
type Option func(*config)

type config struct {
	wholeWords bool
}

func defaultConfig() config {
	return config{wholeWords: false}
}

// WithWholeWords makes single-word keywords match whole tokens only, so
// "art" no longer matches "party". Multi-word keywords still match as
// phrases.
func WithWholeWords() Option {
	return func(c *config) { c.wholeWords = true }
}

// KeywordMatcher accepts text containing at least one configured keyword.
// With no keywords configured every non-empty text is accepted.
type KeywordMatcher struct {
	cfg      config
	keywords []string // folded, trimmed, de-duplicated
}

// NewKeywordMatcher builds a matcher from raw keywords. Blank entries are
// ignored.
func NewKeywordMatcher(keywords []string, opts ...Option) *KeywordMatcher {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		f := fold(normalizeWhitespace(strings.TrimSpace(k)))
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return &KeywordMatcher{cfg: cfg, keywords: out}
}

// Keywords returns the folded keyword set in configuration order.
func (m *KeywordMatcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Match reports whether text is relevant. Empty or whitespace-only text is
// never relevant.
func (m *KeywordMatcher) Match(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if len(m.keywords) == 0 {
		return true
	}
	t = fold(normalizeWhitespace(t))

	var toks map[string]struct{}
	for _, k := range m.keywords {
		if m.cfg.wholeWords && !strings.Contains(k, " ") {
			if toks == nil {
				toks = tokenize(t)
			}
			if _, ok := toks[k]; ok {
				return true
			}
			continue
		}
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// folder is stateless and safe for concurrent use.
var folder = cases.Fold()

func fold(s string) string {
	return folder.String(s)
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func tokenize(s string) map[string]struct{} {
	words := wordRE.FindAllString(s, -1)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// normalizeWhitespace collapses runs of blanks (including newlines) to one
// space so phrase keywords match across line breaks.
func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
