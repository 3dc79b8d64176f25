package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-reply-bot/internal/domain"
)

// ContentRules decide whether generated text may be published.
type ContentRules struct {
	MinRunes   int
	MaxRunes   int
	Disallowed []string // matched case-insensitively as substrings
}

// Check trims text and validates it. Reason is set when the text is
// rejected.
func (r ContentRules) Check(text string) domain.GeneratedContent {
	t := strings.TrimSpace(text)
	out := domain.GeneratedContent{Text: t}

	n := utf8.RuneCountInString(t)
	switch {
	case n == 0:
		out.Reason = "empty"
		return out
	case r.MinRunes > 0 && n < r.MinRunes:
		out.Reason = fmt.Sprintf("too short (%d < %d runes)", n, r.MinRunes)
		return out
	case r.MaxRunes > 0 && n > r.MaxRunes:
		out.Reason = fmt.Sprintf("too long (%d > %d runes)", n, r.MaxRunes)
		return out
	}

	fold := cases.Fold()
	ft := fold.String(t)
	for _, p := range r.Disallowed {
		if p == "" {
			continue
		}
		if strings.Contains(ft, fold.String(p)) {
			out.Reason = fmt.Sprintf("contains disallowed phrase %q", p)
			return out
		}
	}
	out.Valid = true
	return out
}
