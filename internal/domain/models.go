// Package domain defines the core types shared by the persistence, service
// and transport layers: discovered candidate items, the quota state, the
// scheduler's gate reasons and generated response content.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedItem is returned by CandidateItem.Validate when a collaborator
// produced an item that does not have the required shape.
var ErrMalformedItem = errors.New("malformed candidate item")

// CandidateItem is a unit of content discovered from an external account.
// Items are produced by the content source and are never mutated or persisted
// by the core beyond their identifier.
//
// Fields:
//   - ID: identifier unique per source (e.g. a post shortcode).
//   - Account: the originating account handle.
//   - URL: canonical reference passed to the publisher.
//   - Text: body used for relevance filtering and generation.
//   - PostedAt: discovery timestamp (when the item was published upstream).
//   - AgeHours: age reported by the source; used when PostedAt is zero.
//   - Likes / Comments: engagement counters.
type CandidateItem struct {
	ID       string    `json:"id"`
	Account  string    `json:"account"`
	URL      string    `json:"url"`
	Text     string    `json:"text"`
	PostedAt time.Time `json:"posted_at"`
	AgeHours float64   `json:"age_hours"`
	Likes    int64     `json:"likes"`
	Comments int64     `json:"comments"`
}

// Validate checks the item's shape at the content source boundary.
// An empty Text is allowed here; relevance filtering rejects it later.
func (c CandidateItem) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: empty id", ErrMalformedItem)
	case strings.TrimSpace(c.Account) == "":
		return fmt.Errorf("%w: item %s has no account", ErrMalformedItem, c.ID)
	case c.AgeHours < 0:
		return fmt.Errorf("%w: item %s has negative age", ErrMalformedItem, c.ID)
	case c.Likes < 0 || c.Comments < 0:
		return fmt.Errorf("%w: item %s has negative engagement counters", ErrMalformedItem, c.ID)
	}
	return nil
}

// Age returns how old the item is at now. PostedAt wins over AgeHours.
func (c CandidateItem) Age(now time.Time) time.Duration {
	if !c.PostedAt.IsZero() {
		if d := now.Sub(c.PostedAt); d > 0 {
			return d
		}
		return 0
	}
	return time.Duration(c.AgeHours * float64(time.Hour))
}

// GeneratedContent is a generated response plus its derived validity.
// It is ephemeral and never persisted.
type GeneratedContent struct {
	Text   string
	Valid  bool
	Reason string // why the text was rejected; empty when Valid
}

// DateLayout is the calendar-day format used for quota rollover.
const DateLayout = "2006-01-02"

// QuotaState is the durable scheduler record.
//
// Invariants:
//   - ActionsToday and TotalActions are never negative.
//   - TotalActions is monotonic across days.
//   - ActionsToday resets to 0 once per calendar-day rollover.
type QuotaState struct {
	Date           string     // calendar day (DateLayout) the counter belongs to
	ActionsToday   int        // actions taken on Date
	TotalActions   int        // actions taken across all days
	LastActionTime *time.Time // nil until the first action
}

// GateReason explains a scheduler gate decision.
type GateReason string

const (
	// Eligible means a new action is permitted now.
	Eligible GateReason = "eligible"
	// BlockedDaily means today's quota is exhausted.
	BlockedDaily GateReason = "blocked_daily"
	// BlockedCooldown means the adaptive cooldown has not elapsed yet.
	BlockedCooldown GateReason = "blocked_cooldown"
)
