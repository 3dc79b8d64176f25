package repo

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reply-bot/internal/domain"
)

// quotaDoc is the on-disk shape of the quota state.
type quotaDoc struct {
	ActionsTakenToday int     `json:"actions_taken_today"`
	TotalActions      int     `json:"total_actions"`
	LastActionTime    *string `json:"last_action_time,omitempty"`
	LastResetDate     string  `json:"last_reset_date"`
}

// QuotaFile reads and writes the scheduler's quota state. The scheduler is
// its only caller and the only writer of the file.
type QuotaFile struct {
	path string
}

// NewQuotaFile returns a store bound to path. Nothing is read until Load.
func NewQuotaFile(path string) *QuotaFile { return &QuotaFile{path: path} }

// Path returns the backing file path.
func (q *QuotaFile) Path() string { return q.path }

// Load returns the persisted state. A missing or unparsable file yields the
// zero state (no actions, no last action time) and no error. Negative
// counters and an unparsable timestamp are repaired the same way.
func (q *QuotaFile) Load() domain.QuotaState {
	var doc quotaDoc
	found, err := readJSON(q.path, &doc)
	if err != nil {
		log.Warn().Err(err).Str("path", q.path).Msg("quota state unreadable; starting fresh")
		return domain.QuotaState{}
	}
	if !found {
		return domain.QuotaState{}
	}

	st := domain.QuotaState{
		Date:         doc.LastResetDate,
		ActionsToday: max(doc.ActionsTakenToday, 0),
		TotalActions: max(doc.TotalActions, 0),
	}
	if st.TotalActions < st.ActionsToday {
		st.TotalActions = st.ActionsToday
	}
	if _, err := time.Parse(domain.DateLayout, st.Date); err != nil {
		st.Date = ""
	}
	if doc.LastActionTime != nil && *doc.LastActionTime != "" {
		if ts, err := parseTimestamp(*doc.LastActionTime); err == nil {
			st.LastActionTime = &ts
		} else {
			log.Warn().Str("value", *doc.LastActionTime).Msg("quota state: ignoring unparsable last_action_time")
		}
	}
	return st
}

// Save replaces the persisted state with st.
func (q *QuotaFile) Save(st domain.QuotaState) error {
	doc := quotaDoc{
		ActionsTakenToday: st.ActionsToday,
		TotalActions:      st.TotalActions,
		LastResetDate:     st.Date,
	}
	if st.LastActionTime != nil {
		s := st.LastActionTime.Format(time.RFC3339Nano)
		doc.LastActionTime = &s
	}
	if err := writeJSONAtomic(q.path, doc); err != nil {
		return fmt.Errorf("quota: write %s: %w", q.path, err)
	}
	return nil
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO-8601 form written by
// the previous bot (interpreted in local time).
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
