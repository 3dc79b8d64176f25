// Package services – Scheduler
//
// Scheduler is the quota and backoff gate. It owns the persisted QuotaState
// and answers whether a new action may happen now. The daily counter rolls
// over lazily on the first gate check of a new local calendar day, and the
// cooldown between actions grows as the day's quota fills:
//
//	required = base * (1 + (today/max) * scale)
//
// Every state change is persisted before the call returns. A failed write
// leaves the in-memory state untouched and returns an error wrapping
// ErrPersist.
package services

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/observability"
)

// Decision is the result of a gate check.
type Decision struct {
	Allowed       bool              `json:"allowed"`
	Reason        domain.GateReason `json:"reason"`
	ActionsToday  int               `json:"actions_today"`
	MaxPerDay     int               `json:"max_per_day"`
	RequiredDelay time.Duration     `json:"required_delay"`
	Remaining     time.Duration     `json:"remaining"`
	// NextEligibleAt is zero when Allowed.
	NextEligibleAt time.Time `json:"next_eligible_at,omitempty"`
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the zone that defines calendar days. Defaults to
// time.Local.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Scheduler gates actions by daily quota and adaptive cooldown.
type Scheduler struct {
	store     QuotaStore
	baseDelay time.Duration
	scale     float64
	now       func() time.Time
	loc       *time.Location

	mu sync.Mutex
	st domain.QuotaState
}

// NewScheduler loads the persisted state from store.
func NewScheduler(store QuotaStore, baseDelay time.Duration, scale float64, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:     store,
		baseDelay: baseDelay,
		scale:     scale,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	s.st = store.Load()
	observability.SetQuota(s.st.ActionsToday, s.st.TotalActions)
	return s
}

// RequiredDelay is the cooldown after the most recent action when
// actionsToday actions were already taken.
func (s *Scheduler) RequiredDelay(actionsToday, maxPerDay int) time.Duration {
	if maxPerDay <= 0 {
		return s.baseDelay
	}
	ratio := float64(actionsToday) / float64(maxPerDay)
	return time.Duration(math.Round(float64(s.baseDelay) * (1 + ratio*s.scale)))
}

// CanAct reports whether an action is permitted now. A single timestamp is
// used for both the rollover and the cooldown check. maxPerDay <= 0 always
// blocks.
func (s *Scheduler) CanAct(maxPerDay int) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := s.rolloverLocked(now); err != nil {
		return Decision{}, err
	}

	d := Decision{ActionsToday: s.st.ActionsToday, MaxPerDay: maxPerDay}
	if maxPerDay <= 0 || s.st.ActionsToday >= maxPerDay {
		d.Reason = domain.BlockedDaily
		d.NextEligibleAt = s.nextDay(now)
		d.Remaining = d.NextEligibleAt.Sub(now)
		return d, nil
	}

	d.RequiredDelay = s.RequiredDelay(s.st.ActionsToday, maxPerDay)
	if last := s.st.LastActionTime; last != nil {
		if elapsed := now.Sub(*last); elapsed < d.RequiredDelay {
			d.Reason = domain.BlockedCooldown
			d.Remaining = d.RequiredDelay - elapsed
			d.NextEligibleAt = last.Add(d.RequiredDelay)
			return d, nil
		}
	}

	d.Allowed = true
	d.Reason = domain.Eligible
	return d, nil
}

// RecordAction counts one successful publish. Call it only after the
// publish really happened.
func (s *Scheduler) RecordAction() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := s.rolloverLocked(now); err != nil {
		return err
	}
	next := s.st
	next.ActionsToday++
	next.TotalActions++
	ts := now
	next.LastActionTime = &ts
	if err := s.store.Save(next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.st = next
	observability.SetQuota(next.ActionsToday, next.TotalActions)
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Scheduler) Snapshot() domain.QuotaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st
	if st.LastActionTime != nil {
		ts := *st.LastActionTime
		st.LastActionTime = &ts
	}
	return st
}

// NextEligibleAt estimates when the gate opens again, without rolling the
// day over or persisting anything. It returns now when the gate is open.
func (s *Scheduler) NextEligibleAt(maxPerDay int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	today := s.st.ActionsToday
	if s.st.Date != s.dateOf(now) {
		today = 0
	}
	if maxPerDay <= 0 || today >= maxPerDay {
		return s.nextDay(now)
	}
	if last := s.st.LastActionTime; last != nil {
		if at := last.Add(s.RequiredDelay(today, maxPerDay)); at.After(now) {
			return at
		}
	}
	return now
}

// LogStats writes the action statistics block.
func (s *Scheduler) LogStats(maxPerDay int) {
	st := s.Snapshot()
	next := s.NextEligibleAt(maxPerDay)
	ev := log.Info().
		Str("component", "scheduler").
		Int("actions_today", st.ActionsToday).
		Int("max_per_day", maxPerDay).
		Int("remaining_today", max(maxPerDay-st.ActionsToday, 0)).
		Int("total_actions", st.TotalActions).
		Time("next_eligible_at", next)
	if st.LastActionTime != nil {
		ev = ev.Time("last_action_time", *st.LastActionTime)
	}
	ev.Msg("action statistics")
}

// rolloverLocked resets the daily counter when now falls on a new calendar
// day and persists the reset immediately.
func (s *Scheduler) rolloverLocked(now time.Time) error {
	today := s.dateOf(now)
	if s.st.Date == today {
		return nil
	}
	next := s.st
	next.Date = today
	next.ActionsToday = 0
	if err := s.store.Save(next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if s.st.Date != "" {
		log.Info().Str("component", "scheduler").
			Str("from", s.st.Date).Str("to", today).
			Int("previous_actions", s.st.ActionsToday).
			Msg("daily quota rolled over")
	}
	s.st = next
	observability.SetQuota(next.ActionsToday, next.TotalActions)
	return nil
}

func (s *Scheduler) dateOf(t time.Time) string {
	return t.In(s.loc).Format(domain.DateLayout)
}

// nextDay returns local midnight after t.
func (s *Scheduler) nextDay(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, s.loc)
}
