// Package services – Pipeline
//
// Pipeline drives one processing cycle: gate, fetch, filter, then for each
// surviving candidate in discovery order generate, validate, re-check the
// gate and publish. The first successful publish is committed to the ledger
// and the scheduler and ends the cycle.
//
// Per-candidate failures (generation, validation, publish) are contained in
// the loop. A failed durable write of the ledger or quota state aborts the
// cycle with an error wrapping ErrPersist; RunCycle returns no other errors.
//
// Observability: every cycle gets an ID, a span, a metrics sample and a log
// line; every attempt is journaled when a Journal is configured.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/observability"
	"github.com/tbourn/go-reply-bot/internal/search"
)

// OutcomeKind classifies how a cycle ended.
type OutcomeKind string

const (
	OutcomeBlocked     OutcomeKind = "blocked"       // gate closed; see Reason
	OutcomeNothingToDo OutcomeKind = "nothing_to_do" // no candidates survived discovery and filtering
	OutcomeNoAction    OutcomeKind = "no_action"     // candidates tried, none published
	OutcomeActed       OutcomeKind = "acted"         // exactly one publish committed
	OutcomeBusy        OutcomeKind = "busy"          // another cycle was in flight
	OutcomeCancelled   OutcomeKind = "cancelled"     // ctx ended at a suspension point
	OutcomeAborted     OutcomeKind = "aborted"       // state could not be persisted
)

// Drop stages reported in metrics.
const (
	dropMalformed  = "malformed"
	dropDuplicate  = "duplicate"
	dropProcessed  = "processed"
	dropIrrelevant = "irrelevant"
	dropStale      = "stale"
	dropCapped     = "capped"
)

// Outcome summarizes one cycle.
type Outcome struct {
	CycleID        string            `json:"cycle_id,omitempty"`
	Kind           OutcomeKind       `json:"kind"`
	Reason         domain.GateReason `json:"reason,omitempty"`
	ItemID         string            `json:"item_id,omitempty"`
	Detail         string            `json:"detail,omitempty"`
	Fetched        int               `json:"fetched"`
	Candidates     int               `json:"candidates"`
	Attempts       int               `json:"attempts"`
	NextEligibleAt time.Time         `json:"next_eligible_at,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// PipelineConfig holds the per-cycle policy.
type PipelineConfig struct {
	MaxPerDay       int
	FreshnessWindow time.Duration // 0 disables the freshness filter
	MaxCandidates   int           // 0 means no cap

	SuccessPauseMin, SuccessPauseMax time.Duration
	FailurePauseMin, FailurePauseMax time.Duration
}

// Pipeline runs processing cycles. It is safe to call RunCycle from several
// goroutines; overlapping calls return OutcomeBusy without side effects.
type Pipeline struct {
	Source    ContentSource
	Generator Generator
	Publisher PublisherOpener
	Ledger    Ledger
	Scheduler *Scheduler
	Matcher   search.Matcher
	Rules     ContentRules
	Journal   Journal // optional
	Config    PipelineConfig

	// Sleep pauses for d or until ctx ends. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now defaults to time.Now.
	Now func() time.Time

	running atomic.Bool

	mu   sync.Mutex
	last *Outcome
}

// InFlight reports whether a cycle is running.
func (p *Pipeline) InFlight() bool { return p.running.Load() }

// LastOutcome returns the most recent non-busy outcome.
func (p *Pipeline) LastOutcome() (Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Outcome{}, false
	}
	return *p.last, true
}

// TryStart reserves the single-flight slot without running anything. On
// success the returned function runs the cycle and releases the slot; call
// it exactly once.
func (p *Pipeline) TryStart() (func(ctx context.Context) (Outcome, error), bool) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, false
	}
	return func(ctx context.Context) (Outcome, error) {
		defer p.running.Store(false)
		return p.execute(ctx)
	}, true
}

// RunCycle executes one cycle, or reports busy when one is in flight.
func (p *Pipeline) RunCycle(ctx context.Context) (Outcome, error) {
	run, ok := p.TryStart()
	if !ok {
		log.Warn().Str("component", "pipeline").Msg("cycle trigger ignored: a cycle is already in flight")
		observability.ObserveCycle(string(OutcomeBusy), 0)
		now := p.now()
		return Outcome{Kind: OutcomeBusy, Detail: ErrCycleInFlight.Error(), StartedAt: now, FinishedAt: now}, nil
	}
	return run(ctx)
}

func (p *Pipeline) execute(ctx context.Context) (Outcome, error) {
	out := &Outcome{CycleID: uuid.NewString(), StartedAt: p.now()}
	ctx, span := observability.Tracer("services/pipeline").Start(ctx, "RunCycle",
		trace.WithAttributes(attribute.String("cycle.id", out.CycleID)),
	)
	defer span.End()

	lg := log.With().Str("component", "pipeline").Str("cycle_id", out.CycleID).Logger()
	err := p.runCycle(ctx, out, lg)
	if err != nil {
		out.Kind = OutcomeAborted
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	out.FinishedAt = p.now()
	span.SetAttributes(
		attribute.String("cycle.outcome", string(out.Kind)),
		attribute.Int("cycle.candidates", out.Candidates),
		attribute.Int("cycle.attempts", out.Attempts),
	)
	observability.ObserveCycle(string(out.Kind), out.FinishedAt.Sub(out.StartedAt))

	ev := lg.Info()
	if err != nil {
		ev = lg.Error().Err(err)
	}
	ev.Str("outcome", string(out.Kind)).
		Str("reason", string(out.Reason)).
		Str("item_id", out.ItemID).
		Int("fetched", out.Fetched).
		Int("candidates", out.Candidates).
		Int("attempts", out.Attempts).
		Dur("took", out.FinishedAt.Sub(out.StartedAt)).
		Msg("cycle finished")

	p.mu.Lock()
	last := *out
	p.last = &last
	p.mu.Unlock()
	return *out, err
}

func (p *Pipeline) runCycle(ctx context.Context, out *Outcome, lg zerolog.Logger) error {
	if ctx.Err() != nil {
		out.Kind = OutcomeCancelled
		return nil
	}

	dec, err := p.Scheduler.CanAct(p.Config.MaxPerDay)
	if err != nil {
		return err
	}
	if !dec.Allowed {
		p.blocked(out, dec)
		lg.Info().Str("reason", string(dec.Reason)).
			Int("actions_today", dec.ActionsToday).
			Dur("remaining", dec.Remaining).
			Msg("gate closed; skipping cycle")
		return nil
	}

	items, err := p.Source.Fetch(ctx, p.Config.FreshnessWindow)
	if err != nil {
		if ctx.Err() != nil {
			out.Kind = OutcomeCancelled
			return nil
		}
		derr := fmt.Errorf("%w: %w", ErrDiscovery, err)
		lg.Warn().Err(derr).Msg("content source failed")
		out.Kind = OutcomeNothingToDo
		out.Detail = derr.Error()
		return nil
	}
	out.Fetched = len(items)

	cands := p.filter(items, lg)
	out.Candidates = len(cands)
	if len(cands) == 0 {
		out.Kind = OutcomeNothingToDo
		return nil
	}

	err = WithPublisher(ctx, p.Publisher, func(ctx context.Context, pub Publisher) error {
		return p.attemptAll(ctx, pub, cands, out, lg)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPersist):
		return err
	default:
		// Session could not be opened: nothing was attempted.
		lg.Error().Err(err).Msg("publisher unavailable")
		if ctx.Err() != nil {
			out.Kind = OutcomeCancelled
		} else {
			out.Kind = OutcomeNoAction
		}
		out.Detail = err.Error()
		return nil
	}
}

// filter keeps discovery order and drops, in this order: malformed items,
// repeats within the batch, already processed ids, irrelevant text and
// stale items. The cap applies last.
func (p *Pipeline) filter(items []domain.CandidateItem, lg zerolog.Logger) []domain.CandidateItem {
	now := p.now()
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.CandidateItem, 0, len(items))
	for _, it := range items {
		stage := ""
		verr := it.Validate()
		switch {
		case verr != nil:
			stage = dropMalformed
			lg.Warn().Err(verr).Msg("dropping malformed candidate")
		case has(seen, it.ID):
			stage = dropDuplicate
		case p.Ledger.Contains(it.ID):
			stage = dropProcessed
		case p.Matcher != nil && !p.Matcher.Match(it.Text):
			stage = dropIrrelevant
		case p.Config.FreshnessWindow > 0 && it.Age(now) > p.Config.FreshnessWindow:
			stage = dropStale
		}
		if stage != "" {
			observability.CandidateDropped(stage)
			lg.Debug().Str("item_id", it.ID).Str("stage", stage).Msg("candidate dropped")
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	if c := p.Config.MaxCandidates; c > 0 && len(out) > c {
		for range out[c:] {
			observability.CandidateDropped(dropCapped)
		}
		out = out[:c]
	}
	return out
}

func (p *Pipeline) attemptAll(ctx context.Context, pub Publisher, cands []domain.CandidateItem, out *Outcome, lg zerolog.Logger) error {
	for i, c := range cands {
		if ctx.Err() != nil {
			out.Kind = OutcomeCancelled
			return nil
		}
		out.Attempts++
		done, err := p.attempt(ctx, pub, c, out, lg.With().Str("item_id", c.ID).Str("account", c.Account).Logger(), i == len(cands)-1)
		if err != nil || done {
			return err
		}
	}
	out.Kind = OutcomeNoAction
	return nil
}

// attempt processes one candidate. done ends the cycle.
func (p *Pipeline) attempt(ctx context.Context, pub Publisher, c domain.CandidateItem, out *Outcome, lg zerolog.Logger, lastOne bool) (done bool, err error) {
	ctx, span := observability.Tracer("services/pipeline").Start(ctx, "Attempt",
		trace.WithAttributes(attribute.String("item.id", c.ID), attribute.String("item.account", c.Account)),
	)
	defer span.End()

	text, err := p.Generator.Generate(ctx, c.Text)
	if err != nil {
		if ctx.Err() != nil {
			out.Kind = OutcomeCancelled
			return true, nil
		}
		gerr := fmt.Errorf("%w: %w", ErrGeneration, err)
		lg.Warn().Err(gerr).Msg("skipping candidate")
		p.recordAttempt(ctx, out.CycleID, c, domain.AttemptGenerationFailed, gerr.Error(), "")
		return false, nil
	}

	gc := p.Rules.Check(text)
	if !gc.Valid {
		verr := fmt.Errorf("%w: %s", ErrInvalidContent, gc.Reason)
		lg.Info().Err(verr).Msg("skipping candidate")
		p.recordAttempt(ctx, out.CycleID, c, domain.AttemptInvalidContent, verr.Error(), gc.Text)
		return false, nil
	}

	dec, err := p.Scheduler.CanAct(p.Config.MaxPerDay)
	if err != nil {
		return true, err
	}
	if !dec.Allowed {
		p.blocked(out, dec)
		lg.Info().Str("reason", string(dec.Reason)).Msg("gate closed before publish")
		p.recordAttempt(ctx, out.CycleID, c, domain.AttemptGateBlocked, string(dec.Reason), gc.Text)
		return true, nil
	}

	if err := pub.Publish(ctx, c, gc.Text); err != nil {
		if ctx.Err() != nil {
			out.Kind = OutcomeCancelled
			return true, nil
		}
		perr := fmt.Errorf("%w: %w", ErrPublish, err)
		span.RecordError(perr)
		lg.Warn().Err(perr).Msg("publish failed; trying next candidate")
		p.recordAttempt(ctx, out.CycleID, c, domain.AttemptPublishFailed, perr.Error(), gc.Text)
		if !lastOne {
			if err := p.pause(ctx, p.Config.FailurePauseMin, p.Config.FailurePauseMax); err != nil {
				out.Kind = OutcomeCancelled
				return true, nil
			}
		}
		return false, nil
	}

	// The publish happened; commit it regardless of ctx.
	out.Kind = OutcomeActed
	out.ItemID = c.ID
	if err := p.commit(c.ID); err != nil {
		out.Detail = "published but state not fully persisted"
		return true, err
	}
	lg.Info().Str("response", gc.Text).Msg("response published")
	p.recordAttempt(ctx, out.CycleID, c, domain.AttemptPublished, "", gc.Text)
	p.Scheduler.LogStats(p.Config.MaxPerDay)
	out.NextEligibleAt = p.Scheduler.NextEligibleAt(p.Config.MaxPerDay)

	if err := p.pause(ctx, p.Config.SuccessPauseMin, p.Config.SuccessPauseMax); err != nil {
		lg.Info().Msg("post-publish pause interrupted")
	}
	return true, nil
}

// commit records a successful publish. Both writes are attempted so the
// quota still counts an action whose ledger write failed.
func (p *Pipeline) commit(id string) error {
	var lerr error
	if err := p.Ledger.Record(id); err != nil {
		lerr = fmt.Errorf("%w: ledger: %w", ErrPersist, err)
	}
	return errors.Join(lerr, p.Scheduler.RecordAction())
}

func (p *Pipeline) blocked(out *Outcome, dec Decision) {
	out.Kind = OutcomeBlocked
	out.Reason = dec.Reason
	out.NextEligibleAt = dec.NextEligibleAt
}

func (p *Pipeline) recordAttempt(ctx context.Context, cycleID string, c domain.CandidateItem, outcome, detail, response string) {
	observability.AttemptFinished(outcome)
	if p.Journal == nil {
		return
	}
	a := domain.Attempt{
		CycleID:  cycleID,
		ItemID:   c.ID,
		Account:  c.Account,
		Outcome:  outcome,
		Detail:   detail,
		Response: response,
	}
	if err := p.Journal.Record(context.WithoutCancel(ctx), a); err != nil {
		log.Warn().Err(err).Str("component", "pipeline").Str("item_id", c.ID).Msg("journal write failed")
	}
}

func (p *Pipeline) pause(ctx context.Context, lo, hi time.Duration) error {
	d := randBetween(lo, hi)
	if d <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// randBetween returns a uniformly random duration in [lo, hi].
func randBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func has(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
