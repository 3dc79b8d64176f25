package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/search"
)

type pipelineFixture struct {
	p       *Pipeline
	clock   *fakeClock
	store   *memQuotaStore
	ledger  *memLedger
	source  *fakeSource
	gen     *fakeGenerator
	pub     *fakePublisher
	journal *memJournal
	sleeper *fakeSleeper
}

func item(id string) domain.CandidateItem {
	return domain.CandidateItem{ID: id, Account: "natgeo", Text: "caption for " + id, PostedAt: noon.Add(-time.Hour)}
}

func newFixture(t *testing.T, items ...domain.CandidateItem) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		clock:   newClock(noon),
		store:   &memQuotaStore{st: domain.QuotaState{Date: "2026-05-04"}},
		ledger:  newLedger(),
		source:  &fakeSource{items: items},
		gen:     &fakeGenerator{},
		pub:     &fakePublisher{failFor: map[string]error{}},
		journal: &memJournal{},
		sleeper: &fakeSleeper{},
	}
	sched := NewScheduler(f.store, 30*time.Minute, 2, WithClock(f.clock.Now), WithLocation(time.UTC))
	f.p = &Pipeline{
		Source:    f.source,
		Generator: f.gen,
		Publisher: f.pub,
		Ledger:    f.ledger,
		Scheduler: sched,
		Matcher:   search.NewKeywordMatcher(nil),
		Rules:     ContentRules{MinRunes: 5, MaxRunes: 200, Disallowed: []string{"as an AI", "I'm sorry"}},
		Journal:   f.journal,
		Config: PipelineConfig{
			MaxPerDay:       5,
			FreshnessWindow: 24 * time.Hour,
			SuccessPauseMin: 2 * time.Minute, SuccessPauseMax: 5 * time.Minute,
			FailurePauseMin: 30 * time.Second, FailurePauseMax: 60 * time.Second,
		},
		Sleep: f.sleeper.Sleep,
		Now:   f.clock.Now,
	}
	return f
}

func TestRunCycle_SkipsLedgerItems(t *testing.T) {
	f := newFixture(t, item("abc123"), item("xyz789"))
	f.ledger = newLedger("abc123")
	f.p.Ledger = f.ledger

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if want := []string{"caption for xyz789"}; !reflect.DeepEqual(f.gen.inputs, want) {
		t.Fatalf("generator inputs = %v, want %v", f.gen.inputs, want)
	}
	if !reflect.DeepEqual(f.pub.calls, []string{"xyz789"}) {
		t.Fatalf("publisher calls = %v", f.pub.calls)
	}
	if out.Kind != OutcomeActed || out.ItemID != "xyz789" || out.Candidates != 1 || out.Fetched != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRunCycle_PublishFailureThenSuccess(t *testing.T) {
	f := newFixture(t, item("first"), item("second"))
	f.pub.failFor["first"] = errBoom

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if out.Kind != OutcomeActed || out.ItemID != "second" || out.Attempts != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !reflect.DeepEqual(f.ledger.recorded, []string{"second"}) {
		t.Fatalf("ledger recorded %v, want only second", f.ledger.recorded)
	}
	if st := f.store.st; st.ActionsToday != 1 || st.TotalActions != 1 {
		t.Fatalf("scheduler should count exactly one action, got %+v", st)
	}
	// one failure pause in [30s,60s], one success pause in [2m,5m]
	if len(f.sleeper.slept) != 2 {
		t.Fatalf("expected 2 pauses, got %v", f.sleeper.slept)
	}
	if d := f.sleeper.slept[0]; d < 30*time.Second || d > 60*time.Second {
		t.Fatalf("failure pause out of range: %v", d)
	}
	if d := f.sleeper.slept[1]; d < 2*time.Minute || d > 5*time.Minute {
		t.Fatalf("success pause out of range: %v", d)
	}
	if got := f.journal.outcomes(); !reflect.DeepEqual(got, []string{domain.AttemptPublishFailed, domain.AttemptPublished}) {
		t.Fatalf("journal outcomes = %v", got)
	}
}

func TestRunCycle_AtMostOneAction(t *testing.T) {
	f := newFixture(t, item("a"), item("b"), item("c"))
	if _, err := f.p.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.pub.published) != 1 || len(f.pub.calls) != 1 {
		t.Fatalf("expected a single publish, got calls=%v", f.pub.calls)
	}
	if f.pub.opens != 1 || f.pub.closes != 1 {
		t.Fatalf("session not scoped: opens=%d closes=%d", f.pub.opens, f.pub.closes)
	}
}

func TestRunCycle_GateClosedMakesNoCalls(t *testing.T) {
	f := newFixture(t, item("a"))
	f.store.st = domain.QuotaState{Date: "2026-05-04", ActionsToday: 5, TotalActions: 5}
	f.p.Scheduler = NewScheduler(f.store, 30*time.Minute, 2, WithClock(f.clock.Now), WithLocation(time.UTC))

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeBlocked || out.Reason != domain.BlockedDaily {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.source.calls != 0 || len(f.gen.inputs) != 0 || f.pub.opens != 0 {
		t.Fatalf("collaborators called while blocked: source=%d gen=%d opens=%d", f.source.calls, len(f.gen.inputs), f.pub.opens)
	}
}

func TestRunCycle_GateRecheckedBeforePublish(t *testing.T) {
	f := newFixture(t, item("a"))
	// Another action lands while the response is being generated.
	f.gen.reply = func(string) (string, error) {
		if err := f.p.Scheduler.RecordAction(); err != nil {
			t.Fatal(err)
		}
		return "Great composition here!", nil
	}

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeBlocked || out.Reason != domain.BlockedCooldown {
		t.Fatalf("expected cooldown block, got %+v", out)
	}
	if len(f.pub.calls) != 0 || len(f.ledger.recorded) != 0 {
		t.Fatalf("publish must not happen after gate closes")
	}
	if got := f.journal.outcomes(); !reflect.DeepEqual(got, []string{domain.AttemptGateBlocked}) {
		t.Fatalf("journal outcomes = %v", got)
	}
}

func TestRunCycle_InvalidAndFailedGenerationAreSkipped(t *testing.T) {
	f := newFixture(t, item("gen-err"), item("meta"), item("short"), item("ok"))
	f.gen.reply = func(text string) (string, error) {
		switch text {
		case "caption for gen-err":
			return "", errBoom
		case "caption for meta":
			return "As an AI, I love this", nil
		case "caption for short":
			return " hi ", nil
		}
		return "What a view!", nil
	}

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeActed || out.ItemID != "ok" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !reflect.DeepEqual(f.ledger.recorded, []string{"ok"}) {
		t.Fatalf("ledger recorded %v", f.ledger.recorded)
	}
	want := []string{domain.AttemptGenerationFailed, domain.AttemptInvalidContent, domain.AttemptInvalidContent, domain.AttemptPublished}
	if got := f.journal.outcomes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("journal outcomes = %v, want %v", got, want)
	}
	if d := f.journal.rows[0].Detail; !strings.HasPrefix(d, ErrGeneration.Error()) {
		t.Fatalf("generation detail = %q", d)
	}
	for _, r := range f.journal.rows[1:3] {
		if !strings.HasPrefix(r.Detail, ErrInvalidContent.Error()+": ") {
			t.Fatalf("invalid content detail = %q", r.Detail)
		}
	}
	// no failure pauses for generation/validation skips
	if len(f.sleeper.slept) != 1 {
		t.Fatalf("expected only the success pause, got %v", f.sleeper.slept)
	}
}

func TestRunCycle_AllFailNoAction(t *testing.T) {
	f := newFixture(t, item("a"), item("b"))
	f.pub.failFor["a"] = errBoom
	f.pub.failFor["b"] = errBoom

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeNoAction {
		t.Fatalf("expected no_action, got %+v", out)
	}
	if len(f.ledger.recorded) != 0 || f.store.st.ActionsToday != 0 {
		t.Fatalf("failed publishes must not touch state")
	}
	// pause only between candidates, not after the last one
	if len(f.sleeper.slept) != 1 {
		t.Fatalf("expected one failure pause, got %v", f.sleeper.slept)
	}
}

func TestRunCycle_DiscoveryFailureIsNothingToDo(t *testing.T) {
	f := newFixture(t)
	f.source.err = errBoom

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("discovery failure must not be an error: %v", err)
	}
	if out.Kind != OutcomeNothingToDo || f.pub.opens != 0 {
		t.Fatalf("unexpected outcome %+v opens=%d", out, f.pub.opens)
	}
	if f.source.lastWindow != 24*time.Hour {
		t.Fatalf("fetch window = %v", f.source.lastWindow)
	}
}

func TestRunCycle_Filters(t *testing.T) {
	stale := item("stale")
	stale.PostedAt = noon.Add(-48 * time.Hour)
	malformed := domain.CandidateItem{ID: "", Account: "x", Text: "travel"}
	offTopic := item("food")
	offTopic.Text = "pasta night"
	empty := item("empty")
	empty.Text = "  "
	keep1 := item("keep1")
	keep1.Text = "TRAVEL diaries"
	keep2 := item("keep2")
	keep2.Text = "more travel"
	capped := item("capped")
	capped.Text = "travel again"

	f := newFixture(t, malformed, stale, offTopic, empty, keep1, keep1, keep2, capped)
	f.p.Matcher = search.NewKeywordMatcher([]string{"travel"})
	f.p.Config.MaxCandidates = 2
	f.stale(t, stale)
	f.pub.failFor["keep1"] = errBoom
	f.pub.failFor["keep2"] = errBoom

	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if out.Candidates != 2 {
		t.Fatalf("candidates = %d, want 2", out.Candidates)
	}
	if !reflect.DeepEqual(f.pub.calls, []string{"keep1", "keep2"}) {
		t.Fatalf("publisher saw %v; order or filtering wrong", f.pub.calls)
	}
}

// stale is a sanity check on the fixture: the item is outside the window.
func (f *pipelineFixture) stale(t *testing.T, it domain.CandidateItem) {
	t.Helper()
	if it.Age(noon) <= f.p.Config.FreshnessWindow {
		t.Fatalf("fixture item %s is not stale", it.ID)
	}
}

func TestRunCycle_LedgerPersistFailureAborts(t *testing.T) {
	f := newFixture(t, item("a"), item("b"))
	f.ledger.recordErr = errBoom

	out, err := f.p.RunCycle(context.Background())
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if out.Kind != OutcomeAborted || out.ItemID != "a" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(f.pub.calls) != 1 {
		t.Fatalf("cycle must stop after the aborted commit, calls=%v", f.pub.calls)
	}
	// the action still counts against the quota
	if f.store.st.ActionsToday != 1 {
		t.Fatalf("quota should record the real action, got %+v", f.store.st)
	}
	if f.pub.closes != 1 {
		t.Fatalf("session must be closed on error path")
	}
}

func TestRunCycle_SchedulerPersistFailureAborts(t *testing.T) {
	f := newFixture(t, item("a"))
	f.store.st.Date = "2026-05-03" // force a rollover write
	f.store.saveErr = errBoom
	f.p.Scheduler = NewScheduler(f.store, 30*time.Minute, 2, WithClock(f.clock.Now), WithLocation(time.UTC))

	out, err := f.p.RunCycle(context.Background())
	if !errors.Is(err, ErrPersist) || out.Kind != OutcomeAborted {
		t.Fatalf("expected aborted with ErrPersist, got %+v err=%v", out, err)
	}
	if f.source.calls != 0 {
		t.Fatalf("no collaborator calls after a failed gate write")
	}
}

func TestRunCycle_JournalFailureIsIgnored(t *testing.T) {
	f := newFixture(t, item("a"))
	f.journal.err = errBoom
	out, err := f.p.RunCycle(context.Background())
	if err != nil || out.Kind != OutcomeActed {
		t.Fatalf("journal errors must not affect the cycle: %+v err=%v", out, err)
	}
}

func TestRunCycle_SessionOpenFailure(t *testing.T) {
	f := newFixture(t, item("a"))
	f.pub.openErr = errBoom
	out, err := f.p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeNoAction || len(f.gen.inputs) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, item("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := f.p.RunCycle(ctx)
	if err != nil || out.Kind != OutcomeCancelled {
		t.Fatalf("expected cancelled, got %+v err=%v", out, err)
	}
	if f.store.saves != 0 || f.source.calls != 0 {
		t.Fatalf("cancelled cycle must not touch state or collaborators")
	}
}

func TestRunCycle_CancelledDuringFailurePause(t *testing.T) {
	f := newFixture(t, item("a"), item("b"))
	f.pub.failFor["a"] = errBoom
	f.sleeper.err = context.Canceled

	out, err := f.p.RunCycle(context.Background())
	if err != nil || out.Kind != OutcomeCancelled {
		t.Fatalf("expected cancelled, got %+v err=%v", out, err)
	}
	if len(f.pub.calls) != 1 || len(f.ledger.recorded) != 0 || f.store.st.ActionsToday != 0 {
		t.Fatalf("no partial updates allowed on cancel")
	}
	if f.pub.closes != 1 {
		t.Fatalf("session must be released on cancel")
	}
}

func TestRunCycle_SuccessCommittedEvenIfPauseInterrupted(t *testing.T) {
	f := newFixture(t, item("a"))
	f.sleeper.err = context.Canceled
	out, err := f.p.RunCycle(context.Background())
	if err != nil || out.Kind != OutcomeActed {
		t.Fatalf("expected acted, got %+v err=%v", out, err)
	}
	if !f.ledger.Contains("a") || f.store.st.ActionsToday != 1 {
		t.Fatalf("successful publish must be committed")
	}
}

func TestRunCycle_SingleFlight(t *testing.T) {
	f := newFixture(t, item("a"))
	f.pub.block = make(chan struct{})
	f.pub.entered = make(chan struct{})

	var wg sync.WaitGroup
	var first Outcome
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = f.p.RunCycle(context.Background())
	}()

	<-f.pub.entered
	if !f.p.InFlight() {
		t.Fatalf("expected a cycle in flight")
	}
	second, err := f.p.RunCycle(context.Background())
	if err != nil || second.Kind != OutcomeBusy {
		t.Fatalf("overlapping call should be busy, got %+v err=%v", second, err)
	}
	close(f.pub.block)
	wg.Wait()

	if first.Kind != OutcomeActed {
		t.Fatalf("first cycle outcome %+v", first)
	}
	if f.source.calls != 1 {
		t.Fatalf("busy call must not reach collaborators, source calls=%d", f.source.calls)
	}
	if last, ok := f.p.LastOutcome(); !ok || last.CycleID != first.CycleID {
		t.Fatalf("LastOutcome should be the real cycle, got %+v", last)
	}
}

func TestTryStart_ReservesSlot(t *testing.T) {
	f := newFixture(t, item("a"))

	run, ok := f.p.TryStart()
	if !ok || !f.p.InFlight() {
		t.Fatalf("expected the slot to be reserved")
	}
	if _, again := f.p.TryStart(); again {
		t.Fatalf("second reservation must fail")
	}
	if out, _ := f.p.RunCycle(context.Background()); out.Kind != OutcomeBusy {
		t.Fatalf("RunCycle during reservation = %+v", out)
	}
	if f.source.calls != 0 {
		t.Fatalf("reservation alone must not run the cycle")
	}

	out, err := run(context.Background())
	if err != nil || out.Kind != OutcomeActed {
		t.Fatalf("reserved run = %+v err=%v", out, err)
	}
	if f.p.InFlight() {
		t.Fatalf("slot not released after the run")
	}
	if _, ok := f.p.TryStart(); !ok {
		t.Fatalf("slot should be free again")
	}
}

func TestRandBetween(t *testing.T) {
	if got := randBetween(time.Second, time.Second); got != time.Second {
		t.Fatalf("degenerate range = %v", got)
	}
	if got := randBetween(5*time.Second, time.Second); got != 5*time.Second {
		t.Fatalf("inverted range should return lo, got %v", got)
	}
	for i := 0; i < 100; i++ {
		if d := randBetween(30*time.Second, 60*time.Second); d < 30*time.Second || d > 60*time.Second {
			t.Fatalf("out of range: %v", d)
		}
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepCtx: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
