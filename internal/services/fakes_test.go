package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tbourn/go-reply-bot/internal/domain"
)

// ----- clock -----

type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	calls int
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// ----- quota store -----

type memQuotaStore struct {
	st      domain.QuotaState
	saves   int
	saveErr error
}

func (m *memQuotaStore) Load() domain.QuotaState { return m.st }

func (m *memQuotaStore) Save(st domain.QuotaState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.st = st
	return nil
}

// ----- ledger -----

type memLedger struct {
	mu        sync.Mutex
	ids       map[string]bool
	recorded  []string
	recordErr error
}

func newLedger(ids ...string) *memLedger {
	l := &memLedger{ids: map[string]bool{}}
	for _, id := range ids {
		l.ids[id] = true
	}
	return l
}

func (l *memLedger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids[id]
}

func (l *memLedger) Record(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return l.recordErr
	}
	if !l.ids[id] {
		l.ids[id] = true
		l.recorded = append(l.recorded, id)
	}
	return nil
}

// ----- source -----

type fakeSource struct {
	items      []domain.CandidateItem
	err        error
	calls      int
	lastWindow time.Duration
}

func (s *fakeSource) Fetch(ctx context.Context, window time.Duration) ([]domain.CandidateItem, error) {
	s.calls++
	s.lastWindow = window
	return s.items, s.err
}

// ----- generator -----

type fakeGenerator struct {
	inputs []string
	// reply defaults to a valid response echoing the input.
	reply func(text string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, text string) (string, error) {
	g.inputs = append(g.inputs, text)
	if g.reply != nil {
		return g.reply(text)
	}
	return "Lovely shot, thanks for sharing!", nil
}

// ----- publisher -----

type fakePublisher struct {
	mu        sync.Mutex
	failFor   map[string]error
	calls     []string
	published []string
	opens     int
	closes    int
	openErr   error
	// block, when set, is waited on inside Publish.
	block   chan struct{}
	entered chan struct{}
}

func (p *fakePublisher) Open(ctx context.Context) (PublisherSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opens++
	return p, nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePublisher) Publish(ctx context.Context, item domain.CandidateItem, text string) error {
	if p.entered != nil {
		close(p.entered)
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, item.ID)
	if err := p.failFor[item.ID]; err != nil {
		return err
	}
	p.published = append(p.published, item.ID)
	return nil
}

// ----- journal -----

type memJournal struct {
	rows []domain.Attempt
	err  error
}

func (j *memJournal) Record(ctx context.Context, a domain.Attempt) error {
	if j.err != nil {
		return j.err
	}
	j.rows = append(j.rows, a)
	return nil
}

func (j *memJournal) outcomes() []string {
	out := make([]string, 0, len(j.rows))
	for _, r := range j.rows {
		out = append(out, r.Outcome)
	}
	return out
}

// ----- sleeper -----

type fakeSleeper struct {
	slept []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return s.err
}

var errBoom = errors.New("boom")
