package services

import (
	"context"
	"io"
	"time"

	"github.com/tbourn/go-reply-bot/internal/domain"
)

// ContentSource returns candidate items discovered within window, in the
// order they should be considered. Retries are the source's responsibility;
// a returned error is terminal for this cycle.
type ContentSource interface {
	Fetch(ctx context.Context, window time.Duration) ([]domain.CandidateItem, error)
}

// Generator turns an item's text into a short response.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

// Publisher performs the publish action for one item.
type Publisher interface {
	Publish(ctx context.Context, item domain.CandidateItem, text string) error
}

// PublisherSession is a live publisher that holds a session resource until
// closed.
type PublisherSession interface {
	Publisher
	io.Closer
}

// PublisherOpener acquires a publisher session (login, browser context, ...).
type PublisherOpener interface {
	Open(ctx context.Context) (PublisherSession, error)
}

// Ledger is the durable set of identifiers already acted on.
type Ledger interface {
	Contains(id string) bool
	Record(id string) error
}

// QuotaStore loads and saves the scheduler state.
type QuotaStore interface {
	Load() domain.QuotaState
	Save(domain.QuotaState) error
}

// Journal receives one row per candidate attempt. Failures are logged by the
// caller and never affect cycle outcomes.
type Journal interface {
	Record(ctx context.Context, a domain.Attempt) error
}
