package clients

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/services"
)

// LogPublisher is the dry-run publisher: it logs what would be published and
// always succeeds.
type LogPublisher struct{}

// Open returns a logging session.
func (LogPublisher) Open(ctx context.Context) (services.PublisherSession, error) {
	return logSession{}, nil
}

type logSession struct{}

func (logSession) Publish(ctx context.Context, item domain.CandidateItem, text string) error {
	log.Info().
		Str("component", "publisher").
		Bool("dry_run", true).
		Str("item_id", item.ID).
		Str("account", item.Account).
		Str("url", item.URL).
		Str("text", text).
		Msg("would publish response")
	return nil
}

func (logSession) Close() error { return nil }
