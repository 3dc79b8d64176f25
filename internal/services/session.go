package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// WithPublisher opens a publisher session, runs fn with it and closes the
// session on every exit path, panics included. Close errors are logged; fn's
// error wins.
func WithPublisher(ctx context.Context, opener PublisherOpener, fn func(context.Context, Publisher) error) (err error) {
	sess, err := opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open session: %w", ErrPublish, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("publisher session close failed")
		}
	}()
	return fn(ctx, sess)
}
