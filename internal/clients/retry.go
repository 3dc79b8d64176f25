// Package clients holds the HTTP adapters for the pipeline's collaborators:
// the content feed, the chat-completions generator and the publishing
// webhook. Each adapter owns its bounded retry policy so the pipeline only
// sees success or a terminal failure.
package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/tbourn/go-reply-bot/internal/config"
)

// maxErrBody caps how much of an error response body ends up in messages.
const maxErrBody = 512

// RetryPredicate decides whether an attempt should be retried.
type RetryPredicate func(resp *http.Response, err error) bool

// RetryTransient retries network errors, 5xx gateway/server errors and 429.
// Context cancellation is never retried.
func RetryTransient(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

// RetryUnprocessed retries only answers that guarantee the request was not
// acted on (429 and 503). Used for non-idempotent calls like publishing.
func RetryUnprocessed(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable
}

// NewRetryExecutor builds a failsafe executor with exponential backoff,
// 10% jitter and at most cfg.MaxRetries retries.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewRetryExecutor(cfg config.RetryConfig, retryIf RetryPredicate) failsafe.Executor[*http.Response] {
	base, maxDelay := cfg.BaseDelay, cfg.MaxDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if maxDelay < base {
		maxDelay = base
	}
	if retryIf == nil {
		retryIf = RetryTransient
	}
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(base, maxDelay).
		WithMaxRetries(max(cfg.MaxRetries, 0)).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool { return retryIf(resp, err) }).
		Build()
	return failsafe.With(policy)
}

// doJSON sends the request built by newReq through exec and returns the
// response on 2xx. Bodies of retried responses are drained so connections
// can be reused; newReq is called once per attempt.
func doJSON(ctx context.Context, client *http.Client, exec failsafe.Executor[*http.Response], retryIf RetryPredicate, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	resp, err := exec.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if retryIf(resp, nil) {
			status := resp.StatusCode
			body := readErrBody(resp)
			return &http.Response{StatusCode: status, Status: resp.Status, Body: io.NopCloser(strings.NewReader(body))}, nil
		}
		return resp, nil
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			return nil, fmt.Errorf("unexpected status %d after retries: %s", resp.StatusCode, readErrBody(resp))
		}
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body := readErrBody(resp)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return resp, nil
}

// readErrBody reads a short prefix of the body and closes it.
func readErrBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return strings.TrimSpace(string(b))
}
