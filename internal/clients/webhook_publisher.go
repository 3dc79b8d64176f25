package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reply-bot/internal/config"
	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/services"
)

// WebhookPublisher publishes through a remote automation service that owns
// the logged-in platform session:
//
//	POST   {base}/sessions                      -> {"session_id":"..."}
//	POST   {base}/sessions/{id}/comments        {"item_id","url","account","text"}
//	DELETE {base}/sessions/{id}
type WebhookPublisher struct {
	BaseURL string
	Token   string

	HTTP *http.Client
	Exec failsafe.Executor[*http.Response]
}

// NewWebhookPublisher wires a WebhookPublisher from configuration. Publish
// calls are only retried when the service reports it did not act.
func NewWebhookPublisher(cfg config.PublisherConfig, retry config.RetryConfig) *WebhookPublisher {
	return &WebhookPublisher{
		BaseURL: strings.TrimRight(cfg.URL, "/"),
		Token:   cfg.Token,
		HTTP:    &http.Client{Timeout: 90 * time.Second},
		Exec:    NewRetryExecutor(retry, RetryUnprocessed),
	}
}

type openSessionResponse struct {
	SessionID string `json:"session_id"`
}

type publishRequest struct {
	ItemID  string `json:"item_id"`
	URL     string `json:"url,omitempty"`
	Account string `json:"account"`
	Text    string `json:"text"`
}

// Open starts a remote session.
func (w *WebhookPublisher) Open(ctx context.Context) (services.PublisherSession, error) {
	resp, err := doJSON(ctx, w.HTTP, w.Exec, RetryUnprocessed, func(ctx context.Context) (*http.Request, error) {
		return w.newRequest(ctx, http.MethodPost, "/sessions", nil)
	})
	if err != nil {
		return nil, fmt.Errorf("publisher: open session: %w", err)
	}
	defer resp.Body.Close()

	var out openSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("publisher: decode session: %w", err)
	}
	if out.SessionID == "" {
		return nil, errors.New("publisher: empty session id")
	}
	log.Info().Str("component", "publisher").Str("session_id", out.SessionID).Msg("publisher session opened")
	return &webhookSession{pub: w, id: out.SessionID}, nil
}

func (w *WebhookPublisher) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}
	return req, nil
}

type webhookSession struct {
	pub *WebhookPublisher
	id  string

	closeOnce sync.Once
	closeErr  error
}

// Publish posts text as a response to item.
func (s *webhookSession) Publish(ctx context.Context, item domain.CandidateItem, text string) error {
	body, err := json.Marshal(publishRequest{ItemID: item.ID, URL: item.URL, Account: item.Account, Text: text})
	if err != nil {
		return err
	}
	path := "/sessions/" + url.PathEscape(s.id) + "/comments"
	resp, err := doJSON(ctx, s.pub.HTTP, s.pub.Exec, RetryUnprocessed, func(ctx context.Context) (*http.Request, error) {
		return s.pub.newRequest(ctx, http.MethodPost, path, body)
	})
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	return resp.Body.Close()
}

// Close ends the remote session. It is safe to call more than once.
func (s *webhookSession) Close() error {
	s.closeOnce.Do(func() {
		// Use a fresh context: sessions are also closed during shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := s.pub.newRequest(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(s.id), nil)
		if err != nil {
			s.closeErr = err
			return
		}
		resp, err := s.pub.HTTP.Do(req)
		if err != nil {
			s.closeErr = fmt.Errorf("publisher: close session: %w", err)
			return
		}
		if b := readErrBody(resp); resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode != http.StatusNotFound {
			s.closeErr = fmt.Errorf("publisher: close session: status %d: %s", resp.StatusCode, b)
		}
	})
	return s.closeErr
}
