package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-reply-bot/internal/config"
	"github.com/tbourn/go-reply-bot/internal/domain"
)

// FeedSource discovers recent items of the target accounts from a JSON feed:
//
//	GET {base}/accounts/{account}/items?since=RFC3339&limit=N
//	{"items":[{"id":"...","url":"...","caption":"...","posted_at":"...","likes":1,"comments":2}]}
//
// Accounts are queried in configuration order and items are kept in feed
// order (newest first). Requests are paced by a token bucket so bursts of
// accounts do not trip the platform's rate limits.
type FeedSource struct {
	BaseURL         string
	Accounts        []string
	PerAccountLimit int

	HTTP    *http.Client
	Limiter *rate.Limiter
	Exec    failsafe.Executor[*http.Response]
	Now     func() time.Time
}

// NewFeedSource wires a FeedSource from configuration.
func NewFeedSource(cfg config.SourceConfig, retry config.RetryConfig) *FeedSource {
	return &FeedSource{
		BaseURL:         strings.TrimRight(cfg.URL, "/"),
		Accounts:        cfg.Accounts,
		PerAccountLimit: cfg.PerAccountLimit,
		HTTP:            &http.Client{Timeout: 30 * time.Second},
		Limiter:         rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1)),
		Exec:            NewRetryExecutor(retry, RetryTransient),
		Now:             time.Now,
	}
}

type feedItem struct {
	ID        string     `json:"id"`
	Shortcode string     `json:"shortcode"`
	Account   string     `json:"account"`
	URL       string     `json:"url"`
	Caption   string     `json:"caption"`
	Text      string     `json:"text"`
	PostedAt  *time.Time `json:"posted_at"`
	AgeHours  *float64   `json:"age_hours"`
	Likes     int64      `json:"likes"`
	Comments  int64      `json:"comments"`
}

type feedPage struct {
	Items []feedItem `json:"items"`
}

// Fetch returns items posted within window across all accounts. A failing
// account is logged and skipped; Fetch fails only when every account failed.
func (s *FeedSource) Fetch(ctx context.Context, window time.Duration) ([]domain.CandidateItem, error) {
	if len(s.Accounts) == 0 {
		log.Warn().Str("component", "feed_source").Msg("no target accounts configured")
		return nil, nil
	}
	now := s.Now()
	since := now.Add(-window)

	var (
		out  []domain.CandidateItem
		errs []error
	)
	for _, acc := range s.Accounts {
		items, err := s.fetchAccount(ctx, acc, since, now, window)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("component", "feed_source").Str("account", acc).Msg("account fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", acc, err))
			continue
		}
		log.Debug().Str("component", "feed_source").Str("account", acc).Int("items", len(items)).Msg("account fetched")
		out = append(out, items...)
	}
	if len(errs) == len(s.Accounts) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (s *FeedSource) fetchAccount(ctx context.Context, account string, since, now time.Time, window time.Duration) ([]domain.CandidateItem, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	if window > 0 {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if s.PerAccountLimit > 0 {
		q.Set("limit", strconv.Itoa(s.PerAccountLimit))
	}
	endpoint := s.BaseURL + "/accounts/" + url.PathEscape(account) + "/items"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	resp, err := doJSON(ctx, s.HTTP, s.Exec, RetryTransient, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page feedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	out := make([]domain.CandidateItem, 0, len(page.Items))
	for _, fi := range page.Items {
		it := fi.toDomain(account)
		if window > 0 && it.Age(now) > window {
			continue
		}
		out = append(out, it)
		if s.PerAccountLimit > 0 && len(out) >= s.PerAccountLimit {
			break
		}
	}
	return out, nil
}

func (fi feedItem) toDomain(account string) domain.CandidateItem {
	it := domain.CandidateItem{
		ID:       fi.ID,
		Account:  fi.Account,
		URL:      fi.URL,
		Text:     fi.Caption,
		Likes:    fi.Likes,
		Comments: fi.Comments,
	}
	if it.ID == "" {
		it.ID = fi.Shortcode
	}
	if it.Account == "" {
		it.Account = account
	}
	if it.Text == "" {
		it.Text = fi.Text
	}
	if fi.PostedAt != nil {
		it.PostedAt = *fi.PostedAt
	}
	if fi.AgeHours != nil {
		it.AgeHours = *fi.AgeHours
	}
	return it
}
