package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/repo"
)

type statusReport struct {
	Date           string           `json:"date"`
	ActionsToday   int              `json:"actions_today"`
	MaxPerDay      int              `json:"max_per_day"`
	TotalActions   int              `json:"total_actions"`
	LastActionTime *time.Time       `json:"last_action_time,omitempty"`
	NextEligibleAt time.Time        `json:"next_eligible_at"`
	ProcessedItems int              `json:"processed_items"`
	Attempts       []domain.Attempt `json:"recent_attempts,omitempty"`
	AttemptCounts  map[string]int64 `json:"attempt_counts,omitempty"`
	Item           *itemReport      `json:"item,omitempty"`
}

// itemReport answers "was this item handled, and how did it go".
type itemReport struct {
	ID          string          `json:"id"`
	Processed   bool            `json:"processed"`
	LastAttempt *domain.Attempt `json:"last_attempt,omitempty"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		attempts int
		itemID   string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the quota, ledger and recent attempts without running a cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a := openState(cfg)
			defer a.Close()

			maxPerDay := cfg.Policy.MaxActionsPerDay
			st := a.scheduler.Snapshot()
			rep := statusReport{
				Date:           st.Date,
				ActionsToday:   st.ActionsToday,
				MaxPerDay:      maxPerDay,
				TotalActions:   st.TotalActions,
				LastActionTime: st.LastActionTime,
				NextEligibleAt: a.scheduler.NextEligibleAt(maxPerDay),
				ProcessedItems: a.ledger.Len(),
			}
			if a.db != nil && attempts > 0 {
				ctx := cmd.Context()
				if rep.Attempts, err = a.journal.Recent(ctx, attempts); err != nil {
					return err
				}
				if rep.AttemptCounts, err = a.journal.Stats(ctx); err != nil {
					return err
				}
			}
			if itemID != "" {
				rep.Item = &itemReport{ID: itemID, Processed: a.ledger.Contains(itemID)}
				if a.db != nil {
					last, err := a.journal.LastFor(cmd.Context(), itemID)
					switch {
					case err == nil:
						rep.Item.LastAttempt = last
					case !errors.Is(err, repo.ErrNotFound):
						return err
					}
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 0, "include the N most recent journal attempts")
	cmd.Flags().StringVar(&itemID, "item", "", "report the ledger entry and newest attempt for one item id")
	return cmd
}
