package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/services"
	"github.com/tbourn/go-reply-bot/internal/utils"
)

const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 200
)

// QuotaView is the JSON shape of the scheduler state.
type QuotaView struct {
	Date           string     `json:"date"`
	ActionsToday   int        `json:"actions_today"`
	MaxPerDay      int        `json:"max_per_day"`
	RemainingToday int        `json:"remaining_today"`
	TotalActions   int        `json:"total_actions"`
	LastActionTime *time.Time `json:"last_action_time,omitempty"`
	NextEligibleAt time.Time  `json:"next_eligible_at"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Quota          QuotaView         `json:"quota"`
	ProcessedItems int               `json:"processed_items"`
	CycleInFlight  bool              `json:"cycle_in_flight"`
	LastOutcome    *services.Outcome `json:"last_outcome,omitempty"`
}

// AttemptsResponse is returned by GET /attempts.
type AttemptsResponse struct {
	Attempts []domain.Attempt `json:"attempts"`
	Counts   map[string]int64 `json:"counts"`
	Limit    int              `json:"limit"`
}

// Status reports the quota, ledger and last cycle.
func (h *Handlers) Status(c *gin.Context) {
	st := h.deps.Quota.Snapshot()
	resp := StatusResponse{
		Quota: QuotaView{
			Date:           st.Date,
			ActionsToday:   st.ActionsToday,
			MaxPerDay:      h.deps.MaxPerDay,
			RemainingToday: max(h.deps.MaxPerDay-st.ActionsToday, 0),
			TotalActions:   st.TotalActions,
			LastActionTime: st.LastActionTime,
			NextEligibleAt: h.deps.Quota.NextEligibleAt(h.deps.MaxPerDay),
		},
		CycleInFlight: h.deps.Cycles.InFlight(),
	}
	if h.deps.Ledger != nil {
		resp.ProcessedItems = h.deps.Ledger.Len()
	}
	if out, found := h.deps.Cycles.LastOutcome(); found {
		resp.LastOutcome = &out
	}
	ok(c, http.StatusOK, resp)
}

// ListAttempts returns the newest journal rows. ?limit= defaults to 50 and
// is capped at 200.
func (h *Handlers) ListAttempts(c *gin.Context) {
	if h.deps.Attempts == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "attempt journal disabled")
		return
	}
	limit := utils.ParseLimit(c.Query("limit"), defaultAttemptLimit, maxAttemptLimit)
	ctx := c.Request.Context()

	rows, err := h.deps.Attempts.Recent(ctx, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list attempts")
		return
	}
	counts, err := h.deps.Attempts.Stats(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not count attempts")
		return
	}
	ok(c, http.StatusOK, AttemptsResponse{Attempts: rows, Counts: counts, Limit: limit})
}
