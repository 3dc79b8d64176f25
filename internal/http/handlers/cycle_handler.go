package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reply-bot/internal/http/middleware"
	"github.com/tbourn/go-reply-bot/internal/services"
)

// TriggerResponse is returned by POST /cycles.
type TriggerResponse struct {
	Status string `json:"status"`
}

// TriggerCycle starts one cycle in the background and answers 202. A cycle
// already in flight yields 409 and a shutting-down server 503.
func (h *Handlers) TriggerCycle(c *gin.Context) {
	if h.base.Err() != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeShuttingDown, "server is shutting down")
		return
	}
	run, started := h.deps.Cycles.TryStart()
	if !started {
		fail(c, http.StatusConflict, ErrCodeCycleInFlight, "a cycle is already running")
		return
	}

	rid := c.Writer.Header().Get("X-Request-ID")
	middleware.LoggerFrom(c).Info().Msg("manual cycle triggered")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		out, err := run(h.base)
		lg := log.With().Str("component", "http").Str("request_id", rid).Logger()
		switch {
		case errors.Is(err, services.ErrPersist):
			lg.Error().Err(err).Str("cycle_id", out.CycleID).Msg("manual cycle aborted")
		case err != nil:
			lg.Error().Err(err).Msg("manual cycle failed")
		default:
			lg.Info().Str("cycle_id", out.CycleID).Str("outcome", string(out.Kind)).Msg("manual cycle finished")
		}
	}()

	ok(c, http.StatusAccepted, TriggerResponse{Status: "started"})
}
