// Status and trigger HTTP handlers.
//
// Endpoints:
//   - GET  /status    (quota snapshot, ledger size, last cycle outcome)
//   - GET  /attempts  (recent journal rows and per-outcome counts)
//   - POST /cycles    (start a cycle in the background)
//
// Handlers only read state owned by the pipeline components. The manual
// trigger goes through the same single-flight guard as the periodic runner.
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/go-reply-bot/internal/domain"
	"github.com/tbourn/go-reply-bot/internal/services"
)

// CycleService is the part of the pipeline the transport needs.
type CycleService interface {
	// TryStart reserves the single-flight slot; the returned function runs
	// the cycle and releases it.
	TryStart() (func(ctx context.Context) (services.Outcome, error), bool)
	InFlight() bool
	LastOutcome() (services.Outcome, bool)
}

// QuotaReader exposes the scheduler's state without mutating it.
type QuotaReader interface {
	Snapshot() domain.QuotaState
	NextEligibleAt(maxPerDay int) time.Time
}

// LedgerReader reports how many items have been processed.
type LedgerReader interface {
	Len() int
}

// AttemptReader reads the attempt journal.
type AttemptReader interface {
	Recent(ctx context.Context, limit int) ([]domain.Attempt, error)
	Stats(ctx context.Context) (map[string]int64, error)
}

// Deps groups what the handlers read from.
type Deps struct {
	Cycles    CycleService
	Quota     QuotaReader
	Ledger    LedgerReader
	Attempts  AttemptReader // optional; /attempts answers 404 without it
	MaxPerDay int
}

// Handlers serves the status and trigger endpoints.
type Handlers struct {
	deps Deps
	// base bounds background cycles; it is the server's lifetime context.
	base context.Context
	wg   sync.WaitGroup
}

// New binds the handlers to deps. Cycles started through the trigger run on
// base and stop when it is cancelled.
func New(base context.Context, deps Deps) *Handlers {
	return &Handlers{deps: deps, base: base}
}

// Wait blocks until every triggered cycle has returned.
func (h *Handlers) Wait() { h.wg.Wait() }
