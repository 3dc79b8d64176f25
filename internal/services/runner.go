package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// CycleRunner runs one processing cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (Outcome, error)
}

// Runner triggers cycles: once on demand, or immediately and then on every
// Interval tick until the context ends. Cycles never overlap; ticks that
// arrive while a cycle runs are coalesced by the ticker.
type Runner struct {
	Cycles   CycleRunner
	Interval time.Duration

	// newTicker is swapped in tests.
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// RunOnce runs a single cycle.
func (r *Runner) RunOnce(ctx context.Context) (Outcome, error) {
	return r.Cycles.RunCycle(ctx)
}

// Run loops until ctx is done. Cycle errors are logged and the loop waits
// for the next tick; it returns nil on shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		return errors.New("runner: interval must be positive")
	}
	lg := log.With().Str("component", "runner").Dur("interval", r.Interval).Logger()
	lg.Info().Msg("continuous mode started")

	tick, stop := r.ticker()
	defer stop()

	for {
		if _, err := r.Cycles.RunCycle(ctx); err != nil {
			lg.Error().Err(err).Msg("cycle aborted; will retry at next interval")
		}
		if ctx.Err() != nil {
			lg.Info().Msg("continuous mode stopped")
			return nil
		}
		lg.Info().Time("next_cycle_at", time.Now().Add(r.Interval)).Msg("waiting for next cycle")
		select {
		case <-ctx.Done():
			lg.Info().Msg("continuous mode stopped")
			return nil
		case <-tick:
		}
	}
}

func (r *Runner) ticker() (<-chan time.Time, func()) {
	if r.newTicker != nil {
		return r.newTicker(r.Interval)
	}
	t := time.NewTicker(r.Interval)
	return t.C, t.Stop
}
