package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-reply-bot/internal/clients"
	"github.com/tbourn/go-reply-bot/internal/config"
	"github.com/tbourn/go-reply-bot/internal/repo"
	"github.com/tbourn/go-reply-bot/internal/search"
	"github.com/tbourn/go-reply-bot/internal/services"
)

// app holds the long-lived components shared by the subcommands.
type app struct {
	cfg       config.Config
	ledger    *repo.Ledger
	scheduler *services.Scheduler
	db        *gorm.DB     // nil when the journal could not be opened
	journal   repo.Journal // zero when db is nil
}

// openState loads the ledger and quota files and opens the attempt journal.
// The journal is informational: failing to open it is logged, not fatal.
func openState(cfg config.Config) *app {
	a := &app{
		cfg:    cfg,
		ledger: repo.OpenLedger(cfg.LedgerPath),
		scheduler: services.NewScheduler(
			repo.NewQuotaFile(cfg.QuotaPath),
			cfg.Policy.BaseDelay,
			cfg.Policy.ScaleFactor,
		),
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err == nil {
		err = repo.AutoMigrate(db)
	}
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.DBPath).Msg("attempt journal disabled")
		if db != nil {
			closeDB(db)
		}
		return a
	}
	a.db = db
	a.journal = repo.Journal{DB: db}
	return a
}

// journalOrNil keeps the interface nil when the journal is disabled.
func (a *app) journalOrNil() services.Journal {
	if a.db == nil {
		return nil
	}
	return a.journal
}

// pipeline wires the collaborators for one process.
func (a *app) pipeline() *services.Pipeline {
	cfg := a.cfg
	var pub services.PublisherOpener
	switch {
	case cfg.Publisher.DryRun:
		log.Warn().Msg("dry run: responses are logged, not published")
		pub = clients.LogPublisher{}
	case cfg.Publisher.URL == "":
		log.Warn().Msg("PUBLISHER_URL not set; falling back to dry run")
		pub = clients.LogPublisher{}
	default:
		pub = clients.NewWebhookPublisher(cfg.Publisher, cfg.Retry)
	}

	return &services.Pipeline{
		Source:    clients.NewFeedSource(cfg.Source, cfg.Retry),
		Generator: clients.NewChatGenerator(cfg.Generator, cfg.Retry),
		Publisher: pub,
		Ledger:    a.ledger,
		Scheduler: a.scheduler,
		Matcher:   search.NewKeywordMatcher(cfg.Policy.Keywords),
		Rules: services.ContentRules{
			MinRunes:   cfg.Policy.MinResponseRunes,
			MaxRunes:   cfg.Policy.MaxResponseRunes,
			Disallowed: cfg.Policy.DisallowedPhrases,
		},
		Journal: a.journalOrNil(),
		Config: services.PipelineConfig{
			MaxPerDay:       cfg.Policy.MaxActionsPerDay,
			FreshnessWindow: cfg.Policy.FreshnessWindow,
			MaxCandidates:   cfg.Policy.MaxCandidatesPerCycle,
			SuccessPauseMin: cfg.Policy.SuccessPauseMin,
			SuccessPauseMax: cfg.Policy.SuccessPauseMax,
			FailurePauseMin: cfg.Policy.FailurePauseMin,
			FailurePauseMax: cfg.Policy.FailurePauseMax,
		},
	}
}

func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// shutdownTimeout bounds server drain and telemetry flush on exit.
const shutdownTimeout = 10 * time.Second
