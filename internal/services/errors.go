// Package services holds the publishing controller: the quota scheduler, the
// cycle pipeline and the runner that triggers it. This file centralizes the
// service-level error values so callers can test them with errors.Is.
//
// Only ErrPersist aborts a cycle. The other categories are contained at the
// candidate level and surface in logs, the journal and metrics; they are
// exported so collaborator adapters and handlers can classify failures the
// same way.
package services

import "errors"

var (
	// ErrDiscovery wraps a content source failure that survived the
	// source's own retry policy. The cycle ends with nothing to do.
	ErrDiscovery = errors.New("discovery failed")

	// ErrGeneration wraps a generator failure for one candidate.
	ErrGeneration = errors.New("generation failed")

	// ErrInvalidContent marks generated text rejected by the content rules.
	ErrInvalidContent = errors.New("generated content rejected")

	// ErrPublish wraps a publisher failure, including a session that could
	// not be opened.
	ErrPublish = errors.New("publish failed")

	// ErrPersist wraps a failed durable write of the ledger or the quota
	// state. It aborts the current cycle.
	ErrPersist = errors.New("persist state")

	// ErrCycleInFlight is reported when a trigger arrives while a cycle is
	// still running.
	ErrCycleInFlight = errors.New("a cycle is already in flight")
)
