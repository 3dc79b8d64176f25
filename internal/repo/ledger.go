package repo

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ledgerDoc is the on-disk shape of the dedup ledger.
type ledgerDoc struct {
	ProcessedIDs []string `json:"processed_ids"`
	// LegacyProcessedPosts is accepted on load for files written by the
	// previous bot; it is never written.
	LegacyProcessedPosts []string `json:"processed_posts,omitempty"`
}

// Ledger is the durable set of item identifiers already acted on.
//
// An identifier enters the set only after a publish for it succeeded. The
// set grows monotonically; every Record of a new identifier rewrites the
// whole file atomically, so the file is the single source of truth and
// nothing needs replaying on restart.
//
// Ledger is the only writer of its file. It is safe for concurrent use,
// although the pipeline only ever drives it from one goroutine.
type Ledger struct {
	path string

	mu    sync.RWMutex
	ids   map[string]struct{}
	order []string
}

// OpenLedger loads the ledger stored at path. A missing, unreadable or
// corrupt file yields an empty ledger; corruption is logged and treated as
// "no state", never as a fatal error.
func OpenLedger(path string) *Ledger {
	l := &Ledger{path: path, ids: make(map[string]struct{})}

	var doc ledgerDoc
	found, err := readJSON(path, &doc)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("path", path).Msg("ledger unreadable; starting with an empty set")
		return l
	case !found:
		return l
	}

	for _, id := range append(doc.ProcessedIDs, doc.LegacyProcessedPosts...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := l.ids[id]; dup {
			continue
		}
		l.ids[id] = struct{}{}
		l.order = append(l.order, id)
	}
	log.Debug().Str("path", path).Int("ids", len(l.order)).Msg("ledger loaded")
	return l
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Contains reports whether id has already been acted on.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Record adds id and durably persists the full set before returning.
// Recording an id that is already present is a no-op and does not touch the
// file. If the write fails the in-memory set is left unchanged.
func (l *Ledger) Record(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("ledger: empty id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids[id]; ok {
		return nil
	}

	next := make([]string, len(l.order), len(l.order)+1)
	copy(next, l.order)
	next = append(next, id)

	if err := writeJSONAtomic(l.path, ledgerDoc{ProcessedIDs: next}); err != nil {
		return fmt.Errorf("ledger: write %s: %w", l.path, err)
	}
	l.ids[id] = struct{}{}
	l.order = next
	return nil
}

// Len returns the number of recorded identifiers.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// IDs returns the recorded identifiers in insertion order.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
