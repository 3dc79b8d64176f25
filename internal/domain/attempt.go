package domain

import "time"

// Attempt outcomes recorded in the journal.
const (
	AttemptPublished        = "published"
	AttemptGenerationFailed = "generation_failed"
	AttemptInvalidContent   = "invalid_content"
	AttemptGateBlocked      = "gate_blocked"
	AttemptPublishFailed    = "publish_failed"
)

// Attempt is one per-candidate processing attempt, kept as an append-only
// journal for operators. The ledger and quota files remain the source of
// truth; the journal is informational.
type Attempt struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CycleID   string    `json:"cycle_id"   gorm:"type:char(36);not null;index:idx_attempt_cycle"`
	ItemID    string    `json:"item_id"    gorm:"type:varchar(255);not null;index:idx_attempt_item"`
	Account   string    `json:"account"    gorm:"type:varchar(255);not null"`
	Outcome   string    `json:"outcome"    gorm:"type:varchar(32);not null;index"`
	Detail    string    `json:"detail,omitempty"   gorm:"type:text"`
	Response  string    `json:"response,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
}

// TableName returns the database table name for Attempt.
func (Attempt) TableName() string { return "attempts" }
