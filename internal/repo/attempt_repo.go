package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reply-bot/internal/domain"
)

// ErrNotFound is returned when a journal lookup matches no rows.
var ErrNotFound = errors.New("not found")

// CreateAttempt appends one attempt to the journal.
func CreateAttempt(ctx context.Context, db *gorm.DB, a domain.Attempt) (*domain.Attempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAttempts returns the most recent attempts, newest first. A limit <= 0
// defaults to 50.
func ListAttempts(ctx context.Context, db *gorm.DB, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Attempt
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LastAttemptForItem returns the newest attempt for itemID or ErrNotFound.
func LastAttemptForItem(ctx context.Context, db *gorm.DB, itemID string) (*domain.Attempt, error) {
	var a domain.Attempt
	err := db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AttemptStats counts journal rows per outcome.
func AttemptStats(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		N       int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Attempt{}).
		Select("outcome, COUNT(*) AS n").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.N
	}
	return out, nil
}

// Journal adapts the free functions above to the services.Journal contract.
type Journal struct {
	DB *gorm.DB
}

// Record appends a to the journal.
func (j Journal) Record(ctx context.Context, a domain.Attempt) error {
	_, err := CreateAttempt(ctx, j.DB, a)
	return err
}

// Recent returns the latest attempts, newest first.
func (j Journal) Recent(ctx context.Context, limit int) ([]domain.Attempt, error) {
	return ListAttempts(ctx, j.DB, limit)
}

// LastFor returns the newest attempt for itemID or ErrNotFound.
func (j Journal) LastFor(ctx context.Context, itemID string) (*domain.Attempt, error) {
	return LastAttemptForItem(ctx, j.DB, itemID)
}

// Stats counts attempts per outcome.
func (j Journal) Stats(ctx context.Context) (map[string]int64, error) {
	return AttemptStats(ctx, j.DB)
}
