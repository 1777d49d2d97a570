package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// viewsEpochSeconds anchors the hour buckets used to deduplicate views.
const viewsEpochSeconds int64 = 1747758426

// ViewRepository records notebook views.
type ViewRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// HourBucket returns the deduplication bucket for a view at the given unix time.
func HourBucket(unixSeconds int64) int64 {
	return (unixSeconds - viewsEpochSeconds) / 3600
}

// Add records a view of notebookID by clientID. Repeated views in the same hour are ignored.
// It reports whether a new view was stored.
func (r *ViewRepository) Add(ctx context.Context, notebookID int64, clientID string) (bool, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return false, fmt.Errorf("%w: client id is required", ErrNotCreated)
	}
	now := nowSeconds(r.clock)
	view := View{
		NotebookID:       notebookID,
		ClientID:         clientID,
		Hour:             HourBucket(now),
		CreatedAtSeconds: now,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&view)
	if result.Error != nil {
		if isConstraintViolation(result.Error) {
			return false, fmt.Errorf("%w: view of notebook %d", ErrNotCreated, notebookID)
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Count returns the number of recorded views of notebookID.
func (r *ViewRepository) Count(ctx context.Context, notebookID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&View{}).Where("notebook_id = ?", notebookID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
