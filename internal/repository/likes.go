package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeRepository persists per-user like counts.
type LikeRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// Like sets the like count of userID on notebookID, replacing any previous count.
func (r *LikeRepository) Like(ctx context.Context, notebookID, userID int64, count int) (Like, error) {
	if count < MinLikeCount || count > MaxLikeCount {
		return Like{}, ErrInvalidLikeCount
	}

	now := nowSeconds(r.clock)
	like := Like{
		NotebookID:       notebookID,
		UserID:           userID,
		Count:            count,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	var stored Like
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "notebook_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":        count,
				"updated_at_s": now,
			}),
		}).Create(&like).Error
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: like on notebook %d", ErrNotCreated, notebookID)
			}
			return err
		}
		return tx.Where("notebook_id = ? AND user_id = ?", notebookID, userID).Take(&stored).Error
	})
	if err != nil {
		return Like{}, err
	}
	return stored, nil
}

// Unlike removes the like of userID on notebookID.
func (r *LikeRepository) Unlike(ctx context.Context, notebookID, userID int64) error {
	result := r.db.WithContext(ctx).
		Where("notebook_id = ? AND user_id = ?", notebookID, userID).
		Delete(&Like{})
	return expectSingleRow(result, ErrNotDeleted, "like")
}
