package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTrendsLimit is the number of tags returned by Trends when no limit is given.
const DefaultTrendsLimit = 5

// TagRepository persists global tags and their notebook associations.
type TagRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// TagTrend reports how many live notebooks carry a tag.
type TagTrend struct {
	ID        int64  `gorm:"column:id" json:"id"`
	Name      string `gorm:"column:name" json:"name"`
	Notebooks int64  `gorm:"column:notebook_count" json:"notebooks"`
}

// SetTags replaces every tag association of notebookID with names in one transaction.
// Tag rows are upserted and never removed.
func (r *TagRepository) SetTags(ctx context.Context, notebookID int64, names []string) ([]Tag, error) {
	names = distinctNames(names)
	tags := []Tag{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(names) > 0 {
			now := nowSeconds(r.clock)
			rows := make([]Tag, 0, len(names))
			for _, name := range names {
				rows = append(rows, Tag{Name: name, CreatedAtSeconds: now})
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"name"}),
			}).Create(&rows).Error
			if err != nil {
				return err
			}
			if err := tx.Where("name IN ?", names).Order("name ASC").Find(&tags).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("notebook_id = ?", notebookID).Delete(&TagLink{}).Error; err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}

		links := make([]TagLink, 0, len(tags))
		for _, tag := range tags {
			links = append(links, TagLink{NotebookID: notebookID, TagID: tag.ID})
		}
		if err := tx.Create(&links).Error; err != nil {
			if isConstraintViolation(err) {
				return ErrNotCreated
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// ForNotebook returns the tags associated with notebookID ordered by name.
func (r *TagRepository) ForNotebook(ctx context.Context, notebookID int64) ([]Tag, error) {
	return tagsForNotebook(r.db.WithContext(ctx), notebookID)
}

func tagsForNotebook(db *gorm.DB, notebookID int64) ([]Tag, error) {
	tags := []Tag{}
	err := db.Model(&Tag{}).
		Joins("INNER JOIN tags_to_notebooks ON tags_to_notebooks.tag_id = tags.id").
		Where("tags_to_notebooks.notebook_id = ?", notebookID).
		Order("tags.name ASC").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// All returns every tag in creation order.
func (r *TagRepository) All(ctx context.Context) ([]Tag, error) {
	tags := []Tag{}
	if err := r.db.WithContext(ctx).Order("created_at_s ASC, id ASC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// Trends returns the tags attached to the most live notebooks.
func (r *TagRepository) Trends(ctx context.Context, limit int) ([]TagTrend, error) {
	if limit < 1 {
		limit = DefaultTrendsLimit
	}
	trends := []TagTrend{}
	err := r.db.WithContext(ctx).
		Table("tags").
		Select("tags.id AS id, tags.name AS name, COUNT(notebooks.id) AS notebook_count").
		Joins("INNER JOIN tags_to_notebooks ON tags_to_notebooks.tag_id = tags.id").
		Joins("INNER JOIN notebooks ON notebooks.id = tags_to_notebooks.notebook_id AND notebooks.deleted_at_s IS NULL").
		Group("tags.id, tags.name").
		Order("notebook_count DESC, tags.name ASC").
		Limit(limit).
		Scan(&trends).Error
	if err != nil {
		return nil, err
	}
	return trends, nil
}
