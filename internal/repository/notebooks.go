package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notebooks/internal/specification"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidSlug reports whether slug only uses lowercase letters, digits and hyphens.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// NotebookRepository persists notebooks and plans the notebook listing.
type NotebookRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewNotebook describes the fields supplied when creating a notebook.
type NewNotebook struct {
	Title      string
	Slug       string
	AuthorID   int64
	Visibility Visibility
	ForkOfID   *int64
}

// NotebookDetail is a notebook with its author, blocks, likes, tags and fork origin.
type NotebookDetail struct {
	Notebook
	Blocks []Block `json:"blocks"`
	Likes  []Like  `json:"likes"`
	Tags   []Tag   `json:"tags"`
}

// SitemapEntry describes one public notebook URL.
type SitemapEntry struct {
	Username     string
	Slug         string
	LastModified time.Time
}

// Create inserts a notebook. A slug already used by a live notebook yields ErrNotCreated.
func (r *NotebookRepository) Create(ctx context.Context, data NewNotebook) (Notebook, error) {
	title := strings.TrimSpace(data.Title)
	slug := strings.TrimSpace(data.Slug)
	if title == "" || slug == "" || data.AuthorID == 0 {
		return Notebook{}, fmt.Errorf("%w: title, slug and author are required", ErrNotCreated)
	}
	if !ValidSlug(slug) {
		return Notebook{}, fmt.Errorf("%w: slug %q is not url-safe", ErrNotCreated, slug)
	}
	visibility := data.Visibility
	if visibility == "" {
		visibility = VisibilityUnlisted
	}
	if _, err := ParseVisibility(string(visibility)); err != nil {
		return Notebook{}, fmt.Errorf("%w: %w", ErrNotCreated, err)
	}

	now := nowSeconds(r.clock)
	notebook := Notebook{
		Title:            title,
		Slug:             slug,
		AuthorID:         data.AuthorID,
		Visibility:       visibility,
		ForkOfID:         data.ForkOfID,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := r.db.WithContext(ctx).Create(&notebook).Error; err != nil {
		if isConstraintViolation(err) {
			return Notebook{}, fmt.Errorf("%w: slug %q already used", ErrNotCreated, slug)
		}
		return Notebook{}, err
	}
	return notebook, nil
}

// Read returns the live notebook matching every specification, with its relations loaded.
func (r *NotebookRepository) Read(ctx context.Context, specs ...NotebookSpecification) (NotebookDetail, error) {
	db := r.db.WithContext(ctx)
	query, err := specification.Where(db.Model(&Notebook{}), append([]NotebookSpecification{NotebookNotDeleted()}, specs...)...)
	if err != nil {
		return NotebookDetail{}, err
	}

	var notebook Notebook
	err = query.
		Preload("Author").
		Preload("ForkOf").
		Preload("ForkOf.Author").
		Order("notebooks.id ASC").
		Take(&notebook).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotebookDetail{}, fmt.Errorf("%w: notebook", ErrNotFound)
	}
	if err != nil {
		return NotebookDetail{}, err
	}

	detail := NotebookDetail{Notebook: notebook}
	if err := db.Where("notebook_id = ?", notebook.ID).Order("position ASC, id ASC").Find(&detail.Blocks).Error; err != nil {
		return NotebookDetail{}, err
	}
	if err := db.Where("notebook_id = ?", notebook.ID).Order("created_at_s ASC").Find(&detail.Likes).Error; err != nil {
		return NotebookDetail{}, err
	}
	tags, err := tagsForNotebook(db, notebook.ID)
	if err != nil {
		return NotebookDetail{}, err
	}
	detail.Tags = tags
	return detail, nil
}

// Update changes title, slug and visibility of a live notebook owned by userID.
func (r *NotebookRepository) Update(ctx context.Context, notebook Notebook, userID int64) (Notebook, error) {
	title := strings.TrimSpace(notebook.Title)
	slug := strings.TrimSpace(notebook.Slug)
	if title == "" || slug == "" {
		return Notebook{}, fmt.Errorf("%w: title and slug are required", ErrNotUpdated)
	}
	if !ValidSlug(slug) {
		return Notebook{}, fmt.Errorf("%w: slug %q is not url-safe", ErrNotUpdated, slug)
	}
	if _, err := ParseVisibility(string(notebook.Visibility)); err != nil {
		return Notebook{}, fmt.Errorf("%w: %w", ErrNotUpdated, err)
	}

	var updated Notebook
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Notebook{}).
			Where("id = ? AND author_id = ? AND deleted_at_s IS NULL", notebook.ID, userID).
			Updates(map[string]interface{}{
				"title":        title,
				"slug":         slug,
				"visibility":   notebook.Visibility,
				"updated_at_s": nowSeconds(r.clock),
			})
		if isConstraintViolation(result.Error) {
			return fmt.Errorf("%w: slug %q already used", ErrNotUpdated, slug)
		}
		if err := expectSingleRow(result, ErrNotUpdated, "notebook"); err != nil {
			return err
		}
		return tx.Where("id = ?", notebook.ID).Take(&updated).Error
	})
	if err != nil {
		return Notebook{}, err
	}
	return updated, nil
}

// Delete soft-deletes a live notebook owned by userID and clears fork references to it.
func (r *NotebookRepository) Delete(ctx context.Context, id, userID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := nowSeconds(r.clock)
		result := tx.Model(&Notebook{}).
			Where("id = ? AND author_id = ? AND deleted_at_s IS NULL", id, userID).
			Updates(map[string]interface{}{
				"deleted_at_s": now,
				"updated_at_s": now,
			})
		if err := expectSingleRow(result, ErrNotDeleted, fmt.Sprintf("notebook %d", id)); err != nil {
			return err
		}
		forks, err := specification.Where(tx.Model(&Notebook{}), NotebookForkedFrom(id))
		if err != nil {
			return err
		}
		return forks.Update("fork_of_id", nil).Error
	})
}

// ListForSitemap returns every public live notebook with its last modification time.
func (r *NotebookRepository) ListForSitemap(ctx context.Context) ([]SitemapEntry, error) {
	db := r.db.WithContext(ctx)
	blockUpdates := db.Model(&Block{}).
		Select("blocks.notebook_id AS notebook_id, MAX(blocks.updated_at_s) AS last_block_s").
		Group("blocks.notebook_id")

	var rows []struct {
		Username      string
		Slug          string
		LastModifiedS int64
	}
	err := db.Table("notebooks").
		Select("users.username AS username, notebooks.slug AS slug, "+
			"MAX(notebooks.updated_at_s, COALESCE(block_updates.last_block_s, 0)) AS last_modified_s").
		Joins("INNER JOIN users ON users.id = notebooks.author_id").
		Joins("LEFT JOIN (?) AS block_updates ON block_updates.notebook_id = notebooks.id", blockUpdates).
		Where("notebooks.visibility = ? AND notebooks.deleted_at_s IS NULL", VisibilityPublic).
		Order("notebooks.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]SitemapEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, SitemapEntry{
			Username:     row.Username,
			Slug:         row.Slug,
			LastModified: time.Unix(row.LastModifiedS, 0).UTC(),
		})
	}
	return entries, nil
}
