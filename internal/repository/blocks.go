package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var nullMetadata = datatypes.JSON("null")

// BlockRepository persists notebook blocks.
type BlockRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewBlock describes a block to insert.
type NewBlock struct {
	Content  string
	Type     BlockType
	Position int
	Pinned   bool
	Metadata datatypes.JSON
}

// NormalizeMetadata maps absent metadata onto JSON null and rejects malformed JSON.
func NormalizeMetadata(raw datatypes.JSON) (datatypes.JSON, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, nullMetadata) {
		return nullMetadata, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: metadata is not valid JSON", ErrInvalidBlock)
	}
	return datatypes.JSON(trimmed), nil
}

// List returns the blocks of a notebook in display order.
func (r *BlockRepository) List(ctx context.Context, notebookID int64) ([]Block, error) {
	var blocks []Block
	err := r.db.WithContext(ctx).
		Where("notebook_id = ?", notebookID).
		Order("position ASC, id ASC").
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// BatchCreate inserts blocks into a notebook and returns them with their identifiers.
func (r *BlockRepository) BatchCreate(ctx context.Context, notebookID int64, blocks []NewBlock) ([]Block, error) {
	if len(blocks) == 0 {
		return []Block{}, nil
	}
	now := nowSeconds(r.clock)
	rows := make([]Block, 0, len(blocks))
	for _, block := range blocks {
		if err := validateBlock(block.Type, block.Position); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotCreated, err)
		}
		metadata, err := NormalizeMetadata(block.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotCreated, err)
		}
		rows = append(rows, Block{
			NotebookID:       notebookID,
			Content:          block.Content,
			Type:             block.Type,
			Position:         block.Position,
			Pinned:           block.Pinned,
			Metadata:         metadata,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		})
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: blocks of notebook %d", ErrNotCreated, notebookID)
		}
		return nil, err
	}
	return rows, nil
}

// BatchUpdate overwrites content, type, position, pinned and metadata of existing blocks.
// Every block must belong to notebookID.
func (r *BlockRepository) BatchUpdate(ctx context.Context, notebookID int64, blocks []Block) ([]Block, error) {
	if len(blocks) == 0 {
		return []Block{}, nil
	}
	now := nowSeconds(r.clock)
	updated := make([]Block, 0, len(blocks))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, block := range blocks {
			if err := validateBlock(block.Type, block.Position); err != nil {
				return fmt.Errorf("%w: %w", ErrNotUpdated, err)
			}
			metadata, err := NormalizeMetadata(block.Metadata)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrNotUpdated, err)
			}
			result := tx.Model(&Block{}).
				Where("id = ? AND notebook_id = ?", block.ID, notebookID).
				Updates(map[string]interface{}{
					"content":      block.Content,
					"type":         block.Type,
					"position":     block.Position,
					"pinned":       block.Pinned,
					"metadata":     metadata,
					"updated_at_s": now,
				})
			if err := expectSingleRow(result, ErrNotUpdated, fmt.Sprintf("block %d", block.ID)); err != nil {
				return err
			}
			var row Block
			if err := tx.Where("id = ?", block.ID).Take(&row).Error; err != nil {
				return err
			}
			updated = append(updated, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BatchDelete removes blocks of a notebook. Every identifier must match a block of notebookID.
func (r *BlockRepository) BatchDelete(ctx context.Context, notebookID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	unique := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	result := r.db.WithContext(ctx).
		Where("notebook_id = ? AND id IN ?", notebookID, ids).
		Delete(&Block{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(unique)) {
		return fmt.Errorf("%w: deleted %d of %d blocks", ErrNotDeleted, result.RowsAffected, len(unique))
	}
	return nil
}

func validateBlock(blockType BlockType, position int) error {
	if _, err := ParseBlockType(string(blockType)); err != nil {
		return err
	}
	if position < 0 {
		return fmt.Errorf("%w: position %d is negative", ErrInvalidBlock, position)
	}
	return nil
}
