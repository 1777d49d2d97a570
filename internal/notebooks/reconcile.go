package notebooks

import (
	"encoding/json"
	"fmt"

	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"github.com/google/go-cmp/cmp"
	"gorm.io/datatypes"
)

// DesiredBlock is one entry of the ordered block list submitted by an editor.
// A nil ID requests a new block.
type DesiredBlock struct {
	ID       *int64               `json:"id,omitempty"`
	Content  string               `json:"content"`
	Type     repository.BlockType `json:"type"`
	Position int                  `json:"position"`
	Pinned   bool                 `json:"pinned"`
	Metadata datatypes.JSON       `json:"metadata,omitempty"`
}

// ReconciliationPlan lists the mutations that turn the stored blocks into the desired list.
type ReconciliationPlan struct {
	Create []repository.NewBlock
	Update []repository.Block
	Delete []int64
}

// Empty reports whether the plan changes nothing.
func (p ReconciliationPlan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// PlanReconciliation diffs the stored blocks of a notebook against the desired list.
// Stored blocks referenced by the desired list keep their identity and are updated only when
// a mutable field differs. Unknown or missing identifiers become creations. Stored blocks left
// unreferenced are deleted.
func PlanReconciliation(current []repository.Block, desired []DesiredBlock) (ReconciliationPlan, error) {
	stored := make(map[int64]repository.Block, len(current))
	for _, block := range current {
		stored[block.ID] = block
	}
	claimed := make(map[int64]struct{}, len(desired))

	plan := ReconciliationPlan{}
	for index, block := range desired {
		metadata, err := repository.NormalizeMetadata(block.Metadata)
		if err != nil {
			return ReconciliationPlan{}, fmt.Errorf("block %d: %w", index, err)
		}
		blockType, err := repository.ParseBlockType(string(block.Type))
		if err != nil {
			return ReconciliationPlan{}, fmt.Errorf("block %d: %w", index, err)
		}
		block.Type = blockType

		if block.ID != nil {
			existing, known := stored[*block.ID]
			_, taken := claimed[*block.ID]
			if known && !taken {
				claimed[existing.ID] = struct{}{}
				changed, err := blockChanged(existing, block, metadata)
				if err != nil {
					return ReconciliationPlan{}, fmt.Errorf("block %d: %w", index, err)
				}
				if changed {
					existing.Content = block.Content
					existing.Type = block.Type
					existing.Position = block.Position
					existing.Pinned = block.Pinned
					existing.Metadata = metadata
					plan.Update = append(plan.Update, existing)
				}
				continue
			}
		}

		plan.Create = append(plan.Create, repository.NewBlock{
			Content:  block.Content,
			Type:     block.Type,
			Position: block.Position,
			Pinned:   block.Pinned,
			Metadata: metadata,
		})
	}

	for _, block := range current {
		if _, ok := claimed[block.ID]; !ok {
			plan.Delete = append(plan.Delete, block.ID)
		}
	}
	return plan, nil
}

func blockChanged(existing repository.Block, desired DesiredBlock, metadata datatypes.JSON) (bool, error) {
	if existing.Content != desired.Content ||
		existing.Type != desired.Type ||
		existing.Position != desired.Position ||
		existing.Pinned != desired.Pinned {
		return true, nil
	}
	equal, err := metadataEqual(existing.Metadata, metadata)
	if err != nil {
		return false, err
	}
	return !equal, nil
}

// metadataEqual compares two metadata documents structurally. Absent metadata equals JSON null.
func metadataEqual(left, right datatypes.JSON) (bool, error) {
	leftValue, err := decodeMetadata(left)
	if err != nil {
		return false, err
	}
	rightValue, err := decodeMetadata(right)
	if err != nil {
		return false, err
	}
	return cmp.Equal(leftValue, rightValue), nil
}

func decodeMetadata(raw datatypes.JSON) (interface{}, error) {
	normalized, err := repository.NormalizeMetadata(raw)
	if err != nil {
		return nil, err
	}
	var value interface{}
	if err := json.Unmarshal(normalized, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidBlock, err)
	}
	return value, nil
}
