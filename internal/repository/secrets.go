package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// SecretRepository persists the secrets of each user.
type SecretRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// List returns the secrets owned by ownerID ordered by name.
func (r *SecretRepository) List(ctx context.Context, ownerID int64) ([]Secret, error) {
	secrets := []Secret{}
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("name ASC").
		Find(&secrets).Error
	if err != nil {
		return nil, err
	}
	return secrets, nil
}

// Create stores a secret. A name already used by the owner yields ErrNotCreated.
func (r *SecretRepository) Create(ctx context.Context, ownerID int64, name, value string) (Secret, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Secret{}, fmt.Errorf("%w: secret name is required", ErrNotCreated)
	}
	now := nowSeconds(r.clock)
	secret := Secret{
		Name:             name,
		Value:            value,
		OwnerID:          ownerID,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := r.db.WithContext(ctx).Create(&secret).Error; err != nil {
		if isConstraintViolation(err) {
			return Secret{}, fmt.Errorf("%w: secret %q", ErrNotCreated, name)
		}
		return Secret{}, err
	}
	return secret, nil
}

// Update replaces the value of a secret owned by ownerID.
func (r *SecretRepository) Update(ctx context.Context, ownerID, id int64, value string) (Secret, error) {
	var updated Secret
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Secret{}).
			Where("id = ? AND owner_id = ?", id, ownerID).
			Updates(map[string]interface{}{
				"value":        value,
				"updated_at_s": nowSeconds(r.clock),
			})
		if err := expectSingleRow(result, ErrNotUpdated, fmt.Sprintf("secret %d", id)); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&updated).Error
	})
	if err != nil {
		return Secret{}, err
	}
	return updated, nil
}

// Delete removes a secret owned by ownerID.
func (r *SecretRepository) Delete(ctx context.Context, ownerID, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&Secret{})
		return expectSingleRow(result, ErrNotDeleted, fmt.Sprintf("secret %d", id))
	})
}
