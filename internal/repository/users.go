package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notebooks/internal/specification"
	"gorm.io/gorm"
)

// UserRepository persists users.
type UserRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// Create inserts a user. A taken username or external id yields ErrNotCreated.
func (r *UserRepository) Create(ctx context.Context, externalID, username string) (User, error) {
	externalID = strings.TrimSpace(externalID)
	username = strings.TrimSpace(username)
	if externalID == "" || username == "" {
		return User{}, fmt.Errorf("%w: external id and username are required", ErrNotCreated)
	}

	now := nowSeconds(r.clock)
	user := User{
		ExternalID:       externalID,
		Username:         username,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isConstraintViolation(err) {
			return User{}, fmt.Errorf("%w: user %q", ErrNotCreated, username)
		}
		return User{}, err
	}
	return user, nil
}

// Read returns the first user matching every specification.
func (r *UserRepository) Read(ctx context.Context, specs ...UserSpecification) (User, error) {
	query, err := specification.Where(r.db.WithContext(ctx).Model(&User{}), specs...)
	if err != nil {
		return User{}, err
	}

	var user User
	if err := query.Order("users.id ASC").Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("%w: user", ErrNotFound)
		}
		return User{}, err
	}
	return user, nil
}

// UpdatePicture replaces the profile picture URL of a user.
func (r *UserRepository) UpdatePicture(ctx context.Context, id int64, picture string) (User, error) {
	var updated User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var value *string
		if trimmed := strings.TrimSpace(picture); trimmed != "" {
			value = &trimmed
		}
		result := tx.Model(&User{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"picture":      value,
				"updated_at_s": nowSeconds(r.clock),
			})
		if err := expectSingleRow(result, ErrNotUpdated, "user"); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&updated).Error
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}
