package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates that a read matched no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrNotCreated indicates that an insert violated a uniqueness or derived constraint.
	ErrNotCreated = errors.New("repository: not created")
	// ErrNotUpdated indicates that an update affected zero rows.
	ErrNotUpdated = errors.New("repository: not updated")
	// ErrNotDeleted indicates that a delete affected zero rows.
	ErrNotDeleted = errors.New("repository: not deleted")
	// ErrInvariantViolation indicates that a single-entity mutation affected more than one row.
	ErrInvariantViolation = errors.New("repository: invariant violation")
)

// ErrInvalidLikeCount rejects like counts outside [MinLikeCount, MaxLikeCount].
var ErrInvalidLikeCount = fmt.Errorf("%w: like count must be between %d and %d", ErrNotCreated, MinLikeCount, MaxLikeCount)

// expectSingleRow maps the affected row count of a single-entity mutation onto the taxonomy.
func expectSingleRow(result *gorm.DB, zero error, entity string) error {
	if result.Error != nil {
		return result.Error
	}
	switch {
	case result.RowsAffected == 0:
		return fmt.Errorf("%w: %s", zero, entity)
	case result.RowsAffected > 1:
		return fmt.Errorf("%w: %d %s rows affected", ErrInvariantViolation, result.RowsAffected, entity)
	default:
		return nil
	}
}

// isConstraintViolation reports whether err comes from a unique, foreign key or check constraint.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint failed")
}
