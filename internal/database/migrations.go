package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeBlockMetadata  = "2026-05-20_normalize_block_metadata"
	migrationClearDeletedForkParents = "2026-06-11_clear_deleted_fork_parents"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeBlockMetadata, apply: normalizeBlockMetadata},
		{name: migrationClearDeletedForkParents, apply: clearDeletedForkParents},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeBlockMetadata rewrites empty metadata to the JSON null literal.
func normalizeBlockMetadata(db *gorm.DB) error {
	return db.Model(&repository.Block{}).
		Where("metadata IS NULL OR TRIM(metadata) = ''").
		Update("metadata", "null").Error
}

// clearDeletedForkParents drops fork references to notebooks that were soft-deleted.
func clearDeletedForkParents(db *gorm.DB) error {
	deleted := db.Model(&repository.Notebook{}).
		Select("id").
		Where("deleted_at_s IS NOT NULL")
	return db.Model(&repository.Notebook{}).
		Where("fork_of_id IN (?)", deleted).
		Update("fork_of_id", nil).Error
}
