package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("repository: database handle is required")

// Config describes the dependencies shared by every repository.
type Config struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Repositories groups the repository facades bound to one database handle.
type Repositories struct {
	db    *gorm.DB
	clock func() time.Time

	Users     *UserRepository
	Notebooks *NotebookRepository
	Blocks    *BlockRepository
	Likes     *LikeRepository
	Tags      *TagRepository
	Secrets   *SecretRepository
	Views     *ViewRepository
}

// New constructs the repositories over the provided database handle.
func New(cfg Config) (*Repositories, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return bind(cfg.Database, clock), nil
}

func bind(db *gorm.DB, clock func() time.Time) *Repositories {
	return &Repositories{
		db:        db,
		clock:     clock,
		Users:     &UserRepository{db: db, clock: clock},
		Notebooks: &NotebookRepository{db: db, clock: clock},
		Blocks:    &BlockRepository{db: db, clock: clock},
		Likes:     &LikeRepository{db: db, clock: clock},
		Tags:      &TagRepository{db: db, clock: clock},
		Secrets:   &SecretRepository{db: db, clock: clock},
		Views:     &ViewRepository{db: db, clock: clock},
	}
}

// Transaction runs fn with repositories bound to a single transaction.
// The transaction rolls back when fn returns an error.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bind(tx, r.clock))
	})
}

func nowSeconds(clock func() time.Time) int64 {
	return clock().UTC().Unix()
}
