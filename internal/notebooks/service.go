package notebooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"github.com/MarcoPoloResearchLab/notebooks/internal/specification"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized indicates that the caller may not perform the operation on the notebook.
	ErrUnauthorized = errors.New("notebooks: unauthorized")

	errMissingRepositories = errors.New("repositories are required")
	errMissingUserID       = errors.New("user identifier is required")
	noOpLogger             = zap.NewNop()
)

// ServiceError wraps an unexpected failure with a dotted "operation.reason" code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "notebooks.service.new"
	opListNotebooks    = "notebooks.list"
	opReadNotebook     = "notebooks.read"
	opCreateNotebook   = "notebooks.create"
	opUpdateNotebook   = "notebooks.update"
	opDeleteNotebook   = "notebooks.delete"
	opForkNotebook     = "notebooks.fork"
	opLikeNotebook     = "notebooks.like"
	opUnlikeNotebook   = "notebooks.unlike"
	opSetTags          = "notebooks.set_tags"
	opReconcileBlocks  = "notebooks.reconcile_blocks"
	opRecordView       = "notebooks.record_view"
	forkSlugSuffix     = "forked"
	forkSlugSeparator  = "--"
	forkSlugHexLength  = 6
	initialBlockFormat = "# %s/%s"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the notebook service.
type ServiceConfig struct {
	Repositories *repository.Repositories
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Service orchestrates notebook operations with authorization checks.
type Service struct {
	repos  *repository.Repositories
	clock  func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repositories == nil {
		return nil, newServiceError(opServiceNew, "missing_repositories", errMissingRepositories)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		repos:  cfg.Repositories,
		clock:  clock,
		logger: logger,
	}, nil
}

// readableBy selects notebooks the viewer may open: public or unlisted ones, and their own.
func readableBy(viewerID int64) (repository.NotebookSpecification, error) {
	shared := repository.NotebookWithVisibilities(repository.VisibilityPublic, repository.VisibilityUnlisted)
	if viewerID == 0 {
		return shared, nil
	}
	return specification.Or(shared, repository.NotebookWithAuthor(viewerID))
}

// ListNotebooks returns one page of the notebook listing.
func (s *Service) ListNotebooks(ctx context.Context, filter repository.ListFilter, pagination repository.Pagination) (repository.NotebookPage, error) {
	page, err := s.repos.Notebooks.List(ctx, filter, pagination)
	if err != nil {
		return repository.NotebookPage{}, s.fail(opListNotebooks, "query_failed", err)
	}
	return page, nil
}

// ReadNotebook returns a notebook the viewer may open. Private notebooks of other authors are NotFound.
func (s *Service) ReadNotebook(ctx context.Context, viewerID int64, specs ...repository.NotebookSpecification) (repository.NotebookDetail, error) {
	readable, err := readableBy(viewerID)
	if err != nil {
		return repository.NotebookDetail{}, s.fail(opReadNotebook, "invalid_specification", err)
	}
	detail, err := s.repos.Notebooks.Read(ctx, append(specs, readable)...)
	if err != nil {
		return repository.NotebookDetail{}, s.fail(opReadNotebook, "read_failed", err)
	}
	return detail, nil
}

// CreateNotebook creates a private notebook titled title with an introductory markdown block.
func (s *Service) CreateNotebook(ctx context.Context, author repository.User, title string) (repository.Notebook, error) {
	if author.ID == 0 {
		return repository.Notebook{}, newServiceError(opCreateNotebook, "missing_user_id", errMissingUserID)
	}
	title = strings.TrimSpace(title)

	var created repository.Notebook
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		notebook, err := tx.Notebooks.Create(ctx, repository.NewNotebook{
			Title:      title,
			Slug:       Slugify(title),
			AuthorID:   author.ID,
			Visibility: repository.VisibilityPrivate,
		})
		if err != nil {
			return err
		}
		_, err = tx.Blocks.BatchCreate(ctx, notebook.ID, []repository.NewBlock{{
			Content:  fmt.Sprintf(initialBlockFormat, author.Username, notebook.Title),
			Type:     repository.BlockTypeMarkdown,
			Position: 0,
		}})
		if err != nil {
			return err
		}
		created = notebook
		return nil
	})
	if err != nil {
		return repository.Notebook{}, s.fail(opCreateNotebook, "create_failed", err, zap.Int64("user_id", author.ID))
	}
	return created, nil
}

// UpdateNotebook changes title, slug and visibility of a notebook owned by userID.
func (s *Service) UpdateNotebook(ctx context.Context, notebook repository.Notebook, userID int64) (repository.Notebook, error) {
	updated, err := s.repos.Notebooks.Update(ctx, notebook, userID)
	if err != nil {
		return repository.Notebook{}, s.fail(opUpdateNotebook, "update_failed", err, zap.Int64("notebook_id", notebook.ID))
	}
	return updated, nil
}

// DeleteNotebook soft-deletes a notebook owned by userID.
func (s *Service) DeleteNotebook(ctx context.Context, notebookID, userID int64) error {
	if err := s.repos.Notebooks.Delete(ctx, notebookID, userID); err != nil {
		return s.fail(opDeleteNotebook, "delete_failed", err, zap.Int64("notebook_id", notebookID))
	}
	return nil
}

// Fork copies a readable notebook and its blocks into a new private notebook owned by userID.
func (s *Service) Fork(ctx context.Context, notebookID, userID int64) (repository.Notebook, error) {
	if userID == 0 {
		return repository.Notebook{}, newServiceError(opForkNotebook, "missing_user_id", errMissingUserID)
	}
	readable, err := readableBy(userID)
	if err != nil {
		return repository.Notebook{}, s.fail(opForkNotebook, "invalid_specification", err)
	}

	var fork repository.Notebook
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		parent, err := tx.Notebooks.Read(ctx, repository.NotebookWithID(notebookID), readable)
		if err != nil {
			return err
		}
		parentID := parent.ID
		created, err := tx.Notebooks.Create(ctx, repository.NewNotebook{
			Title:      parent.Title,
			Slug:       forkSlug(parent.Slug, s.clock()),
			AuthorID:   userID,
			Visibility: repository.VisibilityPrivate,
			ForkOfID:   &parentID,
		})
		if err != nil {
			return err
		}
		copies := make([]repository.NewBlock, 0, len(parent.Blocks))
		for _, block := range parent.Blocks {
			copies = append(copies, repository.NewBlock{
				Content:  block.Content,
				Type:     block.Type,
				Position: block.Position,
				Pinned:   block.Pinned,
				Metadata: block.Metadata,
			})
		}
		if _, err := tx.Blocks.BatchCreate(ctx, created.ID, copies); err != nil {
			return err
		}
		fork = created
		return nil
	})
	if err != nil {
		return repository.Notebook{}, s.fail(opForkNotebook, "fork_failed", err,
			zap.Int64("notebook_id", notebookID),
			zap.Int64("user_id", userID))
	}
	return fork, nil
}

func forkSlug(parentSlug string, now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 16)
	if len(stamp) > forkSlugHexLength {
		stamp = stamp[len(stamp)-forkSlugHexLength:]
	}
	return strings.Join([]string{parentSlug, stamp, forkSlugSuffix}, forkSlugSeparator)
}

// Like sets the like count of userID on a readable notebook. Authors cannot like their own notebooks.
func (s *Service) Like(ctx context.Context, notebookID, userID int64, count int) (repository.Like, error) {
	if userID == 0 {
		return repository.Like{}, newServiceError(opLikeNotebook, "missing_user_id", errMissingUserID)
	}
	if count < repository.MinLikeCount || count > repository.MaxLikeCount {
		return repository.Like{}, repository.ErrInvalidLikeCount
	}
	notebook, err := s.ReadNotebook(ctx, userID, repository.NotebookWithID(notebookID))
	if err != nil {
		return repository.Like{}, err
	}
	if notebook.AuthorID == userID {
		return repository.Like{}, fmt.Errorf("%w: authors cannot like their own notebook", ErrUnauthorized)
	}
	like, err := s.repos.Likes.Like(ctx, notebookID, userID, count)
	if err != nil {
		return repository.Like{}, s.fail(opLikeNotebook, "like_failed", err, zap.Int64("notebook_id", notebookID))
	}
	return like, nil
}

// Unlike removes the like of userID on a notebook.
func (s *Service) Unlike(ctx context.Context, notebookID, userID int64) error {
	if err := s.repos.Likes.Unlike(ctx, notebookID, userID); err != nil {
		return s.fail(opUnlikeNotebook, "unlike_failed", err, zap.Int64("notebook_id", notebookID))
	}
	return nil
}

// SetTags replaces the tags of a notebook owned by userID and returns the stored set ordered by name.
func (s *Service) SetTags(ctx context.Context, notebookID, userID int64, names []string) ([]repository.Tag, error) {
	var tags []repository.Tag
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := authorize(ctx, tx, notebookID, userID); err != nil {
			return err
		}
		if _, err := tx.Tags.SetTags(ctx, notebookID, names); err != nil {
			return err
		}
		current, err := tx.Tags.ForNotebook(ctx, notebookID)
		if err != nil {
			return err
		}
		tags = current
		return nil
	})
	if err != nil {
		return nil, s.fail(opSetTags, "set_tags_failed", err, zap.Int64("notebook_id", notebookID))
	}
	return tags, nil
}

// ReconcileBlocks makes the stored blocks of a notebook match desired and returns them ordered
// by position. The notebook must exist and belong to userID; all mutations share one transaction.
func (s *Service) ReconcileBlocks(ctx context.Context, notebookID, userID int64, desired []DesiredBlock) ([]repository.Block, error) {
	var blocks []repository.Block
	var plan ReconciliationPlan
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		notebook, err := authorize(ctx, tx, notebookID, userID)
		if err != nil {
			return err
		}
		plan, err = PlanReconciliation(notebook.Blocks, desired)
		if err != nil {
			return err
		}
		if _, err := tx.Blocks.BatchCreate(ctx, notebookID, plan.Create); err != nil {
			return err
		}
		if _, err := tx.Blocks.BatchUpdate(ctx, notebookID, plan.Update); err != nil {
			return err
		}
		if err := tx.Blocks.BatchDelete(ctx, notebookID, plan.Delete); err != nil {
			return err
		}
		blocks, err = tx.Blocks.List(ctx, notebookID)
		return err
	})
	if err != nil {
		return nil, s.fail(opReconcileBlocks, "reconcile_failed", err, zap.Int64("notebook_id", notebookID))
	}

	s.loggerOrDefault().Debug("blocks reconciled",
		zap.Int64("notebook_id", notebookID),
		zap.Int("created", len(plan.Create)),
		zap.Int("updated", len(plan.Update)),
		zap.Int("deleted", len(plan.Delete)))
	return blocks, nil
}

// RecordView stores a view of a notebook by an anonymous client identifier, which is hashed first.
func (s *Service) RecordView(ctx context.Context, notebookID int64, clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return nil
	}
	if _, err := s.repos.Views.Add(ctx, notebookID, HashClientID(clientID)); err != nil {
		return s.fail(opRecordView, "insert_failed", err, zap.Int64("notebook_id", notebookID))
	}
	return nil
}

// HashClientID returns the hex SHA-256 digest stored for a client identifier.
func HashClientID(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return hex.EncodeToString(sum[:])
}

func authorize(ctx context.Context, repos *repository.Repositories, notebookID, userID int64) (repository.NotebookDetail, error) {
	notebook, err := repos.Notebooks.Read(ctx, repository.NotebookWithID(notebookID))
	if err != nil {
		return repository.NotebookDetail{}, err
	}
	if userID == 0 || notebook.AuthorID != userID {
		return repository.NotebookDetail{}, fmt.Errorf("%w: notebook %d", ErrUnauthorized, notebookID)
	}
	return notebook, nil
}

// fail passes known outcomes through unchanged and wraps unexpected failures in a ServiceError.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	if errors.Is(err, repository.ErrInvariantViolation) {
		s.logError(operation, reason, err, fields...)
		return err
	}
	if isExpected(err) {
		return err
	}
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

func isExpected(err error) bool {
	for _, target := range []error{
		ErrUnauthorized,
		repository.ErrNotFound,
		repository.ErrInvariantViolation,
		repository.ErrNotCreated,
		repository.ErrNotUpdated,
		repository.ErrNotDeleted,
		repository.ErrInvalidBlock,
		repository.ErrInvalidBlockType,
		repository.ErrInvalidVisibility,
		specification.ErrInvalidSpecification,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notebooks service error", attrs...)
}
