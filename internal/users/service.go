package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/notebooks/internal/auth"
	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"go.uber.org/zap"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for user resolution.
type ServiceConfig struct {
	Repositories *repository.Repositories
	Logger       *zap.Logger
}

// Service maps session identities onto notebook users, creating them on first sight.
type Service struct {
	repos  *repository.Repositories
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repositories == nil {
		return nil, fmt.Errorf("users: repositories required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repos:  cfg.Repositories,
		logger: logger,
	}, nil
}

// ResolveUser returns the user behind the session claims. Unknown subjects get a new user
// named after the username claim, with the picture claim as initial profile picture.
func (s *Service) ResolveUser(ctx context.Context, claims auth.SessionClaims) (repository.User, error) {
	subject := normalize(claims.Subject)
	username := normalize(claims.Username)
	if subject == "" || username == "" {
		return repository.User{}, ErrInvalidIdentity
	}

	if cached, ok := s.cache.Load(subject); ok {
		if user, ok := cached.(repository.User); ok {
			return user, nil
		}
	}

	user, err := s.repos.Users.Read(ctx, repository.UserWithExternalID(subject))
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.createUser(ctx, subject, username, normalize(claims.Picture))
	}
	if err != nil {
		return repository.User{}, err
	}

	s.cache.Store(subject, user)
	return user, nil
}

func (s *Service) createUser(ctx context.Context, subject, username, picture string) (repository.User, error) {
	var created repository.User
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		user, err := tx.Users.Create(ctx, subject, username)
		if err != nil {
			return err
		}
		if picture != "" {
			user, err = tx.Users.UpdatePicture(ctx, user.ID, picture)
			if err != nil {
				return err
			}
		}
		created = user
		return nil
	})
	if err != nil {
		return repository.User{}, err
	}
	s.logger.Info("user created",
		zap.Int64("user_id", created.ID),
		zap.String("username", created.Username))
	return created, nil
}

// UpdatePicture replaces the profile picture of user. An empty picture removes it.
func (s *Service) UpdatePicture(ctx context.Context, user repository.User, picture string) (repository.User, error) {
	updated, err := s.repos.Users.UpdatePicture(ctx, user.ID, picture)
	if err != nil {
		return repository.User{}, err
	}
	s.cache.Store(updated.ExternalID, updated)
	return updated, nil
}

// Profile returns the user with the given username.
func (s *Service) Profile(ctx context.Context, username string) (repository.User, error) {
	username = normalize(username)
	if username == "" {
		return repository.User{}, fmt.Errorf("%w: username required", repository.ErrNotFound)
	}
	return s.repos.Users.Read(ctx, repository.UserWithUsername(username))
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
