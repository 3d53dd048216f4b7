package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/logging"
	"github.com/Skotchmaster/usergate/internal/models"
	"github.com/Skotchmaster/usergate/internal/repo"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 255
	minPasswordLen = 8
)

type UserRepository interface {
	UserStore
	CreateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, offset, limit int, sortBy string) ([]models.User, error)
	UpdateUser(ctx context.Context, id uint, username, email string, changedAt time.Time) (*models.User, error)
	DeleteUser(ctx context.Context, id uint) (*models.User, error)
}

// UserIndex mirrors user rows into the search directory.
type UserIndex interface {
	IndexUser(ctx context.Context, u models.User) error
	DeleteUser(ctx context.Context, id uint) error
}

type UserService struct {
	Repo   UserRepository
	Hasher Hasher
	Events Publisher
	Index  UserIndex
	Now    func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func validateProfile(username, email string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", ErrValidation, minUsernameLen, maxUsernameLen)
	}
	if utf8.RuneCountInString(email) > maxUsernameLen {
		return fmt.Errorf("%w: email too long", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	return nil
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "users.register")

	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if err := validateProfile(username, email); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}

	pwHash, err := s.Hasher.Hash(password)
	if err != nil {
		l.Error("register_error", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	now := s.now()
	user := &models.User{
		Username:             username,
		Email:                email,
		PasswordHash:         pwHash,
		Role:                 string(domain.RoleUser),
		CreatedAt:            now,
		CredentialsChangedAt: &now,
	}
	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "reason", "user already exist")
			return nil, ErrConflict
		}
		l.Error("register_error", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	s.index(ctx, *user)
	publish(ctx, s.Events, user.Username, map[string]any{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.Repo.FindByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, offset, limit int, sortBy string) ([]models.User, error) {
	return s.Repo.ListUsers(ctx, offset, limit, sortBy)
}

func (s *UserService) Update(ctx context.Context, id uint, username, email string) (*models.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if err := validateProfile(username, email); err != nil {
		return nil, err
	}
	user, err := s.Repo.UpdateUser(ctx, id, username, email, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			return nil, ErrConflict
		}
		return nil, err
	}
	s.index(ctx, *user)
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.Repo.DeleteUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Index != nil {
		if err := s.Index.DeleteUser(ctx, id); err != nil {
			logging.FromContext(ctx).Error("index_delete_failed", "user_id", id, "error", err)
		}
	}
	publish(ctx, s.Events, user.Username, map[string]any{
		"type":     "user_deleted",
		"userID":   user.ID,
		"username": user.Username,
	})
	return user, nil
}

// MakeAdmin elevates a user. Sessions already issued to that user pick up
// the new role on their next authenticated request.
func (s *UserService) MakeAdmin(ctx context.Context, id uint) (*models.User, error) {
	if err := s.Repo.SetRole(ctx, id, domain.RoleAdmin); err != nil {
		return nil, err
	}
	user, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.index(ctx, *user)
	publish(ctx, s.Events, user.Username, map[string]any{
		"type":     "user_role_changed",
		"userID":   user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
	return user, nil
}

const reindexPage = 200

// Reindex pushes every stored user to the search index. Rows written while
// the index was not configured, such as the bootstrapped admin, only become
// searchable this way.
func (s *UserService) Reindex(ctx context.Context) (int, error) {
	if s.Index == nil {
		return 0, nil
	}
	n := 0
	for offset := 0; ; offset += reindexPage {
		page, err := s.Repo.ListUsers(ctx, offset, reindexPage, "created_at")
		if err != nil {
			return n, err
		}
		for _, u := range page {
			if err := s.Index.IndexUser(ctx, u); err != nil {
				return n, fmt.Errorf("reindex user %d: %w", u.ID, err)
			}
			n++
		}
		if len(page) < reindexPage {
			return n, nil
		}
	}
}

func (s *UserService) index(ctx context.Context, u models.User) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexUser(ctx, u); err != nil {
		logging.FromContext(ctx).Error("index_user_failed", "user_id", u.ID, "error", err)
	}
}
