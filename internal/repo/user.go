package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/models"
)

var sortColumns = map[string]string{
	"username":   "username",
	"created_at": "created_at",
}

func (r *GormRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) SetRole(ctx context.Context, id uint, role domain.Role) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", string(role))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	taken, err := r.taken(ctx, 0, u.Username, u.Email)
	if err != nil {
		return err
	}
	if taken {
		return ErrUserAlreadyExist
	}
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExist
		}
		return err
	}
	return nil
}

// EnsureUser creates u unless a user with the same username exists.
// It reports whether a row was inserted.
func (r *GormRepo) EnsureUser(ctx context.Context, u *models.User) (bool, error) {
	tx := r.DB.WithContext(ctx).Where("username = ?", u.Username).FirstOrCreate(u)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *GormRepo) ListUsers(ctx context.Context, offset, limit int, sortBy string) ([]models.User, error) {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = "created_at"
	}
	var users []models.User
	err := r.DB.WithContext(ctx).
		Order(column + " ASC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser changes the profile of id. A new username stamps changedAt as
// CredentialsChangedAt.
func (r *GormRepo) UpdateUser(ctx context.Context, id uint, username, email string, changedAt time.Time) (*models.User, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	taken, err := r.taken(ctx, id, username, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUserAlreadyExist
	}

	if user.Username != username {
		user.CredentialsChangedAt = &changedAt
	}
	user.Username = username
	user.Email = email
	if err := r.DB.WithContext(ctx).Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserAlreadyExist
		}
		return nil, err
	}
	return user, nil
}

func (r *GormRepo) DeleteUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).Delete(&models.User{}, id).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// SearchUsers is the database fallback for the user directory when no
// search cluster is configured.
func (r *GormRepo) SearchUsers(ctx context.Context, q string, offset, limit int) (int64, []models.User, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return 0, []models.User{}, nil
	}
	pattern := "%" + strings.ToLower(q) + "%"
	where := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)

	var total int64
	if err := where.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	users := make([]models.User, 0, limit)
	err := r.DB.WithContext(ctx).
		Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern).
		Order("username ASC").
		Offset(offset).Limit(limit).
		Find(&users).Error
	if err != nil {
		return 0, nil, err
	}
	return total, users, nil
}

func (r *GormRepo) taken(ctx context.Context, exceptID uint, username, email string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("(username = ? OR email = ?) AND id <> ?", username, email, exceptID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
