package revocation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/usergate/internal/models"
)

// GormStore keeps the blacklist in the relational database. Expired rows
// are ignored on read and removed by Purge, which a Sweeper calls
// periodically.
type GormStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db, Now: time.Now}
}

func (s *GormStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *GormStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	row := models.RevokedToken{JTI: jti, ExpiresAt: s.now().Add(ttl)}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jti"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("db revoke: %w", err)
	}
	return nil
}

func (s *GormStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, s.now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("db is_revoked: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) Purge(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&models.RevokedToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("db purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}
