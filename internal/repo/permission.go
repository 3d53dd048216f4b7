package repo

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/models"
)

func (r *GormRepo) GrantsFor(ctx context.Context, role domain.Role) ([]domain.PermissionGrant, error) {
	var rows []models.Permission
	if err := r.DB.WithContext(ctx).Where("role = ?", string(role)).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	grants := make([]domain.PermissionGrant, 0, len(rows))
	for _, p := range rows {
		grants = append(grants, p.Grant())
	}
	return grants, nil
}

// AddGrant stores g. Adding a grant that already exists is a no-op.
func (r *GormRepo) AddGrant(ctx context.Context, g domain.PermissionGrant) error {
	g = g.Normalize()
	row := models.Permission{
		Role:     string(g.Role),
		Endpoint: g.Endpoint,
		Method:   g.Method,
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}
