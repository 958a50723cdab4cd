package repo

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/academy/internal/models"
)

// EnsureRoles creates any missing role rows. Existing rows are left untouched.
func (r *GormRepo) EnsureRoles(ctx context.Context, names ...string) error {
	now := r.now()
	for _, name := range names {
		role := models.NewRole(name, now)
		if err := r.DB.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(role).Error; err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
	}
	return nil
}

func (r *GormRepo) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.DB.WithContext(ctx).Order("name ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func rolesByName(tx *gorm.DB, names []string) ([]models.Role, error) {
	names = slices.Compact(slices.Sorted(slices.Values(names)))
	if len(names) == 0 {
		return nil, nil
	}
	var roles []models.Role
	if err := tx.Where("name IN ? AND active = ?", names, true).Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) != len(names) {
		return nil, fmt.Errorf("%w: want %v", ErrUnknownRole, names)
	}
	return roles, nil
}
