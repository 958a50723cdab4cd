package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/academy/internal/models"
	"github.com/Skotchmaster/academy/internal/principal"
)

type NewAccount struct {
	Username         string
	Email            string
	PasswordHash     string
	Roles            []string
	Active           bool
	VerificationCode string
}

func (r *GormRepo) FindUser(ctx context.Context, usernameOrEmail string) (*principal.Principal, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Preload("Roles").
		Where("username = ? OR email = ?", usernameOrEmail, usernameOrEmail).
		First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	p := u.Principal()
	return &p, nil
}

func (r *GormRepo) FindWorker(ctx context.Context, usernameOrEmail string) (*principal.Principal, error) {
	var w models.Worker
	if err := r.DB.WithContext(ctx).Preload("Roles").
		Where("username = ? OR email = ?", usernameOrEmail, usernameOrEmail).
		First(&w).Error; err != nil {
		return nil, notFound(err)
	}
	p := w.Principal()
	return &p, nil
}

func (r *GormRepo) LoadPrincipal(ctx context.Context, ref principal.Ref) (*principal.Principal, error) {
	var p principal.Principal
	switch ref.Kind {
	case principal.KindUser:
		var u models.User
		if err := r.DB.WithContext(ctx).Preload("Roles").First(&u, ref.ID).Error; err != nil {
			return nil, notFound(err)
		}
		p = u.Principal()
	case principal.KindWorker:
		var w models.Worker
		if err := r.DB.WithContext(ctx).Preload("Roles").First(&w, ref.ID).Error; err != nil {
			return nil, notFound(err)
		}
		p = w.Principal()
	default:
		return nil, principal.ErrAccountNotFound
	}
	return &p, nil
}

// nameTaken checks both principal tables, soft-deleted rows included, since the
// unique indexes still hold their values.
func nameTaken(tx *gorm.DB, username, email string) (bool, error) {
	for _, m := range []any{&models.User{}, &models.Worker{}} {
		var n int64
		if err := tx.Unscoped().Model(m).
			Where("username = ? OR email = ? OR username = ? OR email = ?", username, email, email, username).
			Count(&n).Error; err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (r *GormRepo) CreateUser(ctx context.Context, acc NewAccount) (*models.User, error) {
	var user *models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, acc.Username, acc.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		roles, err := rolesByName(tx, acc.Roles)
		if err != nil {
			return err
		}

		user = models.NewUser(acc.Username, acc.Email, acc.PasswordHash, roles, r.now())
		user.Active = acc.Active
		if acc.VerificationCode != "" {
			code := acc.VerificationCode
			user.VerificationCode = &code
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *GormRepo) CreateWorker(ctx context.Context, ownerID uint, acc NewAccount) (*models.Worker, error) {
	var worker *models.Worker
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if err := tx.First(&owner, ownerID).Error; err != nil {
			return notFound(err)
		}
		taken, err := nameTaken(tx, acc.Username, acc.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		roles, err := rolesByName(tx, acc.Roles)
		if err != nil {
			return err
		}

		worker = models.NewWorker(owner.ID, acc.Username, acc.Email, acc.PasswordHash, roles, r.now())
		if err := tx.Create(worker).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return worker, nil
}

func (r *GormRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Preload("Roles").Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *GormRepo) ListWorkers(ctx context.Context, ownerID uint) ([]models.Worker, error) {
	var workers []models.Worker
	if err := r.DB.WithContext(ctx).Preload("Roles").
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&workers).Error; err != nil {
		return nil, err
	}
	return workers, nil
}

// SoftDeleteUser marks the user and its workers deleted and drops their refresh tokens.
func (r *GormRepo) SoftDeleteUser(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return notFound(err)
		}

		var workerIDs []uint
		if err := tx.Model(&models.Worker{}).Where("owner_id = ?", id).Pluck("id", &workerIDs).Error; err != nil {
			return err
		}

		q := tx.Where("user_id = ?", id)
		if len(workerIDs) > 0 {
			q = q.Or("worker_id IN ?", workerIDs)
		}
		if err := q.Delete(&models.RefreshToken{}).Error; err != nil {
			return fmt.Errorf("revoke refresh tokens: %w", err)
		}

		if len(workerIDs) > 0 {
			if err := tx.Delete(&models.Worker{}, workerIDs).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&user).Error
	})
}

// MaxVerifyAttempts is the number of wrong codes after which the pending
// verification code is discarded.
const MaxVerifyAttempts = 5

// Activate clears the verification code and marks the account active when code
// matches. Every miss is counted; once MaxVerifyAttempts is reached the code is
// discarded and no later submission can activate the account.
func (r *GormRepo) Activate(ctx context.Context, ref principal.Ref, code string) error {
	m, err := modelFor(ref.Kind)
	if err != nil {
		return err
	}
	db := r.DB.WithContext(ctx)
	now := r.now()

	if code != "" {
		res := db.Model(m).
			Where("id = ? AND verification_code = ? AND verify_attempts < ?", ref.ID, code, MaxVerifyAttempts).
			Updates(map[string]any{"active": true, "verification_code": nil, "verify_attempts": 0, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}
	}

	if err := db.Model(m).
		Where("id = ? AND verification_code IS NOT NULL", ref.ID).
		Updates(map[string]any{"verify_attempts": gorm.Expr("verify_attempts + 1"), "updated_at": now}).Error; err != nil {
		return fmt.Errorf("count verification attempt: %w", err)
	}
	if err := db.Model(m).
		Where("id = ? AND verification_code IS NOT NULL AND verify_attempts >= ?", ref.ID, MaxVerifyAttempts).
		Update("verification_code", nil).Error; err != nil {
		return fmt.Errorf("discard verification code: %w", err)
	}
	return ErrVerificationFailed
}

func (r *GormRepo) SetPasswordResetToken(ctx context.Context, ref principal.Ref, tokenHash string) error {
	m, err := modelFor(ref.Kind)
	if err != nil {
		return err
	}
	res := r.DB.WithContext(ctx).Model(m).
		Where("id = ?", ref.ID).
		Updates(map[string]any{"password_reset_token": tokenHash, "updated_at": r.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return principal.ErrAccountNotFound
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new hash. The token is
// single-use: the update only matches while the token is still present.
func (r *GormRepo) ResetPassword(ctx context.Context, tokenHash, passwordHash string) (principal.Ref, error) {
	if tokenHash == "" {
		return principal.Ref{}, ErrResetTokenNotFound
	}
	for _, kind := range []principal.Kind{principal.KindUser, principal.KindWorker} {
		m, _ := modelFor(kind)
		var ids []uint
		if err := r.DB.WithContext(ctx).Model(m).Where("password_reset_token = ?", tokenHash).Pluck("id", &ids).Error; err != nil {
			return principal.Ref{}, err
		}
		if len(ids) == 0 {
			continue
		}
		res := r.DB.WithContext(ctx).Model(m).
			Where("id = ? AND password_reset_token = ?", ids[0], tokenHash).
			Updates(map[string]any{"password_hash": passwordHash, "password_reset_token": nil, "updated_at": r.now()})
		if res.Error != nil {
			return principal.Ref{}, res.Error
		}
		if res.RowsAffected == 0 {
			return principal.Ref{}, ErrResetTokenNotFound
		}
		return principal.Ref{Kind: kind, ID: ids[0]}, nil
	}
	return principal.Ref{}, ErrResetTokenNotFound
}
