package repo

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/academy/internal/models"
	"github.com/Skotchmaster/academy/internal/principal"
)

var (
	ErrConflict             = errors.New("username or email already taken")
	ErrUnknownRole          = errors.New("unknown role")
	ErrVerificationFailed   = errors.New("verification code mismatch")
	ErrResetTokenNotFound   = errors.New("password reset token not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found or already used")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
)

// GormRepo stores users, workers and roles.
type GormRepo struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db, Now: time.Now}
}

func (r *GormRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func modelFor(kind principal.Kind) (any, error) {
	switch kind {
	case principal.KindUser:
		return &models.User{}, nil
	case principal.KindWorker:
		return &models.Worker{}, nil
	default:
		return nil, principal.ErrAccountNotFound
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return principal.ErrAccountNotFound
	}
	return err
}
