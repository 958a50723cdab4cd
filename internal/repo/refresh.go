package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/academy/internal/hash"
	"github.com/Skotchmaster/academy/internal/models"
	"github.com/Skotchmaster/academy/internal/principal"
)

const refreshTokenBytes = 32

// RefreshStore keeps at most one live refresh token per principal. Only the
// SHA-256 of a token is stored; the raw value exists on the client alone.
type RefreshStore struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

// RefreshGrant describes the principal a rotated token belonged to.
type RefreshGrant struct {
	Owner     principal.Ref
	Username  string
	Email     string
	ExpiresAt time.Time
}

func NewRefreshStore(db *gorm.DB, ttl time.Duration) *RefreshStore {
	return &RefreshStore{DB: db, TTL: ttl, Now: time.Now}
}

func (s *RefreshStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Issue replaces whatever refresh token the principal held with a new one.
func (s *RefreshStore) Issue(ctx context.Context, p principal.Principal) (string, time.Time, error) {
	col, err := models.OwnerColumn(p.Kind)
	if err != nil {
		return "", time.Time{}, err
	}
	raw, err := hash.RandomToken(refreshTokenBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	row, err := models.NewRefreshToken(p, hash.Sha256Hex(raw), now.Add(s.TTL), now)
	if err != nil {
		return "", time.Time{}, err
	}

	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: col}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "username", "email", "updated_at"}),
	}).Create(row).Error; err != nil {
		return "", time.Time{}, fmt.Errorf("store refresh token: %w", err)
	}
	return raw, row.ExpiresAt, nil
}

// Rotate exchanges raw for a fresh token in one transaction. The update is
// conditional on the old token value, so of two concurrent rotations of the
// same token exactly one succeeds; the loser gets ErrRefreshTokenNotFound.
// Expired rows are deleted and reported as ErrRefreshTokenExpired.
func (s *RefreshStore) Rotate(ctx context.Context, raw string) (*RefreshGrant, string, error) {
	if raw == "" {
		return nil, "", ErrRefreshTokenNotFound
	}
	newRaw, err := hash.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	oldHash := hash.Sha256Hex(raw)

	var (
		grant   RefreshGrant
		expired bool
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.RefreshToken
		if err := tx.Where("token = ?", oldHash).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRefreshTokenNotFound
			}
			return err
		}

		now := s.now()
		if row.Expired(now) {
			expired = true
			return tx.Where("id = ? AND token = ?", row.ID, oldHash).Delete(&models.RefreshToken{}).Error
		}

		exp := now.Add(s.TTL)
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND token = ?", row.ID, oldHash).
			Updates(map[string]any{"token": hash.Sha256Hex(newRaw), "expires_at": exp, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrRefreshTokenNotFound
		}

		grant = RefreshGrant{Owner: row.Owner(), Username: row.Username, Email: row.Email, ExpiresAt: exp}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if expired {
		return nil, "", ErrRefreshTokenExpired
	}
	return &grant, newRaw, nil
}

// Revoke deletes the principal's refresh token, if any.
func (s *RefreshStore) Revoke(ctx context.Context, ref principal.Ref) error {
	col, err := models.OwnerColumn(ref.Kind)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Where(col+" = ?", ref.ID).Delete(&models.RefreshToken{}).Error
}

// RevokeToken deletes the row holding raw. Unknown tokens are not an error.
func (s *RefreshStore) RevokeToken(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.DB.WithContext(ctx).Where("token = ?", hash.Sha256Hex(raw)).Delete(&models.RefreshToken{}).Error
}
