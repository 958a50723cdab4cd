package models

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/academy/internal/principal"
)

var ErrRefreshOwner = errors.New("refresh token must reference exactly one of user or worker")

type Role struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"uniqueIndex;not null;size:64" json:"name"`
	Active    bool           `gorm:"not null"                     json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type User struct {
	ID                 uint           `gorm:"primaryKey;autoIncrement"     json:"id"`
	Username           string         `gorm:"uniqueIndex;not null;size:64"  json:"username"`
	Email              string         `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash       string         `gorm:"not null"                     json:"-"`
	Active             bool           `gorm:"not null"                     json:"active"`
	VerificationCode   *string        `gorm:"size:64"                      json:"-"`
	VerifyAttempts     int            `gorm:"not null;default:0"           json:"-"`
	PasswordResetToken *string        `gorm:"uniqueIndex;size:64"          json:"-"`
	Roles              []Role         `gorm:"many2many:user_roles;"        json:"roles"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

type Worker struct {
	ID                 uint           `gorm:"primaryKey;autoIncrement"     json:"id"`
	OwnerID            uint           `gorm:"index;not null"               json:"owner_id"`
	Owner              *User          `gorm:"foreignKey:OwnerID"           json:"-"`
	Username           string         `gorm:"uniqueIndex;not null;size:64"  json:"username"`
	Email              string         `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash       string         `gorm:"not null"                     json:"-"`
	Active             bool           `gorm:"not null"                     json:"active"`
	VerificationCode   *string        `gorm:"size:64"                      json:"-"`
	VerifyAttempts     int            `gorm:"not null;default:0"           json:"-"`
	PasswordResetToken *string        `gorm:"uniqueIndex;size:64"          json:"-"`
	Roles              []Role         `gorm:"many2many:worker_roles;"      json:"roles"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// RefreshToken is the single live refresh token of a principal. Token holds
// the SHA-256 hex of the opaque value handed to the client.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"                   json:"id"`
	Token     string    `gorm:"uniqueIndex;not null;size:64" json:"-"`
	ExpiresAt time.Time `gorm:"index;not null"               json:"expires_at"`
	Username  string    `gorm:"not null"                     json:"username"`
	Email     string    `gorm:"not null"                     json:"email"`
	UserID    *uint     `gorm:"uniqueIndex"                  json:"user_id,omitempty"`
	WorkerID  *uint     `gorm:"uniqueIndex"                  json:"worker_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRole(name string, now time.Time) *Role {
	return &Role{Name: name, Active: true, CreatedAt: now, UpdatedAt: now}
}

func NewUser(username, email, passwordHash string, roles []Role, now time.Time) *User {
	return &User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewWorker(ownerID uint, username, email, passwordHash string, roles []Role, now time.Time) *Worker {
	return &Worker{
		OwnerID:      ownerID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Active:       true,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewRefreshToken(owner principal.Principal, tokenHash string, expiresAt, now time.Time) (*RefreshToken, error) {
	rt := &RefreshToken{
		Token:     tokenHash,
		ExpiresAt: expiresAt,
		Username:  owner.Username,
		Email:     owner.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id := owner.ID
	switch owner.Kind {
	case principal.KindUser:
		rt.UserID = &id
	case principal.KindWorker:
		rt.WorkerID = &id
	}
	if err := rt.CheckOwner(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *RefreshToken) CheckOwner() error {
	if (rt.UserID == nil) == (rt.WorkerID == nil) {
		return ErrRefreshOwner
	}
	return nil
}

func (rt *RefreshToken) Owner() principal.Ref {
	if rt.UserID != nil {
		return principal.Ref{Kind: principal.KindUser, ID: *rt.UserID}
	}
	if rt.WorkerID != nil {
		return principal.Ref{Kind: principal.KindWorker, ID: *rt.WorkerID}
	}
	return principal.Ref{}
}

// OwnerColumn returns the column holding the owner id for a principal kind.
func OwnerColumn(kind principal.Kind) (string, error) {
	switch kind {
	case principal.KindUser:
		return "user_id", nil
	case principal.KindWorker:
		return "worker_id", nil
	default:
		return "", ErrRefreshOwner
	}
}

func (rt *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(rt.ExpiresAt)
}

func roleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if r.Active {
			names = append(names, r.Name)
		}
	}
	return names
}

func (u *User) Principal() principal.Principal {
	return principal.Principal{
		Kind:         principal.KindUser,
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Active:       u.Active,
		Roles:        roleNames(u.Roles),
	}
}

func (w *Worker) Principal() principal.Principal {
	return principal.Principal{
		Kind:         principal.KindWorker,
		ID:           w.ID,
		Username:     w.Username,
		Email:        w.Email,
		PasswordHash: w.PasswordHash,
		Active:       w.Active,
		Roles:        roleNames(w.Roles),
		OwnerID:      w.OwnerID,
	}
}
