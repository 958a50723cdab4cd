package httpserver

import (
	"github.com/Skotchmaster/academy/internal/models"
	"github.com/Skotchmaster/academy/internal/principal"
)

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required,max=255"`
	Password        string `json:"password"        validate:"required,max=72"`
}

type loginResponse struct {
	AccessToken   string         `json:"accessToken"`
	RefreshToken  string         `json:"refreshToken"`
	ExpiresIn     int64          `json:"expiresIn"`
	PrincipalKind principal.Kind `json:"principalKind"`
	Roles         []string       `json:"roles"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type roleResponse struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func newRoleList(roles []models.Role) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResponse{ID: r.ID, Name: r.Name, Active: r.Active})
	}
	return out
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type accountRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,username_format"`
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72,password_strength"`
}

type verifyRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required,max=255"`
	Code            string `json:"code"            validate:"required,len=6,numeric"`
}

type forgotPasswordRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required,max=255"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"       validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72,password_strength"`
}

type accountResponse struct {
	ID            uint           `json:"id"`
	PrincipalKind principal.Kind `json:"principalKind"`
	Username      string         `json:"username"`
	Email         string         `json:"email"`
	Active        bool           `json:"active"`
	Roles         []string       `json:"roles"`
	OwnerID       uint           `json:"ownerId,omitempty"`
}

func newAccountResponse(p principal.Principal) accountResponse {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return accountResponse{
		ID:            p.ID,
		PrincipalKind: p.Kind,
		Username:      p.Username,
		Email:         p.Email,
		Active:        p.Active,
		Roles:         roles,
		OwnerID:       p.OwnerID,
	}
}

func newAccountList(ps []principal.Principal) []accountResponse {
	out := make([]accountResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, newAccountResponse(p))
	}
	return out
}

type meResponse struct {
	Username      string         `json:"username"`
	PrincipalKind principal.Kind `json:"principalKind"`
	Roles         []string       `json:"roles"`
}
