package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/academy/internal/events"
	"github.com/Skotchmaster/academy/internal/hash"
	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/metrics"
	"github.com/Skotchmaster/academy/internal/principal"
	"github.com/Skotchmaster/academy/internal/repo"
	"github.com/Skotchmaster/academy/internal/tokens"
)

type AuthService struct {
	resolver *principal.Resolver
	codec    *tokens.Codec
	refresh  *repo.RefreshStore
	repo     *repo.GormRepo
	hasher   hash.Bcrypt
	events   events.Publisher
	now      func() time.Time
}

type Deps struct {
	Resolver *principal.Resolver
	Codec    *tokens.Codec
	Refresh  *repo.RefreshStore
	Repo     *repo.GormRepo
	Hasher   hash.Bcrypt
	Events   events.Publisher
}

func New(d Deps) *AuthService {
	pub := d.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &AuthService{
		resolver: d.Resolver,
		codec:    d.Codec,
		refresh:  d.Refresh,
		repo:     d.Repo,
		hasher:   d.Hasher,
		events:   pub,
		now:      time.Now,
	}
}

// TokenPair carries both tokens. ExpiresIn is the access token lifetime.
type TokenPair struct {
	AccessToken  string
	AccessExp    time.Time
	ExpiresIn    time.Duration
	RefreshToken string
	RefreshExp   time.Time
}

type LoginResult struct {
	TokenPair
	PrincipalKind principal.Kind
	Roles         []string
}

// publish is best effort: a broker outage must not fail the request.
func (s *AuthService) publish(ctx context.Context, typ string, p principal.Principal, data map[string]string) {
	ev := events.NewEvent(typ, p, data, s.now())
	if err := s.events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", typ, "event_id", ev.ID, "error", err)
	}
}

func (s *AuthService) issuePair(ctx context.Context, p principal.Principal) (*TokenPair, error) {
	access, accessExp, err := s.codec.Issue(p)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.refresh.Issue(ctx, p)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, AccessExp: accessExp, ExpiresIn: s.codec.TTL(), RefreshToken: refresh, RefreshExp: refreshExp}, nil
}

// Login checks the credential and hands out a fresh token pair. Any refresh
// token the principal held before is replaced.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	p, err := s.resolver.Authenticate(ctx, usernameOrEmail, password)
	if err != nil {
		switch {
		case errors.Is(err, principal.ErrInvalidCredentials):
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			l.Warn("login_failed", "status", 401, "reason", "invalid credentials")
		case errors.Is(err, principal.ErrAccountDisabled):
			metrics.LoginAttempts.WithLabelValues("disabled").Inc()
			l.Warn("login_failed", "status", 401, "reason", "account disabled")
		default:
			metrics.LoginAttempts.WithLabelValues("error").Inc()
			l.Error("login_failed", "status", 500, "error", err)
		}
		return nil, err
	}

	pair, err := s.issuePair(ctx, *p)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		l.Error("login_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	l.Info("login_successful", "username", p.Username, "kind", p.Kind)
	s.publish(ctx, events.TypeLogin, *p, nil)

	return &LoginResult{TokenPair: *pair, PrincipalKind: p.Kind, Roles: p.Roles}, nil
}

// Refresh rotates raw and issues an access token carrying the principal's
// current roles. A principal that vanished or was disabled loses its token.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	grant, newRaw, err := s.refresh.Rotate(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrRefreshTokenNotFound):
			metrics.TokenRefresh.WithLabelValues("invalid").Inc()
			l.Warn("refresh_failed", "status", 401, "reason", "not found or reused")
		case errors.Is(err, repo.ErrRefreshTokenExpired):
			metrics.TokenRefresh.WithLabelValues("expired").Inc()
			l.Warn("refresh_failed", "status", 401, "reason", "expired")
		default:
			metrics.TokenRefresh.WithLabelValues("error").Inc()
			l.Error("refresh_failed", "status", 500, "error", err)
		}
		return nil, err
	}

	p, err := s.resolver.Load(ctx, grant.Owner)
	if err == nil && !p.Active {
		err = principal.ErrAccountDisabled
	}
	if err != nil {
		if errors.Is(err, principal.ErrAccountNotFound) || errors.Is(err, principal.ErrAccountDisabled) {
			if rerr := s.refresh.Revoke(ctx, grant.Owner); rerr != nil {
				l.Error("refresh_revoke_failed", "error", rerr)
			}
			metrics.TokenRefresh.WithLabelValues("invalid").Inc()
			l.Warn("refresh_failed", "status", 401, "reason", "principal unavailable", "kind", grant.Owner.Kind, "id", grant.Owner.ID)
			return nil, err
		}
		metrics.TokenRefresh.WithLabelValues("error").Inc()
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	access, accessExp, err := s.codec.Issue(*p)
	if err != nil {
		metrics.TokenRefresh.WithLabelValues("error").Inc()
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	metrics.TokenRefresh.WithLabelValues("success").Inc()
	return &TokenPair{AccessToken: access, AccessExp: accessExp, ExpiresIn: s.codec.TTL(), RefreshToken: newRaw, RefreshExp: grant.ExpiresAt}, nil
}

// Logout forgets the refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if err := s.refresh.RevokeToken(ctx, raw); err != nil {
		logging.FromContext(ctx).Error("logout_failed", "status", 500, "error", err)
		return err
	}
	return nil
}
