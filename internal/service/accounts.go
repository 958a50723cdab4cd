package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/academy/internal/events"
	"github.com/Skotchmaster/academy/internal/hash"
	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/metrics"
	"github.com/Skotchmaster/academy/internal/models"
	"github.com/Skotchmaster/academy/internal/principal"
	"github.com/Skotchmaster/academy/internal/repo"
)

const (
	verificationCodeDigits = 6
	resetTokenBytes        = 32
)

var ErrNotAUser = errors.New("only users can own workers")

type AccountInput struct {
	Username string
	Email    string
	Password string
}

// Register creates an inactive user holding ROLE_USER. The verification code
// travels in the user_registered event; delivering it is someone else's job.
func (s *AuthService) Register(ctx context.Context, in AccountInput) (*principal.Principal, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	pwHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := hash.RandomDigits(verificationCodeDigits)
	if err != nil {
		return nil, fmt.Errorf("verification code: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, repo.NewAccount{
		Username:         in.Username,
		Email:            in.Email,
		PasswordHash:     pwHash,
		Roles:            []string{principal.RoleUser},
		VerificationCode: code,
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			l.Warn("register_error", "status", 409, "reason", "username or email taken")
		} else {
			l.Error("register_error", "status", 500, "error", err)
		}
		return nil, err
	}

	p := u.Principal()
	metrics.Registrations.Inc()
	l.Info("register_successful", "user_id", p.ID)
	s.publish(ctx, events.TypeUserRegistered, p, map[string]string{"verification_code": code})
	return &p, nil
}

// Verify activates the account named by usernameOrEmail. An unknown account
// is reported the same way as a wrong code.
func (s *AuthService) Verify(ctx context.Context, usernameOrEmail, code string) error {
	p, err := s.resolver.Resolve(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, principal.ErrAccountNotFound) {
			return repo.ErrVerificationFailed
		}
		return err
	}
	if err := s.repo.Activate(ctx, p.Ref(), code); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("account_verified", "kind", p.Kind, "id", p.ID)
	return nil
}

// ForgotPassword stores a fresh reset token for the account, if there is one.
// It succeeds either way so callers cannot probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, usernameOrEmail string) error {
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password")

	p, err := s.resolver.Resolve(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, principal.ErrAccountNotFound) {
			l.Info("password_reset_unknown_account")
			return nil
		}
		return err
	}

	token, err := hash.RandomToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	if err := s.repo.SetPasswordResetToken(ctx, p.Ref(), hash.Sha256Hex(token)); err != nil {
		return err
	}
	s.publish(ctx, events.TypePasswordResetRequested, *p, map[string]string{"reset_token": token})
	return nil
}

// ResetPassword consumes a reset token, sets the new password and signs the
// principal out of every refresh session.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	pwHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	ref, err := s.repo.ResetPassword(ctx, hash.Sha256Hex(token), pwHash)
	if err != nil {
		return err
	}
	if err := s.refresh.Revoke(ctx, ref); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	logging.FromContext(ctx).Info("password_reset", "kind", ref.Kind, "id", ref.ID)
	return nil
}

// CreateUser adds an active user with the given roles. Used by the CLI and
// bootstrap, which skip email verification.
func (s *AuthService) CreateUser(ctx context.Context, in AccountInput, roles ...string) (*principal.Principal, error) {
	pwHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.repo.CreateUser(ctx, repo.NewAccount{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: pwHash,
		Roles:        roles,
		Active:       true,
	})
	if err != nil {
		return nil, err
	}
	p := u.Principal()
	return &p, nil
}

// CreateWorker adds a worker owned by the user named owner.
func (s *AuthService) CreateWorker(ctx context.Context, owner string, in AccountInput) (*principal.Principal, error) {
	l := logging.FromContext(ctx).With("svc", "auth.create_worker")

	u, err := s.repo.FindUser(ctx, owner)
	if err != nil {
		if errors.Is(err, principal.ErrAccountNotFound) {
			return nil, ErrNotAUser
		}
		return nil, err
	}
	pwHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	w, err := s.repo.CreateWorker(ctx, u.ID, repo.NewAccount{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: pwHash,
		Roles:        []string{principal.RoleWorker},
	})
	if err != nil {
		if !errors.Is(err, repo.ErrConflict) {
			l.Error("create_worker_error", "status", 500, "error", err)
		}
		return nil, err
	}

	p := w.Principal()
	l.Info("worker_created", "owner_id", u.ID, "worker_id", p.ID)
	s.publish(ctx, events.TypeWorkerCreated, p, map[string]string{"owner": u.Username})
	return &p, nil
}

func (s *AuthService) ListWorkers(ctx context.Context, owner string) ([]principal.Principal, error) {
	u, err := s.repo.FindUser(ctx, owner)
	if err != nil {
		if errors.Is(err, principal.ErrAccountNotFound) {
			return nil, ErrNotAUser
		}
		return nil, err
	}
	workers, err := s.repo.ListWorkers(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	out := make([]principal.Principal, 0, len(workers))
	for i := range workers {
		out = append(out, workers[i].Principal())
	}
	return out, nil
}

// ListRoles returns every role row, ordered by name.
func (s *AuthService) ListRoles(ctx context.Context) ([]models.Role, error) {
	return s.repo.ListRoles(ctx)
}

func (s *AuthService) ListUsers(ctx context.Context) ([]principal.Principal, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]principal.Principal, 0, len(users))
	for i := range users {
		out = append(out, users[i].Principal())
	}
	return out, nil
}

// DeleteUser soft deletes a user together with its workers and refresh tokens.
func (s *AuthService) DeleteUser(ctx context.Context, id uint) error {
	p, err := s.repo.LoadPrincipal(ctx, principal.Ref{Kind: principal.KindUser, ID: id})
	if err != nil {
		return err
	}
	if err := s.repo.SoftDeleteUser(ctx, id); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("user_deleted", "user_id", id)
	s.publish(ctx, events.TypeUserDeleted, *p, nil)
	return nil
}

type BootstrapAdmin struct {
	Username string
	Email    string
	Password string
}

// Bootstrap creates the builtin roles and, when a password is configured, an
// admin account. Both steps are no-ops on an already initialised database.
func (s *AuthService) Bootstrap(ctx context.Context, admin BootstrapAdmin) error {
	l := logging.FromContext(ctx)

	if err := s.repo.EnsureRoles(ctx, principal.BuiltinRoles...); err != nil {
		return err
	}
	if admin.Password == "" {
		l.Info("bootstrap_admin_skipped", "reason", "no password configured")
		return nil
	}

	_, err := s.CreateUser(ctx, AccountInput{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
	}, principal.RoleAdmin)
	switch {
	case err == nil:
		l.Info("bootstrap_admin_created", "username", admin.Username)
	case errors.Is(err, repo.ErrConflict):
		l.Debug("bootstrap_admin_exists", "username", admin.Username)
	default:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return nil
}
