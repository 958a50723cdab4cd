package principal

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
)

// UserStore and WorkerStore return ErrAccountNotFound when nothing matches.
type UserStore interface {
	FindUser(ctx context.Context, usernameOrEmail string) (*Principal, error)
}

type WorkerStore interface {
	FindWorker(ctx context.Context, usernameOrEmail string) (*Principal, error)
}

type Loader interface {
	LoadPrincipal(ctx context.Context, ref Ref) (*Principal, error)
}

type PasswordVerifier interface {
	Verify(plain, hash string) bool
}

// passwordHasher is implemented by verifiers that can also produce hashes.
// The resolver uses it once to build the hash checked for unknown accounts.
type passwordHasher interface {
	Hash(plain string) (string, error)
}

const dummyPassword = "academy-unknown-account"

type Resolver struct {
	users    UserStore
	workers  WorkerStore
	loader   Loader
	verifier PasswordVerifier

	dummyOnce sync.Once
	dummyHash string
}

func NewResolver(users UserStore, workers WorkerStore, loader Loader, verifier PasswordVerifier) *Resolver {
	return &Resolver{users: users, workers: workers, loader: loader, verifier: verifier}
}

// Resolve looks the credential up as a User first and falls back to Worker.
// A Worker whose username or email collides with a User is shadowed.
func (r *Resolver) Resolve(ctx context.Context, usernameOrEmail string) (*Principal, error) {
	if usernameOrEmail == "" {
		return nil, ErrAccountNotFound
	}

	p, err := r.users.FindUser(ctx, usernameOrEmail)
	switch {
	case err == nil:
		return p, nil
	case !errors.Is(err, ErrAccountNotFound):
		return nil, fmt.Errorf("find user: %w", err)
	}

	p, err = r.workers.FindWorker(ctx, usernameOrEmail)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrAccountNotFound):
		return nil, ErrAccountNotFound
	default:
		return nil, fmt.Errorf("find worker: %w", err)
	}
}

// Authenticate returns ErrInvalidCredentials for both an unknown account and a
// wrong password. ErrAccountDisabled is only reported after the password matched.
func (r *Resolver) Authenticate(ctx context.Context, usernameOrEmail, password string) (*Principal, error) {
	p, err := r.Resolve(ctx, usernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			r.verifyUnknown(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !r.verifier.Verify(password, p.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !p.Active {
		return nil, ErrAccountDisabled
	}
	return p, nil
}

// verifyUnknown spends the same verifier work on an unknown account as on a
// wrong password, so response time does not reveal whether the account exists.
func (r *Resolver) verifyUnknown(password string) {
	r.dummyOnce.Do(func() {
		if h, ok := r.verifier.(passwordHasher); ok {
			if dh, err := h.Hash(dummyPassword); err == nil {
				r.dummyHash = dh
			}
		}
	})
	r.verifier.Verify(password, r.dummyHash)
}

func (r *Resolver) Load(ctx context.Context, ref Ref) (*Principal, error) {
	if !ref.Kind.Valid() {
		return nil, ErrAccountNotFound
	}
	return r.loader.LoadPrincipal(ctx, ref)
}
