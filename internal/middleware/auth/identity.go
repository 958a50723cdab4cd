package auth

import (
	"context"
	"slices"

	"github.com/Skotchmaster/academy/internal/principal"
)

// Identity is what a request is known to be, rebuilt from access token claims.
type Identity struct {
	Subject string
	Kind    principal.Kind
	Roles   []string
}

func (id Identity) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(id.Roles, r) {
			return true
		}
	}
	return false
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
