// Package principal holds the identity model shared by login, token issuance
// and request authentication. A principal is either a User or a Worker; both
// expose the same credential and role surface and are told apart by Kind.
package principal

import "slices"

type Kind string

const (
	KindUser   Kind = "USER"
	KindWorker Kind = "WORKER"
)

func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindWorker:
		return true
	default:
		return false
	}
}

// Ref identifies a stored principal row.
type Ref struct {
	Kind Kind
	ID   uint
}

// Principal is a point-in-time snapshot of an account. Roles are the role
// names held when the snapshot was taken. OwnerID is set only for workers.
type Principal struct {
	Kind         Kind
	ID           uint
	Username     string
	Email        string
	PasswordHash string
	Active       bool
	Roles        []string
	OwnerID      uint
}

func (p Principal) Ref() Ref {
	return Ref{Kind: p.Kind, ID: p.ID}
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

const (
	RoleAdmin  = "ROLE_ADMIN"
	RoleUser   = "ROLE_USER"
	RoleWorker = "ROLE_WORKER"
)

// BuiltinRoles are created on bootstrap.
var BuiltinRoles = []string{RoleAdmin, RoleUser, RoleWorker}
