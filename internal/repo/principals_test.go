package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/academy/internal/hash"
	"github.com/Skotchmaster/academy/internal/models"
	"github.com/Skotchmaster/academy/internal/principal"
)

func TestEnsureRoles_Idempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)

	require.NoError(t, r.EnsureRoles(ctx, principal.BuiltinRoles...))
	roles, err := r.ListRoles(ctx)
	require.NoError(t, err)

	var names []string
	for _, role := range roles {
		names = append(names, role.Name)
	}
	assert.Equal(t, []string{principal.RoleAdmin, principal.RoleUser, principal.RoleWorker}, names)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)

	u, err := r.CreateUser(ctx, NewAccount{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "h",
		Roles:        []string{principal.RoleUser, principal.RoleUser},
		Active:       true,
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	p, err := r.FindUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, principal.KindUser, p.Kind)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, []string{principal.RoleUser}, p.Roles)
	assert.True(t, p.Active)
}

func TestCreateUser_Conflicts(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)
	owner := seedUser(t, r, "alice", principal.RoleUser)
	_, err := r.CreateWorker(ctx, owner.ID, NewAccount{Username: "helper", Email: "helper@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	cases := []NewAccount{
		{Username: "alice", Email: "other@example.com"},
		{Username: "other", Email: "alice@example.com"},
		{Username: "helper", Email: "x@example.com"},
		{Username: "alice@example.com", Email: "y@example.com"},
	}
	for _, acc := range cases {
		acc.PasswordHash = "h"
		_, err := r.CreateUser(ctx, acc)
		assert.ErrorIs(t, err, ErrConflict, acc.Username)
	}

	_, err = r.CreateWorker(ctx, owner.ID, NewAccount{Username: "alice", Email: "z@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateUser_UnknownRole(t *testing.T) {
	r, _ := newStores(t)
	_, err := r.CreateUser(context.Background(), NewAccount{
		Username: "alice", Email: "alice@example.com", PasswordHash: "h", Roles: []string{"ROLE_NOPE"},
	})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestCreateWorker_OwnerMissing(t *testing.T) {
	r, _ := newStores(t)
	_, err := r.CreateWorker(context.Background(), 42, NewAccount{Username: "w", Email: "w@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, principal.ErrAccountNotFound)
}

func TestFindWorkerAndLoad(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)
	owner := seedUser(t, r, "alice", principal.RoleUser)

	w, err := r.CreateWorker(ctx, owner.ID, NewAccount{
		Username: "ops", Email: "ops@example.com", PasswordHash: "h", Roles: []string{principal.RoleWorker},
	})
	require.NoError(t, err)
	assert.True(t, w.Active)

	p, err := r.FindWorker(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, principal.KindWorker, p.Kind)
	assert.Equal(t, owner.ID, p.OwnerID)
	assert.Equal(t, []string{principal.RoleWorker}, p.Roles)

	_, err = r.FindUser(ctx, "ops")
	assert.ErrorIs(t, err, principal.ErrAccountNotFound)

	loaded, err := r.LoadPrincipal(ctx, p.Ref())
	require.NoError(t, err)
	assert.Equal(t, "ops", loaded.Username)

	_, err = r.LoadPrincipal(ctx, principal.Ref{Kind: principal.KindUser, ID: 999})
	assert.ErrorIs(t, err, principal.ErrAccountNotFound)

	workers, err := r.ListWorkers(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "ops", workers[0].Username)
}

// Rows written outside CreateUser/CreateWorker can still collide; the resolver
// must see the User.
func TestResolverPrefersUserOverShadowedWorker(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)
	owner := seedUser(t, r, "owner", principal.RoleUser)
	seedUser(t, r, "shared", principal.RoleUser)
	require.NoError(t, r.DB.Create(&models.Worker{
		OwnerID: owner.ID, Username: "shared", Email: "shared-worker@example.com", PasswordHash: "h", Active: true,
	}).Error)

	res := principal.NewResolver(r, r, r, hash.Bcrypt{})
	p, err := res.Resolve(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, principal.KindUser, p.Kind)

	p, err = res.Resolve(ctx, "shared-worker@example.com")
	require.NoError(t, err)
	assert.Equal(t, principal.KindWorker, p.Kind)
}

func TestSoftDeleteUser(t *testing.T) {
	ctx := context.Background()
	r, s := newStores(t)
	owner := seedUser(t, r, "alice", principal.RoleUser)
	other := seedUser(t, r, "bob", principal.RoleUser)
	w, err := r.CreateWorker(ctx, owner.ID, NewAccount{Username: "ops", Email: "ops@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, _, err = s.Issue(ctx, owner)
	require.NoError(t, err)
	_, _, err = s.Issue(ctx, w.Principal())
	require.NoError(t, err)
	_, _, err = s.Issue(ctx, other)
	require.NoError(t, err)

	require.NoError(t, r.SoftDeleteUser(ctx, owner.ID))

	_, err = r.FindUser(ctx, "alice")
	assert.ErrorIs(t, err, principal.ErrAccountNotFound)
	_, err = r.FindWorker(ctx, "ops")
	assert.ErrorIs(t, err, principal.ErrAccountNotFound)
	assert.EqualValues(t, 1, countTokens(t, s))

	users, err := r.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	assert.ErrorIs(t, r.SoftDeleteUser(ctx, owner.ID), principal.ErrAccountNotFound)

	_, err = r.CreateUser(ctx, NewAccount{Username: "alice", Email: "new@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, ErrConflict, "names of deleted accounts stay reserved")
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)
	u, err := r.CreateUser(ctx, NewAccount{
		Username: "alice", Email: "alice@example.com", PasswordHash: "h",
		Roles: []string{principal.RoleUser}, VerificationCode: "123456",
	})
	require.NoError(t, err)
	ref := principal.Ref{Kind: principal.KindUser, ID: u.ID}

	p, err := r.LoadPrincipal(ctx, ref)
	require.NoError(t, err)
	assert.False(t, p.Active)

	assert.ErrorIs(t, r.Activate(ctx, ref, "000000"), ErrVerificationFailed)
	assert.ErrorIs(t, r.Activate(ctx, ref, ""), ErrVerificationFailed)
	require.NoError(t, r.Activate(ctx, ref, "123456"))
	assert.ErrorIs(t, r.Activate(ctx, ref, "123456"), ErrVerificationFailed)

	p, err = r.LoadPrincipal(ctx, ref)
	require.NoError(t, err)
	assert.True(t, p.Active)
}

func TestActivate_DiscardsCodeAfterTooManyMisses(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)
	u, err := r.CreateUser(ctx, NewAccount{
		Username: "bob", Email: "bob@example.com", PasswordHash: "h",
		Roles: []string{principal.RoleUser}, VerificationCode: "654321",
	})
	require.NoError(t, err)
	ref := principal.Ref{Kind: principal.KindUser, ID: u.ID}

	for range MaxVerifyAttempts {
		assert.ErrorIs(t, r.Activate(ctx, ref, "000000"), ErrVerificationFailed)
	}

	var row models.User
	require.NoError(t, r.DB.First(&row, u.ID).Error)
	assert.Nil(t, row.VerificationCode)
	assert.Equal(t, MaxVerifyAttempts, row.VerifyAttempts)

	assert.ErrorIs(t, r.Activate(ctx, ref, "654321"), ErrVerificationFailed)
	p, err := r.LoadPrincipal(ctx, ref)
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestActivate_SuccessResetsMisses(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)
	u, err := r.CreateUser(ctx, NewAccount{
		Username: "carol", Email: "carol@example.com", PasswordHash: "h",
		Roles: []string{principal.RoleUser}, VerificationCode: "111111",
	})
	require.NoError(t, err)
	ref := principal.Ref{Kind: principal.KindUser, ID: u.ID}

	for range MaxVerifyAttempts - 1 {
		assert.ErrorIs(t, r.Activate(ctx, ref, "999999"), ErrVerificationFailed)
	}
	require.NoError(t, r.Activate(ctx, ref, "111111"))

	var row models.User
	require.NoError(t, r.DB.First(&row, u.ID).Error)
	assert.True(t, row.Active)
	assert.Zero(t, row.VerifyAttempts)
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	r, _ := newStores(t)
	owner := seedUser(t, r, "alice", principal.RoleUser)
	w, err := r.CreateWorker(ctx, owner.ID, NewAccount{Username: "ops", Email: "ops@example.com", PasswordHash: "old"})
	require.NoError(t, err)
	ref := w.Principal().Ref()

	require.NoError(t, r.SetPasswordResetToken(ctx, ref, "tok-hash"))

	got, err := r.ResetPassword(ctx, "tok-hash", "new")
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	p, err := r.LoadPrincipal(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "new", p.PasswordHash)

	_, err = r.ResetPassword(ctx, "tok-hash", "again")
	assert.ErrorIs(t, err, ErrResetTokenNotFound)
	_, err = r.ResetPassword(ctx, "", "again")
	assert.ErrorIs(t, err, ErrResetTokenNotFound)

	assert.ErrorIs(t, r.SetPasswordResetToken(ctx, principal.Ref{Kind: principal.KindUser, ID: 999}, "x"), principal.ErrAccountNotFound)
}
