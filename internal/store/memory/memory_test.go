package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/pizza"
)

func TestUsersInsertFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()

	u, err := s.Insert(ctx, auth.User{Name: "a", Email: " A@Test.com ", Roles: []auth.RoleAssignment{{Role: auth.RoleDiner}}})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	assert.Equal(t, "a@test.com", u.Email)

	byEmail, err := s.FindByEmail(ctx, "a@test.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byEmail.Roles[0].Role = auth.RoleAdmin
	again, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleDiner, again.Roles[0].Role, "callers must not alias stored roles")

	_, err = s.Insert(ctx, auth.User{Name: "b", Email: "a@test.com"})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	again.Email = "renamed@test.com"
	again.Roles = nil
	updated, err := s.UpdateProfile(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, []auth.RoleAssignment{{Role: auth.RoleDiner}}, updated.Roles, "profile update must keep roles")
	_, err = s.FindByEmail(ctx, "a@test.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = s.FindByEmail(ctx, "renamed@test.com")
	assert.NoError(t, err)

	_, err = s.UpdateProfile(ctx, auth.User{ID: "missing", Email: "x@test.com"})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUsersGrantRevokeRole(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()
	u, err := s.Insert(ctx, auth.User{Name: "f", Email: "f@test.com", Roles: []auth.RoleAssignment{{Role: auth.RoleDiner}}})
	require.NoError(t, err)

	scoped := auth.RoleAssignment{Role: auth.RoleFranchisee, ObjectID: "f1"}
	require.NoError(t, s.GrantRole(ctx, u.ID, scoped))
	require.NoError(t, s.GrantRole(ctx, u.ID, scoped))
	got, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, got.Roles, 2, "granting twice must not duplicate")
	assert.True(t, got.HasScopedRole(auth.RoleFranchisee, "f1"))

	require.NoError(t, s.RevokeRole(ctx, u.ID, scoped))
	require.NoError(t, s.RevokeRole(ctx, u.ID, scoped))
	got, err = s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []auth.RoleAssignment{{Role: auth.RoleDiner}}, got.Roles)

	assert.ErrorIs(t, s.GrantRole(ctx, "missing", scoped), auth.ErrNotFound)
	assert.ErrorIs(t, s.RevokeRole(ctx, "missing", scoped), auth.ErrNotFound)
}

func TestRevocationsPurge(t *testing.T) {
	ctx := context.Background()
	s := NewRevocations()
	now := time.Now().UTC()

	require.NoError(t, s.Put(ctx, auth.RevocationEntry{Digest: "old", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, s.Put(ctx, auth.RevocationEntry{Digest: "new", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Put(ctx, auth.RevocationEntry{Digest: "new", ExpiresAt: now.Add(-time.Hour)}))

	n, err := s.Purge(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ok, err := s.Exists(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok, "first entry for a digest wins")
	ok, _ = s.Exists(ctx, "old")
	assert.False(t, ok)
}

func TestPizzaFranchiseLifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewPizza(pizza.DefaultMenu()...)

	f, err := p.CreateFranchise(ctx, pizza.Franchise{Name: "pizzaPocket", Admins: []pizza.FranchiseAdmin{{ID: "u1"}}})
	require.NoError(t, err)
	_, err = p.CreateFranchise(ctx, pizza.Franchise{Name: "pizzaPocket"})
	assert.ErrorIs(t, err, pizza.ErrConflict)

	st, err := p.CreateStore(ctx, pizza.Store{FranchiseID: f.ID, Name: "SLC"})
	require.NoError(t, err)

	mine, err := p.ListFranchisesForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Stores, 1)

	require.NoError(t, p.DeleteStore(ctx, f.ID, st.ID))
	assert.ErrorIs(t, p.DeleteStore(ctx, f.ID, st.ID), pizza.ErrNotFound)
	require.NoError(t, p.DeleteFranchise(ctx, f.ID))
	_, err = p.GetFranchise(ctx, f.ID)
	assert.ErrorIs(t, err, pizza.ErrNotFound)
}

func TestPizzaOrdersPaging(t *testing.T) {
	ctx := context.Background()
	p := NewPizza()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		_, err := p.CreateOrder(ctx, pizza.Order{DinerID: "d", Date: base.Add(time.Duration(i) * time.Minute), Items: []pizza.OrderItem{{MenuID: "m"}}})
		require.NoError(t, err)
	}
	_, err := p.CreateOrder(ctx, pizza.Order{DinerID: "other", Date: base})
	require.NoError(t, err)

	first, err := p.ListOrders(ctx, "d", 0, 10)
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.True(t, first[0].Date.After(first[9].Date), "newest first")

	second, err := p.ListOrders(ctx, "d", 10, 10)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	empty, err := p.ListOrders(ctx, "d", 20, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
