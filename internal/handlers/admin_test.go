package handlers

import (
	"net/http"
	"testing"

	"github.com/older-wiser/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.seedUser(t, "Ada", "ada@example.com", "secret123", types.RoleUser)

	rec := env.doJSON(t, http.MethodGet, "/api/admin/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSON(t, http.MethodGet, "/api/admin/users", userToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied. Insufficient privileges.", decodeEnvelope(t, rec).Message)
}

func TestAdminCreatesCuratedActivityWithoutOwner(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, "Root", "root@example.com", "secret123", types.RoleAdmin)

	rec := env.doJSON(t, http.MethodPost, "/api/admin/activities", adminToken, map[string]any{
		"title":    "Tai chi",
		"images":   []string{"activities/taichi.jpg"},
		"duration": "40 min",
		"category": "Fitness",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeData[types.Activity](t, rec)
	assert.False(t, created.IsUserCreated)
	assert.Zero(t, created.CreatedBy)
	assert.Empty(t, created.Email)
}

func TestAdminListsWholeCatalog(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.seedUser(t, "Ada", "ada@example.com", "secret123", types.RoleUser)
	_, adminToken := env.seedUser(t, "Root", "root@example.com", "secret123", types.RoleAdmin)

	env.seedActivity(t, types.Activity{Title: "Curated", Images: []string{"a.jpg"}, Duration: "5 min", Category: "Misc"})
	env.seedActivity(t, ownedActivity(owner))

	rec := env.doJSON(t, http.MethodGet, "/api/admin/activities", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]types.Activity](t, rec), 2)
}

func TestAdminUpdatesUserRoleAndMembership(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.seedUser(t, "Ada", "ada@example.com", "secret123", types.RoleUser)
	_, adminToken := env.seedUser(t, "Root", "root@example.com", "secret123", types.RoleAdmin)

	rec := env.doJSON(t, http.MethodPut, "/api/admin/users/1", adminToken, map[string]any{
		"role":            "admin",
		"membershipLevel": "gold",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decodeData[types.User](t, rec)
	assert.Equal(t, user.ID, updated.ID)
	assert.Equal(t, types.RoleAdmin, updated.Role)
	assert.Equal(t, types.MembershipGold, updated.MembershipLevel)
}

func TestAdminUpdateUserRejectsBadEnums(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "Ada", "ada@example.com", "secret123", types.RoleUser)
	_, adminToken := env.seedUser(t, "Root", "root@example.com", "secret123", types.RoleAdmin)

	rec := env.doJSON(t, http.MethodPut, "/api/admin/users/1", adminToken, map[string]any{
		"role": "superuser",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Errors, "role")
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.seedUser(t, "Ada", "ada@example.com", "secret123", types.RoleUser)
	_, adminToken := env.seedUser(t, "Root", "root@example.com", "secret123", types.RoleAdmin)

	premium, _ := env.seedUser(t, "Pat", "pat@example.com", "secret123", types.RoleUser)
	premium.MembershipLevel = types.MembershipPremium
	_, err := env.users.Update(t.Context(), premium)
	require.NoError(t, err)

	gold, _ := env.seedUser(t, "Gil", "gil@example.com", "secret123", types.RoleUser)
	gold.MembershipLevel = types.MembershipGold
	_, err = env.users.Update(t.Context(), gold)
	require.NoError(t, err)

	env.seedActivity(t, ownedActivity(owner))
	env.seedActivity(t, types.Activity{Title: "Curated", Images: []string{"a.jpg"}, Duration: "5 min", Category: "Misc"})

	rec := env.doJSON(t, http.MethodGet, "/api/admin/dashboard/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeData[DashboardStats](t, rec)
	assert.Equal(t, 4, stats.TotalUsers)
	assert.Equal(t, 2, stats.TotalActivities)
	assert.Equal(t, 1, stats.PremiumUsers)
	assert.Equal(t, 1, stats.GoldUsers)
}

func TestAdminDeleteActivity(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, "Root", "root@example.com", "secret123", types.RoleAdmin)
	env.seedActivity(t, types.Activity{Title: "Curated", Images: []string{"a.jpg"}, Duration: "5 min", Category: "Misc"})

	rec := env.doJSON(t, http.MethodDelete, "/api/admin/activities/1", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, http.MethodDelete, "/api/admin/activities/1", adminToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
