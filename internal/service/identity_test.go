package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verding/verding/internal/auth"
	"github.com/verding/verding/internal/model"
	"github.com/verding/verding/internal/rbac"
)

func newIdentityFixture() (*IdentityService, *fakeAccess, *fakeSessions, *fakeProfiles) {
	access := &fakeAccess{}
	sessions := newFakeSessions()
	profiles := newFakeProfiles()
	return NewIdentityService(&fakeUsers{}, profiles, access, sessions), access, sessions, profiles
}

func TestResolveSynthesizesProfileFromEmail(t *testing.T) {
	svc, _, _, _ := newIdentityFixture()

	user, err := svc.Resolve(context.Background(), "user-1", "ada.lovelace@farm.example")
	require.NoError(t, err)
	assert.Equal(t, "ada.lovelace", user.Profile.FullName)
	assert.Equal(t, "ada.lovelace@farm.example", user.Profile.Email)
}

func TestResolveNoGrantsMeansNoPermissions(t *testing.T) {
	svc, _, _, _ := newIdentityFixture()

	user, err := svc.Resolve(context.Background(), "user-1", "a@farm.example")
	require.NoError(t, err)
	assert.Empty(t, user.ActivePropertyID)
	assert.Equal(t, rbac.Permissions{}, user.Permissions)
	assert.False(t, user.IsSuperAdmin())
}

func TestResolveDefaultsToFirstGrant(t *testing.T) {
	svc, access, _, _ := newIdentityFixture()
	ctx := context.Background()
	require.NoError(t, access.Grant(ctx, "user-1", "prop-a", rbac.RoleManager, "user-0"))
	require.NoError(t, access.Grant(ctx, "user-1", "prop-b", rbac.RoleViewer, "user-0"))

	user, err := svc.Resolve(ctx, "user-1", "a@farm.example")
	require.NoError(t, err)
	assert.Equal(t, "prop-a", user.ActivePropertyID)
	assert.True(t, user.Permissions.CanManage)
}

func TestResolveHonoursStoredSelection(t *testing.T) {
	svc, access, sessions, _ := newIdentityFixture()
	ctx := context.Background()
	require.NoError(t, access.Grant(ctx, "user-1", "prop-a", rbac.RoleManager, "user-0"))
	require.NoError(t, access.Grant(ctx, "user-1", "prop-b", rbac.RoleViewer, "user-0"))
	require.NoError(t, sessions.SetActiveProperty(ctx, "user-1", "prop-b"))

	user, err := svc.Resolve(ctx, "user-1", "a@farm.example")
	require.NoError(t, err)
	assert.Equal(t, "prop-b", user.ActivePropertyID)

	// Permissions come from the active grant alone, not the union.
	assert.True(t, user.Permissions.CanView)
	assert.False(t, user.Permissions.CanEdit)
	assert.False(t, user.Permissions.CanManage)
	assert.True(t, user.AnyPropertyPermissions().CanManage)
}

func TestResolveDropsStaleSelection(t *testing.T) {
	svc, access, sessions, _ := newIdentityFixture()
	ctx := context.Background()
	require.NoError(t, access.Grant(ctx, "user-1", "prop-a", rbac.RoleViewer, "user-0"))
	require.NoError(t, sessions.SetActiveProperty(ctx, "user-1", "prop-gone"))

	user, err := svc.Resolve(ctx, "user-1", "a@farm.example")
	require.NoError(t, err)
	assert.Equal(t, "prop-a", user.ActivePropertyID)
	assert.Empty(t, sessions.active["user-1"], "stale selection should be cleared")
}

func TestSetActivePropertyRequiresGrant(t *testing.T) {
	svc, access, sessions, _ := newIdentityFixture()
	ctx := context.Background()
	require.NoError(t, access.Grant(ctx, "user-1", "prop-a", rbac.RoleOwner, "user-1"))

	user, err := svc.Resolve(ctx, "user-1", "a@farm.example")
	require.NoError(t, err)

	err = svc.SetActiveProperty(ctx, user, "prop-forbidden")
	assert.True(t, auth.IsType(err, auth.ErrPropertyAccessDenied))

	require.NoError(t, svc.SetActiveProperty(ctx, user, "prop-a"))
	assert.Equal(t, "prop-a", sessions.active["user-1"])
	assert.True(t, user.Permissions.IsSuperAdmin)
}

func TestCheckPropertyPermissionFailsClosed(t *testing.T) {
	svc, access, _, _ := newIdentityFixture()
	ctx := context.Background()
	require.NoError(t, access.Grant(ctx, "user-1", "prop-a", rbac.RoleEmployee, "user-0"))

	assert.True(t, svc.CheckPropertyPermission(ctx, "user-1", "prop-a", rbac.ResourceBatch, rbac.ActionCreate))
	assert.False(t, svc.CheckPropertyPermission(ctx, "user-1", "prop-a", rbac.ResourceBatch, rbac.ActionDelete))
	assert.False(t, svc.CheckPropertyPermission(ctx, "user-1", "prop-unknown", rbac.ResourceBatch, rbac.ActionRead))
	assert.False(t, svc.CheckPropertyPermission(ctx, "user-2", "prop-a", rbac.ResourceBatch, rbac.ActionRead))
}

func TestResolveUsesStoredProfile(t *testing.T) {
	svc, _, _, profiles := newIdentityFixture()
	ctx := context.Background()
	require.NoError(t, profiles.Create(ctx, model.UserProfile{ID: "user-1", Email: "a@farm.example", FullName: "Ada Lovelace"}))

	user, err := svc.Resolve(ctx, "user-1", "a@farm.example")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.Profile.FullName)
}
