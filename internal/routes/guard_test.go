package routes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proploc14/proploc/internal/routes"
)

var (
	anonymous = routes.Session{}
	loading   = routes.Session{Loading: true}
	user      = routes.Session{Authenticated: true}
	owner     = routes.Session{Authenticated: true, Owner: true}
	admin     = routes.Session{Authenticated: true, Admin: true}
)

func TestDecide_PublicRoutes(t *testing.T) {
	for _, path := range []string{"/", "/contact", "/login", "/register"} {
		d := routes.Decide(anonymous, path)
		assert.Equal(t, routes.Allow, d.Kind, "path %s", path)
	}
}

func TestDecide_UnknownPathIsPublic(t *testing.T) {
	d := routes.Decide(anonymous, "/no-such-page")
	assert.Equal(t, routes.Allow, d.Kind)
}

func TestDecide_LoadingSuspends(t *testing.T) {
	d := routes.Decide(loading, "/properties")
	assert.Equal(t, routes.Suspend, d.Kind)

	// Public routes render regardless of loading.
	d = routes.Decide(loading, "/contact")
	assert.Equal(t, routes.Allow, d.Kind)
}

func TestDecide_UnauthenticatedRedirectsToLogin(t *testing.T) {
	d := routes.Decide(anonymous, "/favourites")
	assert.Equal(t, routes.Redirect, d.Kind)
	assert.Equal(t, routes.LoginPath, d.To)
	assert.Equal(t, "/favourites", d.From, "original destination preserved for the return trip")
}

func TestDecide_AuthenticatedUserRoutes(t *testing.T) {
	for _, path := range []string{"/properties", "/properties/42", "/favourites"} {
		d := routes.Decide(user, path)
		assert.Equal(t, routes.Allow, d.Kind, "path %s", path)
	}
}

func TestDecide_AdminBypassesEveryRoleList(t *testing.T) {
	for _, path := range []string{"/post-property", "/admin", "/queries", "/dashboard", "/properties"} {
		d := routes.Decide(admin, path)
		assert.Equal(t, routes.Allow, d.Kind, "path %s", path)
	}
}

func TestDecide_RoleListsAreEnforced(t *testing.T) {
	// A plain authenticated user is turned away from admin and owner views.
	for _, path := range []string{"/post-property", "/admin", "/queries", "/dashboard"} {
		d := routes.Decide(user, path)
		assert.Equal(t, routes.Redirect, d.Kind, "path %s", path)
		assert.Equal(t, routes.UnauthorizedPath, d.To, "path %s", path)
	}
}

func TestDecide_OwnerDashboard(t *testing.T) {
	d := routes.Decide(owner, "/dashboard")
	assert.Equal(t, routes.Allow, d.Kind)

	// Owner role grants nothing beyond its own routes.
	d = routes.Decide(owner, "/admin")
	assert.Equal(t, routes.Redirect, d.Kind)
	assert.Equal(t, routes.UnauthorizedPath, d.To)
}

func TestDecide_PathNormalization(t *testing.T) {
	d := routes.Decide(anonymous, "/favorites")
	assert.Equal(t, routes.Redirect, d.Kind, "american spelling maps onto the guarded view")

	d = routes.Decide(user, "/properties/")
	assert.Equal(t, routes.Allow, d.Kind, "trailing slash ignored")

	d = routes.Decide(anonymous, "/properties/7")
	assert.Equal(t, routes.Redirect, d.Kind)
	assert.Equal(t, "/properties/7", d.From)
}
