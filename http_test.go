package session_test

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newGuardFixture(t *testing.T) (*storeFixture, *session.RouteGuard) {
	t.Helper()

	f := newStoreFixture(t)
	guard, err := session.NewRouteGuard(f.store, session.DefaultConfig())
	require.NoError(t, err)
	guard.Logger = silentLogger{}

	return f, guard
}

func loginFixture(t *testing.T, f *storeFixture, identity session.Identity) {
	t.Helper()

	_, err := f.store.Login(context.Background(), identity)
	require.NoError(t, err)
}

func passthrough(called *bool) router.HandlerFunc {
	return func(c router.Context) error {
		*called = true
		return nil
	}
}

func TestRequireSessionPasses(t *testing.T) {
	f, guard := newGuardFixture(t)
	f.stubOrganization("u1", &session.Organization{ID: "org-1", Name: "Acme", IsActive: true})
	loginFixture(t, f, session.Identity{ID: "u1", Email: "a@x.com"})

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("SetContext", mock.Anything).Return()

	called := false
	err := guard.RequireSession()(passthrough(&called))(mockCtx)

	require.NoError(t, err)
	assert.True(t, called)
	mockCtx.AssertExpectations(t)
}

func TestRequireSessionRedirectsWhenSignedOut(t *testing.T) {
	_, guard := newGuardFixture(t)

	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/dashboard")
	mockCtx.On("Method").Return("GET")
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == session.DefaultRejectedRedirectKey && c.Value == "/dashboard" && c.HTTPOnly
	})).Return()
	mockCtx.On("Redirect", "/login", []int{http.StatusFound}).Return(nil)

	called := false
	err := guard.RequireSession()(passthrough(&called))(mockCtx)

	require.NoError(t, err)
	assert.False(t, called)
	mockCtx.AssertExpectations(t)
}

func TestRequireSessionNonGETUsesSeeOther(t *testing.T) {
	_, guard := newGuardFixture(t)

	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/dashboard/save")
	mockCtx.On("Method").Return("POST")
	mockCtx.On("Cookie", mock.Anything).Return()
	mockCtx.On("Redirect", "/login", []int{http.StatusSeeOther}).Return(nil)

	called := false
	err := guard.RequireSession()(passthrough(&called))(mockCtx)

	require.NoError(t, err)
	assert.False(t, called)
	mockCtx.AssertExpectations(t)
}

func TestRequireSessionCustomAuthErrorHandler(t *testing.T) {
	_, guard := newGuardFixture(t)

	var seen error
	guard.AuthErrorHandler = func(c router.Context, err error) error {
		seen = err
		return nil
	}

	mockCtx := new(MockContext)

	called := false
	err := guard.RequireSession()(passthrough(&called))(mockCtx)

	require.NoError(t, err)
	assert.False(t, called)
	assert.ErrorIs(t, seen, session.ErrNoActiveSession)
}

func TestRequireOrganizationRedirectsTenantless(t *testing.T) {
	f, guard := newGuardFixture(t)
	f.stubNoOrganization("u2")
	loginFixture(t, f, session.Identity{ID: "u2", Email: "b@x.com"})

	mockCtx := new(MockContext)
	mockCtx.On("Redirect", "/organization/required", []int{http.StatusSeeOther}).Return(nil)

	called := false
	err := guard.RequireOrganization()(passthrough(&called))(mockCtx)

	require.NoError(t, err)
	assert.False(t, called)
	mockCtx.AssertExpectations(t)
}

func TestRequireOrganizationPassesTenantMember(t *testing.T) {
	f, guard := newGuardFixture(t)
	f.stubOrganization("u1", &session.Organization{ID: "org-1", Name: "Acme", IsActive: true})
	loginFixture(t, f, session.Identity{ID: "u1", Email: "a@x.com"})

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("SetContext", mock.Anything).Return()

	called := false
	err := guard.RequireOrganization()(passthrough(&called))(mockCtx)

	require.NoError(t, err)
	assert.True(t, called)
}

func TestRequireRole(t *testing.T) {
	f, guard := newGuardFixture(t)
	f.stubOrganization("u1", &session.Organization{ID: "org-1", Name: "Acme", IsActive: true})
	loginFixture(t, f, session.Identity{ID: "u1", Email: "a@x.com"})

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("SetContext", mock.Anything).Return()

	called := false
	err := guard.RequireRole(session.RoleMember)(passthrough(&called))(mockCtx)
	require.NoError(t, err)
	assert.True(t, called)

	var seen error
	guard.ErrorHandler = func(c router.Context, err error) error {
		seen = err
		return nil
	}

	called = false
	err = guard.RequireRole(session.RoleSuperAdmin)(passthrough(&called))(mockCtx)
	require.NoError(t, err)
	assert.False(t, called)

	var richErr *goerrors.Error
	require.ErrorAs(t, seen, &richErr)
	assert.Equal(t, goerrors.CategoryAuthz, richErr.Category)
}

func TestRedirectCookieRoundTrip(t *testing.T) {
	_, guard := newGuardFixture(t)

	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/reports/weekly")
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == session.DefaultRejectedRedirectKey
	})).Return()
	guard.SetRedirect(mockCtx)

	mockCtx.On("Cookies", session.DefaultRejectedRedirectKey).Return("/reports/weekly")
	got := guard.GetRedirect(mockCtx, "/")
	assert.Equal(t, "/reports/weekly", got)

	empty := new(MockContext)
	empty.On("Cookies", session.DefaultRejectedRedirectKey).Return("")
	assert.Equal(t, "/", guard.GetRedirect(empty, "/"))
}
