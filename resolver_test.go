package session_test

import (
	"context"
	"testing"
	"time"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testIdentity() *session.Identity {
	return &session.Identity{
		ID:    "11111111-1111-1111-1111-111111111111",
		Email: "a@x.com",
	}
}

func TestResolveJoinedFetch(t *testing.T) {
	store := new(MockTenantStore)
	identity := testIdentity()

	store.On("FetchUserWithOrganization", mock.Anything, identity.ID).Return(&session.Membership{
		OrganizationID: "org-1",
		Organization:   &session.Organization{ID: "org-1", Name: "Acme", IsActive: true},
	}, nil)

	resolver := session.NewResolver(store, session.DefaultConfig())

	outcome := resolver.Resolve(context.Background(), identity)

	require.True(t, outcome.Succeeded)
	require.NotNil(t, outcome.Organization)
	assert.Equal(t, "org-1", outcome.Organization.ID)
	assert.Equal(t, session.StrategyJoinedFetch, outcome.Strategy)
	assert.False(t, outcome.TimedOut)
	assert.NoError(t, outcome.Err)

	store.AssertNotCalled(t, "FetchUserOrganizationID", mock.Anything, mock.Anything)
}

func TestResolveFallsBackWhenJoinRowMissing(t *testing.T) {
	store := new(MockTenantStore)
	identity := testIdentity()

	// backend resolved the reference but not the embedded row
	store.On("FetchUserWithOrganization", mock.Anything, identity.ID).Return(&session.Membership{
		OrganizationID: "org-1",
	}, nil)
	store.On("FetchUserOrganizationID", mock.Anything, identity.ID).Return("org-1", nil)
	store.On("FetchOrganizationByID", mock.Anything, "org-1").Return(&session.Organization{
		ID: "org-1", Name: "Acme", IsActive: true,
	}, nil)

	resolver := session.NewResolver(store, session.DefaultConfig())

	outcome := resolver.Resolve(context.Background(), identity)

	require.True(t, outcome.Succeeded)
	require.NotNil(t, outcome.Organization)
	assert.Equal(t, "org-1", outcome.Organization.ID)
	assert.Equal(t, session.StrategyTwoStepFetch, outcome.Strategy)
}

func TestResolveTimeoutFallsThrough(t *testing.T) {
	identity := testIdentity()
	slowDone := make(chan struct{})

	slow := session.Strategy{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context, id session.Identity) (*session.Organization, error) {
			defer close(slowDone)
			time.Sleep(150 * time.Millisecond)
			return &session.Organization{ID: "late-org"}, nil
		},
	}
	fast := session.Strategy{
		Name: "fast",
		Run: func(ctx context.Context, id session.Identity) (*session.Organization, error) {
			return &session.Organization{ID: "org-b", Name: "Beta"}, nil
		},
	}

	sink := &recordingSink{}
	resolver := session.NewResolver(nil, nil,
		session.WithResolverStrategies(slow, fast),
		session.WithResolverActivitySink(sink),
		session.WithResolverLogger(silentLogger{}),
	)

	outcome := resolver.Resolve(context.Background(), identity)

	require.True(t, outcome.Succeeded)
	require.NotNil(t, outcome.Organization)
	assert.Equal(t, "org-b", outcome.Organization.ID)
	assert.Equal(t, "fast", outcome.Strategy)
	assert.False(t, outcome.TimedOut)

	// the abandoned strategy finishes later without disturbing the outcome
	<-slowDone
	assert.Equal(t, "org-b", outcome.Organization.ID)

	types := sink.Types()
	require.Len(t, types, 1)
	assert.Equal(t, session.ActivityEventResolverFallback, types[0])
}

func TestResolveFinalEmptyIsConclusive(t *testing.T) {
	store := new(MockTenantStore)
	identity := testIdentity()

	store.On("FetchUserWithOrganization", mock.Anything, identity.ID).Return(nil, nil)
	store.On("FetchUserOrganizationID", mock.Anything, identity.ID).Return("", nil)

	resolver := session.NewResolver(store, session.DefaultConfig())

	outcome := resolver.Resolve(context.Background(), identity)

	assert.True(t, outcome.Succeeded)
	assert.Nil(t, outcome.Organization)
	assert.False(t, outcome.TimedOut)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, session.StrategyTwoStepFetch, outcome.Strategy)

	store.AssertNotCalled(t, "FetchOrganizationByID", mock.Anything, mock.Anything)
}

func TestResolveDanglingOrganizationReference(t *testing.T) {
	store := new(MockTenantStore)
	identity := testIdentity()

	// the account points at an organization that no longer exists
	store.On("FetchUserWithOrganization", mock.Anything, identity.ID).Return(&session.Membership{
		OrganizationID: "org-9",
	}, nil)
	store.On("FetchUserOrganizationID", mock.Anything, identity.ID).Return("org-9", nil)
	store.On("FetchOrganizationByID", mock.Anything, "org-9").Return(nil, nil)

	resolver := session.NewResolver(store, session.DefaultConfig(),
		session.WithResolverLogger(silentLogger{}),
	)

	outcome := resolver.Resolve(context.Background(), identity)

	assert.True(t, outcome.Succeeded)
	assert.Nil(t, outcome.Organization)
	assert.False(t, outcome.TimedOut)
	require.Error(t, outcome.Err)
	assert.True(t, session.IsOrganizationNotFound(outcome.Err))
}

func TestResolveAllStrategiesFault(t *testing.T) {
	identity := testIdentity()

	faulty := func(name string) session.Strategy {
		return session.Strategy{
			Name: name,
			Run: func(ctx context.Context, id session.Identity) (*session.Organization, error) {
				return nil, assert.AnError
			},
		}
	}

	resolver := session.NewResolver(nil, nil,
		session.WithResolverStrategies(faulty("a"), faulty("b")),
		session.WithResolverLogger(silentLogger{}),
	)

	outcome := resolver.Resolve(context.Background(), identity)

	assert.True(t, outcome.Succeeded)
	assert.Nil(t, outcome.Organization)
	assert.False(t, outcome.TimedOut)
	require.Error(t, outcome.Err)
}

func TestResolveTerminalTimeout(t *testing.T) {
	identity := testIdentity()

	hang := session.Strategy{
		Name:    "hang",
		Timeout: 15 * time.Millisecond,
		Run: func(ctx context.Context, id session.Identity) (*session.Organization, error) {
			time.Sleep(200 * time.Millisecond)
			return nil, nil
		},
	}

	resolver := session.NewResolver(nil, nil,
		session.WithResolverStrategies(hang),
		session.WithResolverLogger(silentLogger{}),
	)

	outcome := resolver.Resolve(context.Background(), identity)

	assert.True(t, outcome.Succeeded)
	assert.Nil(t, outcome.Organization)
	assert.True(t, outcome.TimedOut)
	assert.True(t, session.IsQueryTimeout(outcome.Err))
}

func TestResolveStrategyPanicIsFault(t *testing.T) {
	identity := testIdentity()

	panicky := session.Strategy{
		Name:    "panicky",
		Timeout: time.Second,
		Run: func(ctx context.Context, id session.Identity) (*session.Organization, error) {
			panic("backend client not initialized")
		},
	}
	fallback := session.Strategy{
		Name: "fallback",
		Run: func(ctx context.Context, id session.Identity) (*session.Organization, error) {
			return &session.Organization{ID: "org-1"}, nil
		},
	}

	resolver := session.NewResolver(nil, nil,
		session.WithResolverStrategies(panicky, fallback),
		session.WithResolverLogger(silentLogger{}),
	)

	outcome := resolver.Resolve(context.Background(), identity)

	require.True(t, outcome.Succeeded)
	require.NotNil(t, outcome.Organization)
	assert.Equal(t, "fallback", outcome.Strategy)
}

func TestResolveBypass(t *testing.T) {
	store := new(MockTenantStore)
	sink := &recordingSink{}

	resolver := session.NewResolver(store, session.DefaultConfig(),
		session.WithResolverActivitySink(sink),
	)

	outcome := resolver.Resolve(context.Background(), testIdentity(), session.WithBypass())

	assert.True(t, outcome.Succeeded)
	assert.Nil(t, outcome.Organization)
	assert.Equal(t, session.StrategyBypass, outcome.Strategy)

	store.AssertNotCalled(t, "FetchUserWithOrganization", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "FetchUserOrganizationID", mock.Anything, mock.Anything)

	types := sink.Types()
	require.Len(t, types, 1)
	assert.Equal(t, session.ActivityEventResolverBypass, types[0])
}

func TestResolveRequiresIdentity(t *testing.T) {
	resolver := session.NewResolver(nil, nil,
		session.WithResolverStrategies(session.Strategy{
			Name: "never",
			Run: func(ctx context.Context, id session.Identity) (*session.Organization, error) {
				t.Fatal("strategy should not run without an identity")
				return nil, nil
			},
		}),
	)

	outcome := resolver.Resolve(context.Background(), nil)
	assert.False(t, outcome.Succeeded)
	assert.True(t, session.IsNoIdentity(outcome.Err))

	outcome = resolver.Resolve(context.Background(), &session.Identity{Email: "a@x.com"})
	assert.False(t, outcome.Succeeded)
	assert.True(t, session.IsNoIdentity(outcome.Err))
}

func TestResolveContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := session.Strategy{
		Name:    "block",
		Timeout: time.Second,
		Run: func(c context.Context, id session.Identity) (*session.Organization, error) {
			<-c.Done()
			return nil, c.Err()
		},
	}

	resolver := session.NewResolver(nil, nil,
		session.WithResolverStrategies(block),
		session.WithResolverLogger(silentLogger{}),
	)

	outcome := resolver.Resolve(ctx, testIdentity())
	assert.True(t, outcome.Succeeded)
	assert.Nil(t, outcome.Organization)
	require.Error(t, outcome.Err)
}
