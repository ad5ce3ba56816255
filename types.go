package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is an authenticated principal issued by the external provider.
// It is immutable for the lifetime of a session and discarded on sign-out.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	AccessToken string `json:"access_token,omitempty"`
}

func (i Identity) Valid() bool {
	return i.ID != ""
}

// AuthEventType enumerates the provider state-change notifications.
type AuthEventType string

const (
	AuthEventSignedIn       AuthEventType = "auth.signed_in"
	AuthEventSignedOut      AuthEventType = "auth.signed_out"
	AuthEventTokenRefreshed AuthEventType = "auth.token_refreshed"
)

// AuthEvent is one state-change notification pushed by the identity provider.
type AuthEvent struct {
	Type     AuthEventType
	Identity *Identity
}

// Unsubscribe detaches a previously registered listener.
type Unsubscribe func()

// IdentityProvider is the external identity/authentication collaborator.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, identifier, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	CurrentIdentity(ctx context.Context) (*Identity, error)
	OnAuthStateChange(fn func(ctx context.Context, event AuthEvent)) Unsubscribe
}

// Membership is the joined row shape returned by the tenant store: the
// account's organization reference with the organization embedded when the
// backend resolved the join.
type Membership struct {
	OrganizationID string
	Organization   *Organization
}

// TenantStore is the remote relational collaborator holding accounts,
// organizations, and their assignments.
type TenantStore interface {
	// FetchUserWithOrganization is the single joined query (strategy A).
	FetchUserWithOrganization(ctx context.Context, identityID string) (*Membership, error)
	// FetchUserOrganizationID is the first step of the two-step fetch.
	// An empty id with a nil error means the account has no organization.
	FetchUserOrganizationID(ctx context.Context, identityID string) (string, error)
	// FetchOrganizationByID resolves an organization row, filtered to active
	// organizations only.
	FetchOrganizationByID(ctx context.Context, organizationID string) (*Organization, error)
}

// Storage persists the session record and the raw last-activity timestamp.
// The timestamp lives under its own key so expiry can be checked without
// deserializing the full record. Load operations fail soft: malformed or
// missing data yields a nil record (or zero time) and no error.
type Storage interface {
	SaveRecord(ctx context.Context, record *SessionRecord) error
	LoadRecord(ctx context.Context) (*SessionRecord, error)
	SaveLastActivity(ctx context.Context, ts time.Time) error
	LoadLastActivity(ctx context.Context) (time.Time, error)
	Clear(ctx context.Context) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
