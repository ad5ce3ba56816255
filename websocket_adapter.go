package session

import (
	"context"

	"github.com/goliatone/go-router"
)

// WSSessionValidator implements go-router's WSTokenValidator interface so
// WebSocket upgrades authenticate against the same access tokens and session
// state as guarded HTTP routes. A successful validation counts as activity.
type WSSessionValidator struct {
	validator TokenValidator
	store     *SessionStore
}

// NewWSSessionValidator builds a WebSocket validator over a token validator.
// The store is optional; when present it supplies the effective role and the
// activity signal.
func NewWSSessionValidator(validator TokenValidator, store *SessionStore) *WSSessionValidator {
	return &WSSessionValidator{
		validator: validator,
		store:     store,
	}
}

// Validate validates a token string and returns WebSocket-compatible auth claims
func (w *WSSessionValidator) Validate(tokenString string) (router.WSAuthClaims, error) {
	claims, err := w.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	adapter := &WSSessionClaims{claims: claims, role: RoleMember}

	if w.store != nil {
		if record := w.store.Current(); record != nil && record.Identity.ID == claims.Subject {
			adapter.role = record.Role
			w.store.MarkActivity(context.Background())
		}
	}

	return adapter, nil
}

// WSSessionClaims adapts validated token claims plus the session's effective
// role to go-router's WSAuthClaims interface.
type WSSessionClaims struct {
	claims *TokenClaims
	role   Role
}

// Subject returns the subject claim
func (w *WSSessionClaims) Subject() string {
	return w.claims.Subject
}

// UserID returns the user ID
func (w *WSSessionClaims) UserID() string {
	return w.claims.Subject
}

// Role returns the session's effective role
func (w *WSSessionClaims) Role() string {
	return string(w.role)
}

// CanRead checks if the user can read a specific resource
func (w *WSSessionClaims) CanRead(resource string) bool {
	return true
}

// CanEdit checks if the user can edit a specific resource
func (w *WSSessionClaims) CanEdit(resource string) bool {
	return RoleIsAtLeast(w.role, RoleOrgAdmin)
}

// CanCreate checks if the user can create a specific resource
func (w *WSSessionClaims) CanCreate(resource string) bool {
	return RoleIsAtLeast(w.role, RoleOrgAdmin)
}

// CanDelete checks if the user can delete a specific resource
func (w *WSSessionClaims) CanDelete(resource string) bool {
	return RoleIsAtLeast(w.role, RoleSuperAdmin)
}

// HasRole checks if the user has a specific role
func (w *WSSessionClaims) HasRole(role string) bool {
	return string(w.role) == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (w *WSSessionClaims) IsAtLeast(minRole string) bool {
	return RoleIsAtLeast(w.role, Role(minRole))
}

// NewWSAuthMiddleware creates a WebSocket authentication middleware wired to
// the guard's session store.
func (g *RouteGuard) NewWSAuthMiddleware(validator TokenValidator, config ...router.WSAuthConfig) router.WebSocketMiddleware {
	var cfg router.WSAuthConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	cfg.TokenValidator = NewWSSessionValidator(validator, g.store)

	return router.NewWSAuth(cfg)
}

// WSSessionClaimsFromContext retrieves the session claims stashed by the
// WebSocket auth middleware. The bool is false when the connection was not
// authenticated through this package.
func WSSessionClaimsFromContext(ctx context.Context) (*WSSessionClaims, bool) {
	wsAuthClaims, ok := router.WSAuthClaimsFromContext(ctx)
	if !ok {
		return nil, false
	}

	claims, ok := wsAuthClaims.(*WSSessionClaims)
	return claims, ok
}
