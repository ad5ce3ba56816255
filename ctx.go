package session

import (
	"context"
)

var recordCtxKey = &contextKey{"session_record"}
var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithContext sets the session record in the given context
func WithContext(ctx context.Context, record *SessionRecord) context.Context {
	return context.WithValue(ctx, recordCtxKey, record)
}

// FromContext finds the session record from the context.
func FromContext(ctx context.Context) (*SessionRecord, bool) {
	raw, ok := ctx.Value(recordCtxKey).(*SessionRecord)
	return raw, ok
}

// WithIdentityContext sets the Identity in the given context
func WithIdentityContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext extracts the Identity from the standard context
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	return raw, ok
}

// RoleFromContext reports the effective role carried by the context's
// session record, defaulting to member when no record is present.
func RoleFromContext(ctx context.Context) Role {
	record, ok := FromContext(ctx)
	if !ok || record == nil {
		return RoleMember
	}
	return record.Role
}
