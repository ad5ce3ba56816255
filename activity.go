package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess     ActivityEventType = "session.login.success"
	ActivityEventLoginFailure     ActivityEventType = "session.login.failure"
	ActivityEventLogout           ActivityEventType = "session.logout"
	ActivityEventExpired          ActivityEventType = "session.expired"
	ActivityEventRehydrated       ActivityEventType = "session.rehydrated"
	ActivityEventRefreshed        ActivityEventType = "session.token.refreshed"
	ActivityEventForcedSignOut    ActivityEventType = "session.forced_signout"
	ActivityEventResolverFallback ActivityEventType = "resolver.fallback"
	ActivityEventResolverBypass   ActivityEventType = "resolver.bypass"
)

// ActivityEvent captures audit-friendly information about a lifecycle action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Email      string
	Role       Role
	Strategy   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
