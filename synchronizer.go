package session

import (
	"context"
)

// Synchronizer keeps the session store consistent with the identity
// provider's asynchronous state-change stream. Sign-in and token-refresh
// notifications re-run resolution so organization and role data self-heal if
// they change under a live session; sign-out clears local state immediately,
// bypassing the inactivity deadline.
type Synchronizer struct {
	store           *SessionStore
	provider        IdentityProvider
	logger          Logger
	detachOnSignOut bool
	unsubscribe     Unsubscribe
}

// SynchronizerOption customizes synchronizer construction.
type SynchronizerOption func(*Synchronizer)

// WithSynchronizerLogger overrides the synchronizer logger.
func WithSynchronizerLogger(logger Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSynchronizerDetachOnSignOut controls whether a provider sign-out also
// detaches the event subscription. Defaults to true.
func WithSynchronizerDetachOnSignOut(detach bool) SynchronizerOption {
	return func(s *Synchronizer) {
		s.detachOnSignOut = detach
	}
}

func NewSynchronizer(store *SessionStore, provider IdentityProvider, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		store:           store,
		provider:        provider,
		logger:          defLogger{},
		detachOnSignOut: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Attach subscribes to the provider stream. Idempotent: a second call
// replaces the previous subscription.
func (s *Synchronizer) Attach() {
	s.Detach()
	s.unsubscribe = s.provider.OnAuthStateChange(s.handle)
}

// Detach drops the provider subscription. Idempotent.
func (s *Synchronizer) Detach() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// handle drives store transitions for one provider event. Unexpected
// failures force Unauthenticated rather than leaving the store in an
// in-between state.
func (s *Synchronizer) handle(ctx context.Context, event AuthEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("auth event handler panicked on %s: %v", event.Type, r)
			if err := s.store.forceSignOut(ctx); err != nil {
				s.logger.Error("forced sign-out failed: %v", err)
			}
		}
	}()

	switch event.Type {
	case AuthEventSignedIn, AuthEventTokenRefreshed:
		if event.Identity == nil {
			s.logger.Error("%s event carried no identity, signing out", event.Type)
			if err := s.store.forceSignOut(ctx); err != nil {
				s.logger.Error("forced sign-out failed: %v", err)
			}
			return
		}
		activate := s.store.Login
		if event.Type == AuthEventTokenRefreshed {
			activate = s.store.Refresh
		}
		if _, err := activate(ctx, *event.Identity); err != nil {
			s.logger.Error("session sync for %s failed: %v", event.Type, err)
			if err := s.store.forceSignOut(ctx); err != nil {
				s.logger.Error("forced sign-out failed: %v", err)
			}
		}
	case AuthEventSignedOut:
		if err := s.store.forceSignOut(ctx); err != nil {
			s.logger.Error("forced sign-out failed: %v", err)
		}
		if s.detachOnSignOut {
			s.Detach()
		}
	default:
		s.logger.Debug("ignoring unknown auth event %s", event.Type)
	}
}
