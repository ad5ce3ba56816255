package session

import (
	"context"
	"sync"
	"time"
)

// State is the session store lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateResolving       State = "resolving"
	StateActive          State = "active"
)

// ChangeListener observes committed transitions. Listeners fire
// synchronously in registration order and must not call back into the store.
type ChangeListener func(previous, next State, record *SessionRecord)

type changeListener struct {
	id int
	fn ChangeListener
}

// SessionStore owns the SessionRecord and is its sole writer. Every other
// component reads snapshots or triggers writes through the transition API.
// Lifecycle operations are serialized end to end by a single-writer lock, so
// listener callbacks are never interleaved with another transition.
type SessionStore struct {
	storage    Storage
	resolver   *Resolver
	classifier *Classifier
	tracker    *ActivityTracker
	provider   IdentityProvider
	sink       ActivitySink
	logger     Logger
	now        func() time.Time
	tokenProbe func(token string, now time.Time) bool

	transitions map[State]map[State]struct{}

	opMu sync.Mutex
	mu   sync.Mutex

	state        State
	record       *SessionRecord
	listeners    []changeListener
	nextListener int
}

// StoreOption customizes store construction.
type StoreOption func(*SessionStore)

// WithStoreTracker replaces the default activity tracker.
func WithStoreTracker(tracker *ActivityTracker) StoreOption {
	return func(s *SessionStore) {
		if tracker != nil {
			s.tracker = tracker
		}
	}
}

// WithStoreProvider wires the identity provider notified on logout.
// Notification is best-effort; local state stays authoritative.
func WithStoreProvider(provider IdentityProvider) StoreOption {
	return func(s *SessionStore) {
		s.provider = provider
	}
}

// WithStoreLogger overrides the store logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreActivitySink publishes lifecycle events to the sink.
func WithStoreActivitySink(sink ActivitySink) StoreOption {
	return func(s *SessionStore) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithStoreTokenProbe replaces the rehydration access-token expiry probe.
// Pass nil to skip token inspection entirely.
func WithStoreTokenProbe(probe func(token string, now time.Time) bool) StoreOption {
	return func(s *SessionStore) {
		s.tokenProbe = probe
	}
}

func NewSessionStore(storage Storage, resolver *Resolver, classifier *Classifier, opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		storage:    storage,
		resolver:   resolver,
		classifier: classifier,
		sink:       noopActivitySink{},
		logger:     defLogger{},
		now:        time.Now,
		tokenProbe: TokenExpired,
		state:      StateUnauthenticated,
		transitions: map[State]map[State]struct{}{
			StateUnauthenticated: {
				StateResolving: {},
			},
			StateResolving: {
				StateActive:          {},
				StateUnauthenticated: {},
			},
			StateActive: {
				StateResolving:       {},
				StateUnauthenticated: {},
			},
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.tracker == nil {
		s.tracker = NewActivityTracker(storage)
	}

	return s
}

// Tracker exposes the activity tracker so interaction signals can be wired
// to MarkActivity and the periodic revalidation loop can be started.
func (s *SessionStore) Tracker() *ActivityTracker {
	return s.tracker
}

// State returns the current lifecycle state.
func (s *SessionStore) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns a snapshot of the active record, or nil when signed out.
func (s *SessionStore) Current() *SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// OnChange registers a transition listener and returns its detach function.
func (s *SessionStore) OnChange(fn ChangeListener) Unsubscribe {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, changeListener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Login drives Unauthenticated (or Active, on re-login) through Resolving to
// Active: resolve the organization, classify the role, commit and persist
// the record, and arm the inactivity deadline.
func (s *SessionStore) Login(ctx context.Context, identity Identity, opts ...ResolveOption) (*SessionRecord, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.login(ctx, identity, ActivityEventLoginSuccess, opts...)
}

// Refresh re-runs resolution for a re-issued identity and replaces the
// active record, so organization and role data self-heal on token refresh.
// Same flow as Login, reported distinctly in the activity feed.
func (s *SessionStore) Refresh(ctx context.Context, identity Identity, opts ...ResolveOption) (*SessionRecord, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.login(ctx, identity, ActivityEventRefreshed, opts...)
}

func (s *SessionStore) login(ctx context.Context, identity Identity, successEvent ActivityEventType, opts ...ResolveOption) (*SessionRecord, error) {
	if !identity.Valid() {
		return nil, ErrNoIdentity
	}

	if err := s.guard(s.State(), StateResolving); err != nil {
		return nil, err
	}
	s.commit(StateResolving, nil)

	outcome := s.resolver.Resolve(ctx, &identity, opts...)
	if !outcome.Succeeded {
		s.commit(StateUnauthenticated, nil)
		s.emit(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			UserID:    identity.ID,
			Email:     identity.Email,
			Strategy:  outcome.Strategy,
		})
		return nil, outcome.Err
	}
	if outcome.Err != nil {
		// chain concluded without an organization; the fault is informational
		s.logger.Info("organization resolution fell back to none: %v", outcome.Err)
	}

	role, org := s.classifier.Classify(identity, outcome)

	now := s.now()
	record := &SessionRecord{
		Identity:       identity,
		Organization:   org,
		Role:           role,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if err := s.storage.SaveRecord(ctx, record); err != nil {
		s.logger.Error("persisting session record failed: %v", err)
	}

	s.tracker.Restore(now)
	s.tracker.MarkActivity(ctx)
	s.tracker.StartWatch(s.handleExpiry)

	s.commit(StateActive, record)
	s.emit(ctx, ActivityEvent{
		EventType: successEvent,
		UserID:    identity.ID,
		Email:     identity.Email,
		Role:      role,
		Strategy:  outcome.Strategy,
	})

	return record.Clone(), nil
}

// Logout transitions to Unauthenticated. Idempotent, and always succeeds
// locally: provider notification is best-effort.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.opMu.Lock()
	cleared := s.logout(ctx, ActivityEventLogout)
	s.opMu.Unlock()

	if cleared {
		s.notifyProviderSignOut(ctx)
	}
	return nil
}

// logout tears down local state under opMu. Reports whether a session was
// actually cleared so callers can skip provider notification on a no-op.
func (s *SessionStore) logout(ctx context.Context, event ActivityEventType) bool {
	if s.State() == StateUnauthenticated {
		return false
	}

	record := s.Current()
	s.tracker.StopWatch()

	if err := s.storage.Clear(ctx); err != nil {
		s.logger.Error("clearing session storage failed: %v", err)
	}

	s.commit(StateUnauthenticated, nil)

	activity := ActivityEvent{EventType: event}
	if record != nil {
		activity.UserID = record.Identity.ID
		activity.Email = record.Identity.Email
		activity.Role = record.Role
	}
	s.emit(ctx, activity)

	return true
}

// notifyProviderSignOut must run with opMu released: providers may emit their
// signedOut event synchronously, and an attached synchronizer re-enters the
// store to force local sign-out. Local state is already committed, so the
// re-entry is a no-op rather than a deadlock.
func (s *SessionStore) notifyProviderSignOut(ctx context.Context) {
	if s.provider == nil {
		return
	}
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Error("provider sign-out failed: %v", err)
	}
}

// forceSignOut clears local state without notifying the provider. Used when
// the provider itself announced the sign-out.
func (s *SessionStore) forceSignOut(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.logout(ctx, ActivityEventForcedSignOut)
	return nil
}

// MarkActivity records an interaction signal on the active session. The
// persisted timestamp lives under its own key, so the full record is not
// rewritten per keystroke.
func (s *SessionStore) MarkActivity(ctx context.Context) {
	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return
	}

	ts := s.tracker.MarkActivity(ctx)

	s.mu.Lock()
	if s.record != nil {
		s.record.Touch(ts)
	}
	s.mu.Unlock()
}

// Rehydrate reconstructs an Active session from persisted storage without
// re-running resolution. A stale or unparsable record forces a clean
// Unauthenticated start and clears storage.
func (s *SessionStore) Rehydrate(ctx context.Context) (*SessionRecord, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() != StateUnauthenticated {
		return s.Current(), nil
	}

	record, err := s.storage.LoadRecord(ctx)
	if err != nil || record == nil {
		return nil, err
	}

	if last, _ := s.storage.LoadLastActivity(ctx); last.After(record.LastActivityAt) {
		record.LastActivityAt = last
	}

	now := s.now()
	if record.Expired(now, s.tracker.Timeout()) {
		if err := s.storage.Clear(ctx); err != nil {
			s.logger.Error("clearing stale session failed: %v", err)
		}
		return nil, nil
	}

	if s.tokenProbe != nil && record.Identity.AccessToken != "" && s.tokenProbe(record.Identity.AccessToken, now) {
		s.logger.Info("stored session token expired, discarding record")
		if err := s.storage.Clear(ctx); err != nil {
			s.logger.Error("clearing stale session failed: %v", err)
		}
		return nil, nil
	}

	s.commit(StateResolving, nil)

	record.Touch(now)
	if err := s.storage.SaveRecord(ctx, record); err != nil {
		s.logger.Error("persisting session record failed: %v", err)
	}

	s.tracker.Restore(record.LastActivityAt)
	s.tracker.MarkActivity(ctx)
	s.tracker.StartWatch(s.handleExpiry)

	s.commit(StateActive, record)
	s.emit(ctx, ActivityEvent{
		EventType: ActivityEventRehydrated,
		UserID:    record.Identity.ID,
		Email:     record.Identity.Email,
		Role:      record.Role,
	})

	return record.Clone(), nil
}

// handleExpiry is the tracker's deadline callback.
func (s *SessionStore) handleExpiry() {
	ctx := context.Background()

	s.opMu.Lock()
	if s.State() != StateActive {
		s.opMu.Unlock()
		return
	}
	// A login that re-armed the watch may have raced this callback; trust
	// the tracker's own re-check before tearing the session down.
	if s.tracker.CheckStillValid() {
		s.opMu.Unlock()
		return
	}
	cleared := s.logout(ctx, ActivityEventExpired)
	s.opMu.Unlock()

	if cleared {
		s.notifyProviderSignOut(ctx)
	}
}

func (s *SessionStore) guard(from, to State) error {
	if allowed, ok := s.transitions[from]; ok {
		if _, ok := allowed[to]; ok {
			return nil
		}
	}
	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}

// commit swaps the state/record pair and notifies listeners. Callers hold
// opMu, so notifications for one transition always finish before the next
// transition starts.
func (s *SessionStore) commit(next State, record *SessionRecord) {
	s.mu.Lock()
	previous := s.state
	s.state = next
	s.record = record
	listeners := make([]changeListener, len(s.listeners))
	copy(listeners, s.listeners)
	snapshot := record.Clone()
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(previous, next, snapshot)
	}
}

func (s *SessionStore) emit(ctx context.Context, event ActivityEvent) {
	event.OccurredAt = s.now()
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Error("activity sink failed for %s: %v", event.EventType, err)
	}
}
