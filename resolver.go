package session

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Strategy names reported in ResolutionOutcome and activity events.
const (
	StrategyJoinedFetch  = "joined_fetch"
	StrategyTwoStepFetch = "two_step_fetch"
	StrategyBypass       = "bypass"
)

// ResolutionOutcome is the ephemeral result of one resolution attempt,
// consumed immediately by the classifier. Absence of an organization with
// Succeeded set is a legitimate outcome, not a fault; Err carries the last
// strategy fault for reporting when the whole chain failed to conclude.
type ResolutionOutcome struct {
	Organization *Organization
	Strategy     string
	Succeeded    bool
	TimedOut     bool
	Err          error
}

// Strategy is one query shape used to discover an identity's organization.
// Run is raced against Timeout; a Timeout of zero disables the race.
type Strategy struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context, identity Identity) (*Organization, error)
}

// Resolver answers "what organization does this identity belong to?" by
// consuming an ordered fallback chain of strategies. Strategies run
// sequentially: both hit the same backend, so running them concurrently
// would double load without improving latency.
type Resolver struct {
	strategies []Strategy
	logger     Logger
	sink       ActivitySink
	now        func() time.Time
}

// ResolverOption customizes resolver construction.
type ResolverOption func(*Resolver)

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverActivitySink publishes fallback/bypass events to the sink.
func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *Resolver) {
		r.sink = normalizeActivitySink(sink)
	}
}

// WithResolverStrategies replaces the default chain.
func WithResolverStrategies(strategies ...Strategy) ResolverOption {
	return func(r *Resolver) {
		if len(strategies) > 0 {
			r.strategies = strategies
		}
	}
}

// WithResolverClock injects a custom clock (useful for tests).
func WithResolverClock(clock func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewResolver builds a resolver over the default joined + two-step chain.
func NewResolver(store TenantStore, cfg Config, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger: defLogger{},
		sink:   noopActivitySink{},
		now:    time.Now,
	}
	if store != nil && cfg != nil {
		r.strategies = DefaultStrategies(store, cfg)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// DefaultStrategies is the default chain: a single joined query first, the
// two-step fetch as fallback.
func DefaultStrategies(store TenantStore, cfg Config) []Strategy {
	return []Strategy{
		JoinedFetchStrategy(store, cfg.GetJoinedFetchTimeout()),
		TwoStepFetchStrategy(store, cfg.GetMembershipFetchTimeout(), cfg.GetOrganizationFetchTimeout()),
	}
}

// JoinedFetchStrategy fetches the account row with the organization embedded
// in one query.
func JoinedFetchStrategy(store TenantStore, timeout time.Duration) Strategy {
	return Strategy{
		Name:    StrategyJoinedFetch,
		Timeout: timeout,
		Run: func(ctx context.Context, identity Identity) (*Organization, error) {
			membership, err := store.FetchUserWithOrganization(ctx, identity.ID)
			if err != nil {
				return nil, err
			}
			if membership == nil || membership.OrganizationID == "" {
				return nil, nil
			}
			// The backend sometimes returns the reference without the
			// embedded row; report no result so the two-step fetch can
			// recover it.
			return membership.Organization, nil
		},
	}
}

// TwoStepFetchStrategy fetches the account's organization id first, then the
// organization row by id. Each step races its own timeout; a timeout on
// either step fails the whole strategy.
func TwoStepFetchStrategy(store TenantStore, stepTimeout, orgTimeout time.Duration) Strategy {
	return Strategy{
		Name:    StrategyTwoStepFetch,
		Timeout: stepTimeout + orgTimeout,
		Run: func(ctx context.Context, identity Identity) (*Organization, error) {
			orgID, err := race(ctx, stepTimeout, func(ctx context.Context) (string, error) {
				return store.FetchUserOrganizationID(ctx, identity.ID)
			})
			if err != nil {
				return nil, err
			}
			if orgID == "" {
				return nil, nil
			}

			org, err := race(ctx, orgTimeout, func(ctx context.Context) (*Organization, error) {
				return store.FetchOrganizationByID(ctx, orgID)
			})
			if err != nil {
				return nil, err
			}
			if org == nil {
				// dangling reference: the account points at an
				// organization that is missing or inactive
				return nil, ErrOrganizationNotFound.WithMetadata(map[string]any{
					"organization_id": orgID,
				})
			}
			return org, nil
		},
	}
}

// ResolveOption customizes a single resolution attempt.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	bypass bool
}

// WithBypass skips the fallback chain entirely and reports no organization
// after merely confirming the identity is valid. Trades tenant-awareness for
// availability; callers opt in explicitly (e.g. first app boot).
func WithBypass() ResolveOption {
	return func(o *resolveOptions) {
		o.bypass = true
	}
}

// Resolve walks the strategy chain in order. A strategy must conclusively
// fail (fault, timeout, or no organization reference) before the next one
// runs. The final strategy's empty result is the conclusive "no
// organization" answer.
func (r *Resolver) Resolve(ctx context.Context, identity *Identity, opts ...ResolveOption) ResolutionOutcome {
	options := &resolveOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if identity == nil || !identity.Valid() {
		return ResolutionOutcome{Err: ErrNoIdentity}
	}

	if options.bypass {
		r.emit(ctx, ActivityEventResolverBypass, identity, StrategyBypass)
		return ResolutionOutcome{Strategy: StrategyBypass, Succeeded: true}
	}

	var lastErr error
	lastTimedOut := false

	for i, strategy := range r.strategies {
		org, err := r.attempt(ctx, strategy, *identity)
		last := i == len(r.strategies)-1

		if err != nil {
			lastErr = err
			lastTimedOut = IsQueryTimeout(err)
			if lastTimedOut {
				r.logger.Info("organization strategy %s timed out", strategy.Name)
			} else {
				r.logger.Error("organization strategy %s failed: %v", strategy.Name, err)
			}
			if !last {
				r.emit(ctx, ActivityEventResolverFallback, identity, strategy.Name)
			}
			continue
		}

		if org != nil {
			return ResolutionOutcome{
				Organization: org,
				Strategy:     strategy.Name,
				Succeeded:    true,
			}
		}

		if !last {
			r.emit(ctx, ActivityEventResolverFallback, identity, strategy.Name)
			continue
		}

		// conclusive: the account has no organization
		return ResolutionOutcome{Strategy: strategy.Name, Succeeded: true}
	}

	// Every strategy faulted. Absence is still reported as a workable
	// outcome; the fault travels alongside for logging.
	return ResolutionOutcome{Succeeded: true, TimedOut: lastTimedOut, Err: lastErr}
}

func (r *Resolver) attempt(ctx context.Context, strategy Strategy, identity Identity) (*Organization, error) {
	if strategy.Run == nil {
		return nil, ErrQueryFailed.WithMetadata(map[string]any{
			"strategy": strategy.Name,
			"reason":   "strategy has no run function",
		})
	}

	run := func(ctx context.Context) (*Organization, error) {
		return strategy.Run(ctx, identity)
	}

	var org *Organization
	var err error
	if strategy.Timeout > 0 {
		org, err = race(ctx, strategy.Timeout, run)
	} else {
		org, err = run(ctx)
	}

	if err == nil {
		return org, nil
	}

	if IsQueryTimeout(err) {
		return nil, ErrQueryTimeout.WithMetadata(map[string]any{
			"strategy": strategy.Name,
		})
	}
	if IsNoIdentity(err) || IsOrganizationNotFound(err) {
		return nil, err
	}

	return nil, ErrQueryFailed.WithMetadata(map[string]any{
		"strategy": strategy.Name,
		"error":    err.Error(),
	})
}

func (r *Resolver) emit(ctx context.Context, eventType ActivityEventType, identity *Identity, strategy string) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     identity.ID,
		Email:      identity.Email,
		Strategy:   strategy,
		OccurredAt: r.now(),
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Error("activity sink failed for %s: %v", eventType, err)
	}
}

// race runs fn against a one-shot timer. Whichever settles first wins; the
// loser is abandoned, not cancelled. The buffered channel lets a late result
// arrive and be discarded without leaking the goroutine.
func race[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type settled struct {
		value T
		err   error
	}

	ch := make(chan settled, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- settled{err: goerrors.New(fmt.Sprintf("query panicked: %v", rec), goerrors.CategoryInternal)}
			}
		}()
		value, err := fn(ctx)
		ch <- settled{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case result := <-ch:
		if result.err != nil {
			return zero, result.err
		}
		return result.value, nil
	case <-timer.C:
		return zero, ErrQueryTimeout
	case <-ctx.Done():
		return zero, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "resolution cancelled")
	}
}
