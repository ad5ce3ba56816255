package session

import (
	"context"
	"sync"
	"time"
)

// ActivityTracker folds raw interaction signals into a single last-activity
// timestamp and enforces the inactivity deadline. Marking activity is the
// only way the deadline is ever extended.
type ActivityTracker struct {
	storage  Storage
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	logger   Logger

	mu           sync.Mutex
	lastActivity time.Time
	timer        *time.Timer
	onExpire     func()
	watching     bool
	expired      bool
}

// TrackerOption customizes tracker construction.
type TrackerOption func(*ActivityTracker)

// WithTrackerTimeout overrides the inactivity timeout.
func WithTrackerTimeout(timeout time.Duration) TrackerOption {
	return func(t *ActivityTracker) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// WithTrackerRevalidateInterval overrides the periodic re-check interval.
func WithTrackerRevalidateInterval(interval time.Duration) TrackerOption {
	return func(t *ActivityTracker) {
		if interval > 0 {
			t.interval = interval
		}
	}
}

// WithTrackerClock injects a custom clock (useful for tests).
func WithTrackerClock(clock func() time.Time) TrackerOption {
	return func(t *ActivityTracker) {
		if clock != nil {
			t.now = clock
		}
	}
}

// WithTrackerLogger overrides the tracker logger.
func WithTrackerLogger(logger Logger) TrackerOption {
	return func(t *ActivityTracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewActivityTracker(storage Storage, opts ...TrackerOption) *ActivityTracker {
	t := &ActivityTracker{
		storage:  storage,
		timeout:  DefaultInactivityTimeout,
		interval: DefaultRevalidateInterval,
		now:      time.Now,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Timeout returns the configured inactivity window.
func (t *ActivityTracker) Timeout() time.Duration {
	return t.timeout
}

// LastActivity returns the most recent activity timestamp.
func (t *ActivityTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// MarkActivity records "now" into memory and persisted state and re-arms the
// deadline while a watch is active. Calls are commutative: most recent wins.
func (t *ActivityTracker) MarkActivity(ctx context.Context) time.Time {
	t.mu.Lock()
	ts := t.now()
	if ts.After(t.lastActivity) {
		t.lastActivity = ts
	}
	if t.watching && !t.expired && t.timer != nil {
		t.timer.Reset(t.timeout)
	}
	ts = t.lastActivity
	t.mu.Unlock()

	if t.storage != nil {
		if err := t.storage.SaveLastActivity(ctx, ts); err != nil {
			t.logger.Error("persisting last activity failed: %v", err)
		}
	}
	return ts
}

// Restore seeds the last-activity timestamp from persisted state during
// rehydration, without touching storage.
func (t *ActivityTracker) Restore(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts.After(t.lastActivity) {
		t.lastActivity = ts
	}
}

// StartWatch arms a one-shot deadline timer for timeout after the last
// activity. On fire it invokes onExpire once and does not re-arm.
func (t *ActivityTracker) StartWatch(onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onExpire = onExpire
	t.watching = true
	t.expired = false

	if t.lastActivity.IsZero() {
		t.lastActivity = t.now()
	}

	remaining := t.lastActivity.Add(t.timeout).Sub(t.now())
	if remaining < 0 {
		remaining = 0
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(remaining, t.fireDeadline)
}

// StopWatch cancels the deadline timer. Idempotent.
func (t *ActivityTracker) StopWatch() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.watching = false
	t.expired = false
	t.onExpire = nil
}

// CheckStillValid is an idempotent re-check meant to run on a fixed
// interval. It compares elapsed idle time against the timeout and drives
// the same expiry path as the deadline timer, covering timers lost to
// background or sleep states.
func (t *ActivityTracker) CheckStillValid() bool {
	t.mu.Lock()
	if !t.watching {
		expired := t.expired
		t.mu.Unlock()
		return !expired
	}
	valid := t.now().Sub(t.lastActivity) < t.timeout
	t.mu.Unlock()

	if !valid {
		t.expire()
	}
	return valid
}

// StartRevalidation spawns the periodic CheckStillValid loop. The returned
// Unsubscribe stops it; ctx cancellation stops it too.
func (t *ActivityTracker) StartRevalidation(ctx context.Context) Unsubscribe {
	ticker := time.NewTicker(t.interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				t.CheckStillValid()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (t *ActivityTracker) fireDeadline() {
	t.expire()
}

// expire fires the expiry callback exactly once per watch. Both the timer
// and the interval re-check funnel through here.
func (t *ActivityTracker) expire() {
	t.mu.Lock()
	if !t.watching || t.expired {
		t.mu.Unlock()
		return
	}

	// Activity may have advanced after the timer was armed; re-arm for the
	// remaining window instead of expiring.
	remaining := t.lastActivity.Add(t.timeout).Sub(t.now())
	if remaining > 0 {
		if t.timer != nil {
			t.timer.Reset(remaining)
		}
		t.mu.Unlock()
		return
	}

	t.expired = true
	t.watching = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	callback := t.onExpire
	t.onExpire = nil
	t.mu.Unlock()

	if callback != nil {
		callback()
	}
}
