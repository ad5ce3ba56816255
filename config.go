package session

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Config holds session options
type Config interface {
	GetInactivityTimeout() time.Duration
	GetRevalidateInterval() time.Duration
	GetJoinedFetchTimeout() time.Duration
	GetMembershipFetchTimeout() time.Duration
	GetOrganizationFetchTimeout() time.Duration
	GetRecordKey() string
	GetActivityKey() string
	GetSignInRoute() string
	GetOrganizationRequiredRoute() string
	GetRedirectKey() string
}

// Defaults: a 10 minute inactivity window re-checked every 60s, a 3s joined
// fetch, and a 3s + 5s two-step fetch.
const (
	DefaultInactivityTimeout        = 10 * time.Minute
	DefaultRevalidateInterval       = 60 * time.Second
	DefaultJoinedFetchTimeout       = 3 * time.Second
	DefaultMembershipFetchTimeout   = 3 * time.Second
	DefaultOrganizationFetchTimeout = 5 * time.Second

	DefaultRecordKey   = "session.record"
	DefaultActivityKey = "session.last_activity"

	DefaultSignInRoute         = "/login"
	DefaultOrgRequiredRoute    = "/organization/required"
	DefaultRejectedRedirectKey = "session_redirect"
)

// SessionConfig is the concrete Config carrying defaults.
type SessionConfig struct {
	InactivityTimeout        time.Duration `json:"inactivity_timeout"`
	RevalidateInterval       time.Duration `json:"revalidate_interval"`
	JoinedFetchTimeout       time.Duration `json:"joined_fetch_timeout"`
	MembershipFetchTimeout   time.Duration `json:"membership_fetch_timeout"`
	OrganizationFetchTimeout time.Duration `json:"organization_fetch_timeout"`
	RecordKey                string        `json:"record_key"`
	ActivityKey              string        `json:"activity_key"`
	SignInRoute              string        `json:"sign_in_route"`
	OrganizationRequired     string        `json:"organization_required_route"`
	RedirectKey              string        `json:"redirect_key"`
}

var _ Config = (*SessionConfig)(nil)

// DefaultConfig returns a SessionConfig with all defaults applied.
func DefaultConfig() *SessionConfig {
	return &SessionConfig{
		InactivityTimeout:        DefaultInactivityTimeout,
		RevalidateInterval:       DefaultRevalidateInterval,
		JoinedFetchTimeout:       DefaultJoinedFetchTimeout,
		MembershipFetchTimeout:   DefaultMembershipFetchTimeout,
		OrganizationFetchTimeout: DefaultOrganizationFetchTimeout,
		RecordKey:                DefaultRecordKey,
		ActivityKey:              DefaultActivityKey,
		SignInRoute:              DefaultSignInRoute,
		OrganizationRequired:     DefaultOrgRequiredRoute,
		RedirectKey:              DefaultRejectedRedirectKey,
	}
}

// Validate ensures timeouts and keys are usable before wiring components.
func (c SessionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.InactivityTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RevalidateInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.JoinedFetchTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MembershipFetchTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.OrganizationFetchTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RecordKey, validation.Required),
		validation.Field(&c.ActivityKey, validation.Required),
	)
}

func (c *SessionConfig) GetInactivityTimeout() time.Duration {
	return c.InactivityTimeout
}

func (c *SessionConfig) GetRevalidateInterval() time.Duration {
	return c.RevalidateInterval
}

func (c *SessionConfig) GetJoinedFetchTimeout() time.Duration {
	return c.JoinedFetchTimeout
}

func (c *SessionConfig) GetMembershipFetchTimeout() time.Duration {
	return c.MembershipFetchTimeout
}

func (c *SessionConfig) GetOrganizationFetchTimeout() time.Duration {
	return c.OrganizationFetchTimeout
}

func (c *SessionConfig) GetRecordKey() string {
	return c.RecordKey
}

func (c *SessionConfig) GetActivityKey() string {
	return c.ActivityKey
}

func (c *SessionConfig) GetSignInRoute() string {
	return c.SignInRoute
}

func (c *SessionConfig) GetOrganizationRequiredRoute() string {
	return c.OrganizationRequired
}

func (c *SessionConfig) GetRedirectKey() string {
	return c.RedirectKey
}
