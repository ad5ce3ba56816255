package session

import (
	"fmt"
	"time"
)

// SessionRecord is the single source of truth for who is signed in and with
// what rights. It exists if and only if the user is considered signed in,
// and is mutated only through the SessionStore transition API.
type SessionRecord struct {
	Identity       Identity      `json:"identity"`
	Organization   *Organization `json:"organization,omitempty"`
	Role           Role          `json:"role"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// Touch advances LastActivityAt. The timestamp is monotonically
// non-decreasing: a stale ts is ignored so concurrent marks agree on
// most-recent-wins.
func (r *SessionRecord) Touch(ts time.Time) {
	if ts.After(r.LastActivityAt) {
		r.LastActivityAt = ts
	}
}

// ExpiresAt is the inactivity deadline for the given timeout.
func (r *SessionRecord) ExpiresAt(timeout time.Duration) time.Time {
	return r.LastActivityAt.Add(timeout)
}

// Expired reports whether the inactivity window has lapsed at now.
func (r *SessionRecord) Expired(now time.Time, timeout time.Duration) bool {
	return !now.Before(r.ExpiresAt(timeout))
}

// HasOrganization reports whether the session carries a tenant.
func (r *SessionRecord) HasOrganization() bool {
	return r.Organization != nil
}

// Clone returns a read-only snapshot for consumers outside the store.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Organization != nil {
		org := *r.Organization
		out.Organization = &org
	}
	return &out
}

func (r SessionRecord) String() string {
	org := "<none>"
	if r.Organization != nil {
		org = r.Organization.ID
	}
	return fmt.Sprintf(
		"user=%s email=%s role=%s org=%s last_activity=%s",
		r.Identity.ID,
		r.Identity.Email,
		r.Role,
		org,
		r.LastActivityAt.Format(time.RFC3339),
	)
}
