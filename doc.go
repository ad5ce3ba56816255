// Package session keeps a signed-in identity alive across restarts and
// resolves the tenant/role pair that identity operates under.
//
// Session lifecycle:
//   - SessionStore owns the single SessionRecord and is its only writer.
//     Transitions (Unauthenticated -> Resolving -> Active and back) run under
//     an explicit single-writer lock; OnChange listeners fire synchronously
//     in registration order once a transition commits.
//   - ActivityTracker converts interaction signals into a last-activity
//     timestamp and enforces the inactivity deadline. A periodic re-check
//     guards against timers lost to process sleep.
//   - Rehydration restores an Active session from persisted storage without
//     re-running resolution, as long as the inactivity window has not lapsed.
//
// Organization resolution:
//   - Resolver runs an ordered fallback chain of query strategies, each raced
//     against its own timeout. The loser of a race is abandoned, never
//     cancelled, and a late result is discarded. Absence of an organization
//     is a legitimate outcome, distinct from a query fault.
//   - Classifier derives the effective role: tenant membership wins, then a
//     pluggable privileged-account predicate, then plain member.
//
// Activity sinks:
//   - ActivitySink is a best-effort audit emitter describing login, logout,
//     expiry, rehydration, and resolver fallback events. Sink errors are
//     logged so downstream forwarding never blocks the session flow.
package session
