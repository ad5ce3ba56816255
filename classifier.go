package session

import "strings"

// PrivilegedMatcher reports whether an email belongs to a platform operator.
// It exists only to bootstrap operators that predate any tenant; tenant
// membership always takes precedence.
type PrivilegedMatcher func(email string) bool

// StaticAllowlist builds a case-insensitive matcher over a fixed set of
// addresses.
func StaticAllowlist(emails ...string) PrivilegedMatcher {
	allowed := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		trimmed := strings.ToLower(strings.TrimSpace(email))
		if trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}

	return func(email string) bool {
		_, ok := allowed[strings.ToLower(strings.TrimSpace(email))]
		return ok
	}
}

// Classifier turns a ResolutionOutcome into an effective role.
type Classifier struct {
	privileged PrivilegedMatcher
	logger     Logger
}

// ClassifierOption customizes classifier construction.
type ClassifierOption func(*Classifier)

// WithPrivilegedMatcher installs the privileged-account predicate.
func WithPrivilegedMatcher(matcher PrivilegedMatcher) ClassifierOption {
	return func(c *Classifier) {
		if matcher != nil {
			c.privileged = matcher
		}
	}
}

// WithClassifierLogger overrides the classifier logger.
func WithClassifierLogger(logger Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		privileged: func(string) bool { return false },
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify derives the role and organization for an identity. The check
// order is deliberate: tenant membership is the common case and must never
// be shadowed by the allowlist. An inactive organization never grants
// orgAdmin: the backend filters them out, but custom strategies may not.
func (c *Classifier) Classify(identity Identity, outcome ResolutionOutcome) (Role, *Organization) {
	if outcome.Organization != nil {
		if outcome.Organization.IsActive {
			return RoleOrgAdmin, outcome.Organization
		}
		c.logger.Info("ignoring inactive organization %s for %s", outcome.Organization.ID, identity.Email)
	}

	if c.privileged(identity.Email) {
		c.logger.Debug("classified %s as platform operator", identity.Email)
		return RoleSuperAdmin, SystemOrganization()
	}

	return RoleMember, nil
}
