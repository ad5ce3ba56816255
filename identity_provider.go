package session

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// Credentials is the password sign-in payload.
type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate rejects unusable payloads before any backend work happens.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Identifier, validation.Required, validation.Length(3, 100)),
		validation.Field(&c.Password, validation.Required, validation.Length(1, 200)),
	)
}

// AccountFinder is the minimal account lookup surface the provider needs.
type AccountFinder interface {
	GetAccountByIdentifier(ctx context.Context, identifier string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) (*Account, error)
}

// LocalIdentityProvider is a reference IdentityProvider backed by the
// accounts table. Real deployments typically swap in a hosted provider; this
// one exists so the whole lifecycle can run against a local database.
type LocalIdentityProvider struct {
	accounts   AccountFinder
	signingKey []byte
	tokenTTL   time.Duration
	issuer     string
	logger     Logger
	now        func() time.Time

	mu           sync.Mutex
	current      *Identity
	listeners    []authListener
	nextListener int
}

type authListener struct {
	id int
	fn func(ctx context.Context, event AuthEvent)
}

var _ IdentityProvider = (*LocalIdentityProvider)(nil)

// ProviderOption customizes provider construction.
type ProviderOption func(*LocalIdentityProvider)

// WithProviderTokenTTL overrides the issued token lifetime.
func WithProviderTokenTTL(ttl time.Duration) ProviderOption {
	return func(p *LocalIdentityProvider) {
		if ttl > 0 {
			p.tokenTTL = ttl
		}
	}
}

// WithProviderIssuer overrides the token issuer claim.
func WithProviderIssuer(issuer string) ProviderOption {
	return func(p *LocalIdentityProvider) {
		if issuer != "" {
			p.issuer = issuer
		}
	}
}

// WithProviderLogger overrides the provider logger.
func WithProviderLogger(logger Logger) ProviderOption {
	return func(p *LocalIdentityProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProviderClock injects a custom clock (useful for tests).
func WithProviderClock(clock func() time.Time) ProviderOption {
	return func(p *LocalIdentityProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

func NewLocalIdentityProvider(accounts AccountFinder, signingKey []byte, opts ...ProviderOption) *LocalIdentityProvider {
	p := &LocalIdentityProvider{
		accounts:   accounts,
		signingKey: signingKey,
		tokenTTL:   time.Hour,
		issuer:     "go-session",
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// SignInWithPassword verifies credentials against the accounts table, mints
// an access token, and emits the signedIn event to subscribers.
func (p *LocalIdentityProvider) SignInWithPassword(ctx context.Context, identifier, password string) (*Identity, error) {
	creds := Credentials{Identifier: identifier, Password: password}
	if err := creds.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign-in payload").
			WithCode(goerrors.CodeBadRequest)
	}

	account, err := p.accounts.GetAccountByIdentifier(ctx, identifier)
	if err != nil || account == nil {
		p.logger.Info("sign-in failed for %s: unknown identifier", identifier)
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		p.logger.Info("sign-in failed for %s: password mismatch", identifier)
		return nil, ErrInvalidCredentials
	}

	token, err := p.mintToken(account)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "minting access token failed")
	}

	identity := account.Identity(token)

	p.mu.Lock()
	p.current = identity
	p.mu.Unlock()

	p.emit(ctx, AuthEvent{Type: AuthEventSignedIn, Identity: identity.clone()})

	return identity.clone(), nil
}

// SignOut clears the current identity and notifies subscribers. Idempotent.
func (p *LocalIdentityProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	signedIn := p.current != nil
	p.current = nil
	p.mu.Unlock()

	if signedIn {
		p.emit(ctx, AuthEvent{Type: AuthEventSignedOut})
	}
	return nil
}

// CurrentIdentity returns the signed-in identity, or nil.
func (p *LocalIdentityProvider) CurrentIdentity(ctx context.Context) (*Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.clone(), nil
}

// RefreshToken re-mints the current identity's access token and emits the
// tokenRefreshed event so downstream session state self-heals.
func (p *LocalIdentityProvider) RefreshToken(ctx context.Context) (*Identity, error) {
	p.mu.Lock()
	current := p.current.clone()
	p.mu.Unlock()

	if current == nil {
		return nil, ErrNoIdentity
	}

	account, err := p.accounts.GetAccountByIdentifier(ctx, current.ID)
	if err != nil || account == nil {
		return nil, ErrInvalidCredentials
	}

	token, err := p.mintToken(account)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "minting access token failed")
	}

	identity := account.Identity(token)

	p.mu.Lock()
	p.current = identity
	p.mu.Unlock()

	p.emit(ctx, AuthEvent{Type: AuthEventTokenRefreshed, Identity: identity.clone()})

	return identity.clone(), nil
}

// OnAuthStateChange subscribes to provider state changes. Events fire
// synchronously in registration order.
func (p *LocalIdentityProvider) OnAuthStateChange(fn func(ctx context.Context, event AuthEvent)) Unsubscribe {
	if fn == nil {
		return func() {}
	}

	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners = append(p.listeners, authListener{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

// RegisterAccount creates an account with a deterministic id derived from
// the email, so repeat registrations stay idempotent across environments.
func (p *LocalIdentityProvider) RegisterAccount(ctx context.Context, email, password string, organizationID *string) (*Account, error) {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email").
			WithCode(goerrors.CodeBadRequest)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		Email:          email,
		PasswordHash:   hash,
		OrganizationID: organizationID,
	}
	if id, err := hashid.NewUUID(email); err == nil {
		account.ID = id
	}

	created, err := p.accounts.CreateAccount(ctx, account)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
	}
	return created, nil
}

func (p *LocalIdentityProvider) mintToken(account *Account) (string, error) {
	now := p.now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.tokenTTL)),
		},
		Email: account.Email,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
}

func (p *LocalIdentityProvider) emit(ctx context.Context, event AuthEvent) {
	p.mu.Lock()
	listeners := make([]authListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l.fn(ctx, event)
	}
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	return &out
}
