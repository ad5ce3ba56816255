package session

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenClaims is the claim set carried by provider-issued access tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// TokenValidator validates access tokens without tying callers to a specific
// signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*TokenClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*TokenClaims, error) {
	if f == nil {
		return nil, ErrInvalidCredentials
	}
	return f(tokenString)
}

// NewHMACValidator validates tokens signed with a shared HS256 key.
func NewHMACValidator(signingKey []byte) TokenValidator {
	return TokenValidatorFunc(func(tokenString string) (*TokenClaims, error) {
		claims := &TokenClaims{}
		token, err := jwt.ParseWithClaims(
			tokenString,
			claims,
			func(*jwt.Token) (any, error) { return signingKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "token validation failed").
				WithCode(goerrors.CodeUnauthorized)
		}
		if !token.Valid {
			return nil, ErrInvalidCredentials
		}
		return claims, nil
	})
}

// NewJWKSValidator validates tokens against the provider's published JWK
// set. The key set refreshes in the background until the validator is no
// longer needed.
func NewJWKSValidator(jwksURL string) (TokenValidator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "fetching JWK set failed")
	}

	return TokenValidatorFunc(func(tokenString string) (*TokenClaims, error) {
		claims := &TokenClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, jwks.Keyfunc)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "token validation failed").
				WithCode(goerrors.CodeUnauthorized)
		}
		if !token.Valid {
			return nil, ErrInvalidCredentials
		}
		return claims, nil
	}), nil
}

// MultiTokenValidator tries validators in order until one succeeds.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrInvalidCredentials
}

// TokenExpired inspects a token's exp claim without verifying the signature.
// Used by rehydration, where the client has no signing key: a definitively
// expired token disqualifies the stored record, while opaque or claimless
// tokens pass through.
func TokenExpired(tokenString string, now time.Time) bool {
	if tokenString == "" {
		return false
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
