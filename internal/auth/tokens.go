package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claim is the identity carried inside a signed token.
type Claim struct {
	AccountID string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ClaimFor builds the claim for an account's current state.
func ClaimFor(a *Account) Claim {
	return Claim{AccountID: a.ID, Email: a.Email, Role: a.Role}
}

// tokenClaims is the JWT payload: sub, email, role, jti, iat, exp.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// TokenPair is the access and renewal token handed to a client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IssuerConfig configures a TokenIssuer.
type IssuerConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

type tokenKey struct {
	secret []byte
	ttl    time.Duration
}

// TokenIssuer signs and verifies access and renewal tokens.
//
// The two token classes use different secrets, so an access token never
// verifies as a renewal token or the other way round. Verification never
// touches the store.
type TokenIssuer struct {
	access  tokenKey
	refresh tokenKey
	now     func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. The secrets must be non-empty and
// distinct, and both lifetimes positive.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &TokenIssuer{
		access:  tokenKey{secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL},
		refresh: tokenKey{secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL},
		now:     time.Now,
	}, nil
}

// AccessTTL returns the access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.access.ttl
}

// IssueAccess signs a short-lived access token for the claim.
func (i *TokenIssuer) IssueAccess(c Claim) (string, error) {
	return i.sign(i.access, c)
}

// IssueRenewal signs a long-lived renewal token for the claim.
func (i *TokenIssuer) IssueRenewal(c Claim) (string, error) {
	return i.sign(i.refresh, c)
}

// IssuePair signs both tokens for the claim.
func (i *TokenIssuer) IssuePair(c Claim) (TokenPair, error) {
	access, err := i.IssueAccess(c)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.IssueRenewal(c)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess checks an access token's signature and expiry.
func (i *TokenIssuer) VerifyAccess(token string) (Claim, error) {
	return i.verify(i.access, token)
}

// VerifyRenewal checks a renewal token's signature and expiry. It says
// nothing about whether the token is still the account's live one.
func (i *TokenIssuer) VerifyRenewal(token string) (Claim, error) {
	return i.verify(i.refresh, token)
}

func (i *TokenIssuer) sign(key tokenKey, c Claim) (string, error) {
	now := i.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(key.ttl)),
			// jti keeps two tokens issued within the same second distinct.
			ID: uuid.NewString(),
		},
		Email: c.Email,
		Role:  c.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (i *TokenIssuer) verify(key tokenKey, tokenString string) (Claim, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(_ *jwt.Token) (any, error) {
		return key.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return Claim{}, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return Claim{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return Claim{}, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	c := Claim{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
	}
	if claims.IssuedAt != nil {
		c.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c, nil
}
