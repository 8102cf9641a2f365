package auth

import (
	"fmt"
	"strings"
)

// RoleSet is the set of roles an endpoint admits. An empty set admits no one.
type RoleSet []Role

// Role sets used by the API routes.
var (
	// AnyRole admits every authenticated account.
	AnyRole = RoleSet{RoleUser, RoleAdmin}

	// AdminOnly admits administrators.
	AdminOnly = RoleSet{RoleAdmin}
)

// Allows returns true if r is a member of the set.
func (s RoleSet) Allows(r Role) bool {
	for _, v := range s {
		if v == r {
			return true
		}
	}
	return false
}

func (s RoleSet) String() string {
	names := make([]string, len(s))
	for i, r := range s {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

// Gate makes the per-request authorisation decision.
//
// It trusts the access token alone: no store lookup happens, so a
// deactivated account keeps access until its current access token expires.
type Gate struct {
	issuer *TokenIssuer
}

// NewGate creates a Gate that verifies access tokens with issuer.
func NewGate(issuer *TokenIssuer) *Gate {
	return &Gate{issuer: issuer}
}

// Authenticate extracts and verifies the bearer token from an
// Authorization header value. Any failure is ErrUnauthenticated.
func (g *Gate) Authenticate(header string) (Claim, error) {
	token, ok := bearerToken(header)
	if !ok {
		return Claim{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	claim, err := g.issuer.VerifyAccess(token)
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return claim, nil
}

// Authorize checks the claim's role against the required set.
func (g *Gate) Authorize(claim Claim, required RoleSet) error {
	if !required.Allows(claim.Role) {
		return fmt.Errorf("%w: role %q not in [%s]", ErrForbidden, claim.Role, required)
	}
	return nil
}

// bearerToken parses "Bearer <token>". The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
