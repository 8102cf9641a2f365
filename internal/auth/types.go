package auth

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a self-registered account. It may read and edit its own
	// profile and manage its own session.
	RoleUser Role = "user"

	// RoleAdmin manages other accounts and can read the audit trail.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles an account may hold.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if the role is one an account may hold.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Account is the persisted credential record.
//
// PasswordHash and RefreshTokenHash never leave the package boundary on a
// wire: anything serialised to a client goes through Profile.
type Account struct {
	ID        string
	Email     string
	FirstName string
	LastName  string

	// PasswordHash is the one-way verifier of the account's password.
	PasswordHash string `json:"-"`

	// RefreshTokenHash is the verifier of the single live renewal token.
	// Empty means no session is live.
	RefreshTokenHash string `json:"-"`

	Role      Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasLiveSession reports whether a renewal-token verifier is stored.
func (a *Account) HasLiveSession() bool {
	return a.RefreshTokenHash != ""
}

// Profile returns the public projection of the account.
func (a *Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// Profile is the account as clients see it. It has no verifier fields,
// so it is safe to serialise anywhere.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccountUpdate carries the mutable profile fields. Nil fields are left unchanged.
type AccountUpdate struct {
	FirstName *string
	LastName  *string
	Role      *Role
	IsActive  *bool
}

// RevokesSession reports whether applying the update must end the account's
// live session: deactivation or any role change.
func (u AccountUpdate) RevokesSession(current *Account) bool {
	if u.IsActive != nil && !*u.IsActive {
		return true
	}
	return u.Role != nil && *u.Role != current.Role
}

// Registration is the input for creating an account.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      Role
}

// Field limits applied to registration and profile input.
const (
	MinPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit in bytes.
	MaxPasswordLength = 72
	MinNameLength     = 2
	maxNameLength     = 100
	maxEmailLength    = 254
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Is lets errors.Is match any ValidationError against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NormaliseEmail trims surrounding whitespace. Case is preserved: the
// store compares addresses exactly.
func NormaliseEmail(email string) string {
	return strings.TrimSpace(email)
}

// ValidateEmail checks that email is a bare RFC 5322 address.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	if len(email) > maxEmailLength {
		return &ValidationError{Field: "email", Message: "is too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	return nil
}

// ValidatePassword checks the password length bounds.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: "must be at least 6 characters"}
	}
	if len(password) > MaxPasswordLength {
		return &ValidationError{Field: "password", Message: "must be at most 72 bytes"}
	}
	return nil
}

// ValidateName checks a first or last name.
func ValidateName(field, name string) error {
	n := len([]rune(strings.TrimSpace(name)))
	if n < MinNameLength {
		return &ValidationError{Field: field, Message: "must be at least 2 characters"}
	}
	if n > maxNameLength {
		return &ValidationError{Field: field, Message: "is too long"}
	}
	return nil
}

// Validate checks every field of the registration.
func (r Registration) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if err := ValidatePassword(r.Password); err != nil {
		return err
	}
	if err := ValidateName("firstName", r.FirstName); err != nil {
		return err
	}
	if err := ValidateName("lastName", r.LastName); err != nil {
		return err
	}
	if r.Role != "" && !IsValidRole(r.Role) {
		return &ValidationError{Field: "role", Message: "must be user or admin"}
	}
	return nil
}

// Sentinel errors. The API layer maps these onto HTTP status codes.
var (
	// ErrInvalidCredentials covers an unknown email, a wrong password and a
	// bad, expired or superseded renewal token. Callers cannot tell which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive is returned when a deactivated account tries to
	// start or renew a session.
	ErrAccountInactive = errors.New("account is deactivated")

	// ErrEmailExists is returned when an email is already registered.
	ErrEmailExists = errors.New("email already registered")

	// ErrAccountNotFound is returned by the store when no account matches.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCurrentPasswordMismatch is returned by ChangePassword when the
	// supplied current password does not verify.
	ErrCurrentPasswordMismatch = errors.New("current password is incorrect")

	// ErrUnauthenticated is returned when no valid access token was presented.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller's role is not permitted.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrTokenInvalid is returned for a token with a bad signature, a bad
	// shape, the wrong algorithm or an expiry in the past.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrMalformedVerifier is returned when a stored verifier cannot be parsed.
	ErrMalformedVerifier = errors.New("malformed verifier")

	// ErrStaleVerifier is returned when a renewal verifier was replaced
	// between being read and being swapped.
	ErrStaleVerifier = errors.New("renewal verifier changed concurrently")

	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)
