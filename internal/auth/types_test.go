package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestProfile_OmitsVerifiers(t *testing.T) {
	a := &Account{
		ID:               "acc-001",
		Email:            "alice@example.com",
		FirstName:        "Alice",
		LastName:         "Smith",
		PasswordHash:     "$2a$12$secret-password-hash",
		RefreshTokenHash: "$2a$12$secret-renewal-hash",
		Role:             RoleUser,
		IsActive:         true,
	}

	for name, v := range map[string]any{"profile": a.Profile(), "account": a} {
		t.Run(name, func(t *testing.T) {
			b, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			if strings.Contains(string(b), "secret-") {
				t.Errorf("serialised %s leaks a verifier: %s", name, b)
			}
		})
	}

	b, _ := json.Marshal(a.Profile()) //nolint:errcheck // checked above
	for _, key := range []string{`"firstName"`, `"lastName"`, `"isActive"`, `"createdAt"`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("profile JSON missing %s: %s", key, b)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleUser) || !IsValidRole(RoleAdmin) {
		t.Error("user and admin should be valid roles")
	}
	if IsValidRole("owner") || IsValidRole("") {
		t.Error("unknown roles should be invalid")
	}
}

func TestIsValidEventType(t *testing.T) {
	for _, et := range EventTypes {
		if !IsValidEventType(et) {
			t.Errorf("IsValidEventType(%q) = false", et)
		}
	}
	if IsValidEventType("signin") || IsValidEventType("") {
		t.Error("unknown event types must be rejected")
	}
}

func TestValidationError_MatchesSentinel(t *testing.T) {
	err := ValidatePassword("123")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("errors.Is(%v, ErrValidation) = false", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "password" {
		t.Errorf("ValidatePassword() = %v, want a password ValidationError", err)
	}
}

func TestValidatePassword_Bounds(t *testing.T) {
	if err := ValidatePassword("123456"); err != nil {
		t.Errorf("ValidatePassword(6 chars) error = %v", err)
	}
	if err := ValidatePassword(strings.Repeat("x", MaxPasswordLength+1)); err == nil {
		t.Error("ValidatePassword() should reject more than 72 bytes")
	}
}

func TestNormaliseEmail_PreservesCase(t *testing.T) {
	if got := NormaliseEmail("  Alice@Example.com "); got != "Alice@Example.com" {
		t.Errorf("NormaliseEmail() = %q, want %q", got, "Alice@Example.com")
	}
}
