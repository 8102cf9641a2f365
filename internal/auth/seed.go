package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for a generated admin password.
const seedPasswordBytes = 16

// SeedAccount describes the administrator created on first boot.
type SeedAccount struct {
	Email     string
	Password  string // generated when empty
	FirstName string
	LastName  string
}

// SeedAdmin creates the initial administrator if no accounts exist.
// A generated password is logged once and must be changed immediately.
// Returns the password used (empty string if seeding was skipped).
func SeedAdmin(ctx context.Context, repo AccountRepository, hasher SecretHasher, seed SeedAccount, logger *slog.Logger) (string, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking account count: %w", err)
	}

	if count > 0 {
		logger.Info("accounts exist, skipping admin seed")
		return "", nil
	}

	password := seed.Password
	generated := password == ""
	if generated {
		passwordBytes := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(passwordBytes)
	}

	reg := Registration{
		Email:     NormaliseEmail(seed.Email),
		Password:  password,
		FirstName: seed.FirstName,
		LastName:  seed.LastName,
		Role:      RoleAdmin,
	}
	if err := reg.Validate(); err != nil {
		return "", fmt.Errorf("invalid seed account: %w", err)
	}

	hash, err := hasher.Hash(ctx, password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &Account{
		Email:        reg.Email,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := repo.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	if generated {
		logger.Warn("seed admin account created",
			"email", admin.Email,
			// Deliberately outside the logger's redaction keys: this line is the
			// only place a generated password is ever shown.
			"generated_password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed admin account created", "email", admin.Email)
	}

	return password, nil
}
