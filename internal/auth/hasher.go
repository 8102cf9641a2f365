package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultHashCost is the bcrypt work factor used when none is configured.
const DefaultHashCost = 12

// Hash operations reported to the observer.
const (
	HashOpHash   = "hash"
	HashOpVerify = "verify"
)

// SecretHasher turns secrets into salted one-way verifiers and checks them.
type SecretHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, verifier string) (bool, error)
}

// HasherConfig configures a Hasher.
type HasherConfig struct {
	// Cost is the bcrypt work factor (4-31).
	Cost int

	// Workers bounds how many hash computations run at once.
	// Zero means GOMAXPROCS.
	Workers int
}

// Hasher produces bcrypt verifiers.
//
// Every hash and verify call first takes a slot from a weighted semaphore so
// a burst of logins cannot occupy every CPU at once; callers waiting for a
// slot give up when their context is cancelled. Verify also accepts legacy
// Argon2id PHC verifiers so older accounts keep working until they next
// change password.
type Hasher struct {
	cost    int
	slots   *semaphore.Weighted
	observe func(op string, d time.Duration)

	dummyOnce sync.Once
	dummy     string
}

// NewHasher creates a Hasher.
func NewHasher(cfg HasherConfig) *Hasher {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultHashCost
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(workers)),
	}
}

// SetObserver registers a callback invoked with the duration of every hash
// and verify. Intended for metrics; must be called before the Hasher is shared.
func (h *Hasher) SetObserver(fn func(op string, d time.Duration)) {
	h.observe = fn
}

// Cost returns the configured bcrypt work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a fresh salted verifier for secret.
//
// Parameters:
//   - ctx: Cancels the wait for a worker slot
//   - secret: Plaintext, at most 72 bytes
//
// Returns:
//   - string: bcrypt verifier ($2a$...)
//   - error: If the context ends first or the secret is too long
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for hash worker: %w", err)
	}
	defer h.slots.Release(1)

	start := time.Now()
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	h.report(HashOpHash, start)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}
	return string(out), nil
}

// Verify checks secret against a stored verifier.
//
// A mismatch returns (false, nil). A verifier that cannot be parsed returns
// (false, ErrMalformedVerifier); callers log it and treat it as a mismatch.
func (h *Hasher) Verify(ctx context.Context, secret, verifier string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("waiting for hash worker: %w", err)
	}
	defer h.slots.Release(1)

	start := time.Now()
	defer h.report(HashOpVerify, start)

	switch {
	case isBcrypt(verifier):
		err := bcrypt.CompareHashAndPassword([]byte(verifier), []byte(secret))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrMalformedVerifier, err)
	case strings.HasPrefix(verifier, "$argon2id$"):
		return verifyArgon2id(secret, verifier)
	default:
		return false, fmt.Errorf("%w: unrecognised format", ErrMalformedVerifier)
	}
}

// NeedsRehash reports whether a verifier should be replaced on next login:
// it is not bcrypt, or was produced with a different cost.
func (h *Hasher) NeedsRehash(verifier string) bool {
	if !isBcrypt(verifier) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(verifier))
	return err != nil || cost != h.cost
}

// Burn runs a verification against a throwaway verifier and discards the
// result. Login calls it for unknown emails so response time does not
// reveal whether an account exists.
func (h *Hasher) Burn(ctx context.Context, secret string) {
	h.dummyOnce.Do(func() {
		out, err := bcrypt.GenerateFromPassword([]byte("graylogic-timing-equaliser"), h.cost)
		if err == nil {
			h.dummy = string(out)
		}
	})
	if h.dummy == "" {
		return
	}
	h.Verify(ctx, secret, h.dummy) //nolint:errcheck // result intentionally discarded
}

func (h *Hasher) report(op string, start time.Time) {
	if h.observe != nil {
		h.observe(op, time.Since(start))
	}
}

func isBcrypt(verifier string) bool {
	return strings.HasPrefix(verifier, "$2a$") ||
		strings.HasPrefix(verifier, "$2b$") ||
		strings.HasPrefix(verifier, "$2y$")
}

// TokenDigest reduces a renewal token to a fixed-length string before it is
// hashed. Signed tokens are longer than bcrypt's 72-byte input limit.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Upper bounds for stored Argon2id parameters. Anything larger is treated
// as a corrupt verifier rather than attempted.
const (
	maxArgonMemory = 1 << 21 // KiB (2 GiB)
	maxArgonTime   = 16
)

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// verifyArgon2id checks a secret against an Argon2id PHC string:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func verifyArgon2id(secret, encoded string) (bool, error) {
	salt, hash, params, err := decodePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedVerifier, err)
	}

	candidate := argon2.IDKey([]byte(secret), salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// decodePHC parses an Argon2id PHC string format into its components.
func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	if params.time == 0 || params.threads == 0 {
		return nil, nil, params, fmt.Errorf("zero argon2 parameter")
	}
	if params.memory > maxArgonMemory || params.time > maxArgonTime {
		return nil, nil, params, fmt.Errorf("argon2 parameters m=%d,t=%d out of range", params.memory, params.time)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, params, fmt.Errorf("empty hash")
	}

	return salt, hash, params, nil
}
