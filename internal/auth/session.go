package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Session is the result of a successful register or login.
type Session struct {
	Account Profile
	Tokens  TokenPair
}

// SessionDeps holds the collaborators of a SessionManager.
type SessionDeps struct {
	Store  CredentialStore
	Hasher *Hasher
	Issuer *TokenIssuer
	Events EventSink
	Logger *slog.Logger
}

// SessionManager orchestrates register, login, refresh, logout and
// password change. Each account has at most one live session: starting or
// rotating a session overwrites the stored renewal verifier, which
// invalidates every earlier renewal token for that account.
type SessionManager struct {
	store  CredentialStore
	hasher *Hasher
	issuer *TokenIssuer
	events EventSink
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager creates a SessionManager. Events and Logger are optional.
func NewSessionManager(deps SessionDeps) (*SessionManager, error) {
	if deps.Store == nil || deps.Hasher == nil || deps.Issuer == nil {
		return nil, errors.New("session manager requires a store, hasher and issuer")
	}
	events := deps.Events
	if events == nil {
		events = discardSink{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:  deps.Store,
		hasher: deps.Hasher,
		issuer: deps.Issuer,
		events: events,
		logger: logger.With("component", "sessions"),
		now:    time.Now,
	}, nil
}

// Register creates a user account and starts its first session.
// The role on reg is ignored: self-registration always yields RoleUser.
func (m *SessionManager) Register(ctx context.Context, reg Registration) (*Session, error) {
	reg.Email = NormaliseEmail(reg.Email)
	reg.Role = RoleUser

	account, err := m.createAccount(ctx, reg)
	if err != nil {
		m.emit(ctx, SessionEvent{Type: EventRegistered, Email: reg.Email, Outcome: OutcomeFailure, Reason: reason(err)})
		return nil, err
	}

	tokens, err := m.startSession(ctx, account)
	if err != nil {
		return nil, err
	}

	m.emit(ctx, successEvent(EventRegistered, account))
	m.logger.Info("account registered", "account_id", account.ID)
	return &Session{Account: account.Profile(), Tokens: tokens}, nil
}

// CreateAccount creates an account with the requested role without
// starting a session. Used by administrators.
func (m *SessionManager) CreateAccount(ctx context.Context, reg Registration) (*Profile, error) {
	reg.Email = NormaliseEmail(reg.Email)
	if reg.Role == "" {
		reg.Role = RoleUser
	}

	account, err := m.createAccount(ctx, reg)
	if err != nil {
		return nil, err
	}

	m.emit(ctx, successEvent(EventAccountCreated, account))
	p := account.Profile()
	return &p, nil
}

func (m *SessionManager) createAccount(ctx context.Context, reg Registration) (*Account, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	// Fast path; the unique index is what actually enforces this.
	if _, err := m.store.FindByEmail(ctx, reg.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	verifier, err := m.hasher.Hash(ctx, reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{
		Email:        reg.Email,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		PasswordHash: verifier,
		Role:         reg.Role,
		IsActive:     true,
	}
	if err := m.store.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Login verifies the email and password and starts a new session,
// replacing any session the account already had.
//
// Unknown email and wrong password both return ErrInvalidCredentials.
// A deactivated account with the right password returns ErrAccountInactive.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormaliseEmail(email)

	account, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("finding account: %w", err)
		}
		m.hasher.Burn(ctx, password)
		m.emit(ctx, SessionEvent{Type: EventLogin, Email: email, Outcome: OutcomeFailure, Reason: "unknown email"})
		return nil, ErrInvalidCredentials
	}

	ok, err := m.verify(ctx, password, account.PasswordHash, account.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.emit(ctx, failureEvent(EventLogin, account, "wrong password"))
		return nil, ErrInvalidCredentials
	}

	if !account.IsActive {
		m.emit(ctx, failureEvent(EventLogin, account, "account inactive"))
		return nil, ErrAccountInactive
	}

	m.upgradeVerifier(ctx, account, password)

	tokens, err := m.startSession(ctx, account)
	if err != nil {
		return nil, err
	}

	m.emit(ctx, successEvent(EventLogin, account))
	m.logger.Info("login succeeded", "account_id", account.ID)
	return &Session{Account: account.Profile(), Tokens: tokens}, nil
}

// Refresh exchanges a live renewal token for a new pair. The presented
// token stops working as soon as this returns successfully.
func (m *SessionManager) Refresh(ctx context.Context, renewalToken string) (TokenPair, error) {
	claim, err := m.issuer.VerifyRenewal(renewalToken)
	if err != nil {
		m.emit(ctx, SessionEvent{Type: EventRefreshed, Outcome: OutcomeFailure, Reason: "invalid token"})
		return TokenPair{}, ErrInvalidCredentials
	}

	account, err := m.store.FindByID(ctx, claim.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			m.emit(ctx, SessionEvent{Type: EventRefreshed, AccountID: claim.AccountID, Outcome: OutcomeFailure, Reason: "unknown account"})
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("finding account: %w", err)
	}

	if !account.IsActive {
		m.emit(ctx, failureEvent(EventRefreshed, account, "account inactive"))
		return TokenPair{}, ErrAccountInactive
	}
	if !account.HasLiveSession() {
		m.emit(ctx, failureEvent(EventRefreshed, account, "no live session"))
		return TokenPair{}, ErrInvalidCredentials
	}

	ok, err := m.verify(ctx, TokenDigest(renewalToken), account.RefreshTokenHash, account.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		m.emit(ctx, failureEvent(EventRefreshed, account, "superseded token"))
		return TokenPair{}, ErrInvalidCredentials
	}

	// Claims come from the stored account so role and email changes
	// take effect at the next rotation.
	tokens, verifier, err := m.issue(ctx, account)
	if err != nil {
		return TokenPair{}, err
	}

	if err := m.store.SwapRenewalVerifier(ctx, account.ID, account.RefreshTokenHash, verifier); err != nil {
		if errors.Is(err, ErrStaleVerifier) {
			m.emit(ctx, failureEvent(EventRefreshed, account, "concurrent rotation"))
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("storing renewal verifier: %w", err)
	}

	m.emit(ctx, successEvent(EventRefreshed, account))
	return tokens, nil
}

// Logout ends the account's session. It is idempotent and succeeds for
// accounts that no longer exist.
func (m *SessionManager) Logout(ctx context.Context, accountID string) error {
	if err := m.store.SetRenewalVerifier(ctx, accountID, ""); err != nil && !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("clearing renewal verifier: %w", err)
	}
	m.emit(ctx, SessionEvent{Type: EventLogout, AccountID: accountID, Outcome: OutcomeSuccess})
	return nil
}

// ChangePassword replaces the password after checking the current one and
// ends the account's session. Outstanding access tokens stay valid until
// they expire.
func (m *SessionManager) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if err := ValidatePassword(next); err != nil {
		return err
	}

	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := m.verify(ctx, current, account.PasswordHash, account.ID)
	if err != nil {
		return err
	}
	if !ok {
		m.emit(ctx, failureEvent(EventPasswordChanged, account, "wrong current password"))
		return ErrCurrentPasswordMismatch
	}

	verifier, err := m.hasher.Hash(ctx, next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := m.store.SetPasswordVerifier(ctx, account.ID, verifier); err != nil {
		return fmt.Errorf("storing password verifier: %w", err)
	}

	m.emit(ctx, successEvent(EventPasswordChanged, account))
	m.logger.Info("password changed", "account_id", account.ID)
	return nil
}

// startSession issues a pair and makes its renewal token the live one.
func (m *SessionManager) startSession(ctx context.Context, account *Account) (TokenPair, error) {
	tokens, verifier, err := m.issue(ctx, account)
	if err != nil {
		return TokenPair{}, err
	}
	if err := m.store.SetRenewalVerifier(ctx, account.ID, verifier); err != nil {
		return TokenPair{}, fmt.Errorf("storing renewal verifier: %w", err)
	}
	return tokens, nil
}

// issue signs a pair for account and hashes the renewal token.
func (m *SessionManager) issue(ctx context.Context, account *Account) (TokenPair, string, error) {
	tokens, err := m.issuer.IssuePair(ClaimFor(account))
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("issuing tokens: %w", err)
	}
	verifier, err := m.hasher.Hash(ctx, TokenDigest(tokens.RefreshToken))
	if err != nil {
		return TokenPair{}, "", fmt.Errorf("hashing renewal token: %w", err)
	}
	return tokens, verifier, nil
}

// verify wraps Hasher.Verify, logging and masking malformed verifiers.
func (m *SessionManager) verify(ctx context.Context, secret, verifier, accountID string) (bool, error) {
	ok, err := m.hasher.Verify(ctx, secret, verifier)
	if err == nil {
		return ok, nil
	}
	if errors.Is(err, ErrMalformedVerifier) {
		m.logger.Error("stored verifier is malformed", "account_id", accountID, "error", err)
		return false, nil
	}
	return false, fmt.Errorf("verifying secret: %w", err)
}

// upgradeVerifier rehashes a correct password whose verifier uses a
// legacy algorithm or an outdated cost. Failure is logged, not returned.
func (m *SessionManager) upgradeVerifier(ctx context.Context, account *Account, password string) {
	if !m.hasher.NeedsRehash(account.PasswordHash) {
		return
	}
	verifier, err := m.hasher.Hash(ctx, password)
	if err != nil {
		m.logger.Warn("rehashing password failed", "account_id", account.ID, "error", err)
		return
	}
	// SetPasswordVerifier also clears the renewal verifier; startSession
	// writes a new one straight after.
	if err := m.store.SetPasswordVerifier(ctx, account.ID, verifier); err != nil {
		m.logger.Warn("storing rehashed password failed", "account_id", account.ID, "error", err)
		return
	}
	account.PasswordHash = verifier
	m.logger.Info("password verifier upgraded", "account_id", account.ID)
}

func (m *SessionManager) emit(ctx context.Context, ev SessionEvent) {
	ev.RemoteAddr = RemoteAddrFrom(ctx)
	if ev.At.IsZero() {
		ev.At = m.now().UTC()
	}
	m.events.Publish(ev)
}

func successEvent(t EventType, a *Account) SessionEvent {
	return SessionEvent{Type: t, AccountID: a.ID, Email: a.Email, Role: a.Role, Outcome: OutcomeSuccess}
}

func failureEvent(t EventType, a *Account, why string) SessionEvent {
	return SessionEvent{Type: t, AccountID: a.ID, Email: a.Email, Role: a.Role, Outcome: OutcomeFailure, Reason: why}
}

func reason(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid " + verr.Field
	case errors.Is(err, ErrEmailExists):
		return "email exists"
	default:
		return "internal error"
	}
}
