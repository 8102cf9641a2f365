// Package auth implements the credential lifecycle for Gray Logic Auth.
//
// It is made of five cooperating parts:
//   - Hasher: bcrypt verifiers on a bounded worker pool, with read support
//     for legacy Argon2id PHC verifiers
//   - TokenIssuer: HS256 access and renewal tokens signed with separate secrets
//   - AccountRepository: SQLite persistence of accounts and their verifiers
//   - SessionManager: register, login, refresh with rotation, logout and
//     password change
//   - Gate: bearer-token authentication and role-set authorisation
//
// Each account has at most one live renewal token. Its verifier is stored on
// the account row; logging in again, refreshing, logging out, changing the
// password, deactivating the account or changing its role all replace or
// clear it. Access tokens are never checked against storage and stay valid
// until they expire.
package auth
