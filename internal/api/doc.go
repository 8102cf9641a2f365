// Package api implements the HTTP REST API and WebSocket server for Gray Logic Auth.
//
// This package provides:
//   - Auth endpoints: register, login, refresh, logout, me
//   - Self-service profile and password change for any authenticated role
//   - Administrative account management and the session audit log
//   - A WebSocket stream of session events for administrators
//   - Middleware stack (request ID, logging, recovery, IP allow-list, CORS)
//
// # Security
//
// Protected routes require an "Authorization: Bearer <accessToken>" header.
// The auth.Gate verifies the token and checks the caller's role against the
// route's required set; the account store is not consulted, so an access
// token stays usable until it expires even if the account is deactivated.
//
// WebSocket connections may use a single-use ticket from
// POST /api/v1/events/ws-ticket so the token never appears in a URL.
//
// Errors are returned as {"status", "code", "message"}.
package api
