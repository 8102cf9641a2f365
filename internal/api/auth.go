package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
)

// registerRequest is the request body for POST /auth/register.
// A role field, if sent, is ignored.
type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// sessionResponse is returned by register and login. Account and User carry
// the same projection; older clients read "user".
type sessionResponse struct {
	Account      auth.Profile `json:"account"`
	User         auth.Profile `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func newSessionResponse(sess *auth.Session) sessionResponse {
	return sessionResponse{
		Account:      sess.Account,
		User:         sess.Account,
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	}
}

// handleRegister creates a user account and starts its session.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}

	sess, err := s.sessions.Register(r.Context(), auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handleLogin exchanges an email and password for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "email and password are required")
		return
	}

	sess, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handleRefresh rotates the caller's renewal token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	tokens, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// handleLogout ends the caller's session. The access token presented stays
// valid until it expires.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	if err := s.sessions.Logout(r.Context(), claim.AccountID); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the caller's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.handleGetProfile(w, r)
}
