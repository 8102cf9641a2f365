package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
)

// createUserRequest is the request body for POST /users.
type createUserRequest struct {
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      auth.Role `json:"role"`
}

// updateUserRequest is the request body for PATCH /users/{id}.
// Omitted fields are left unchanged.
type updateUserRequest struct {
	FirstName *string    `json:"firstName"`
	LastName  *string    `json:"lastName"`
	Role      *auth.Role `json:"role"`
	IsActive  *bool      `json:"isActive"`
}

// updateProfileRequest is the request body for PATCH /users/profile.
// Role and active status cannot be changed through it.
type updateProfileRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

// changePasswordRequest is the request body for POST /users/change-password.
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// handleListUsers returns every account's profile.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.accounts.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}
	if users == nil {
		users = []auth.Profile{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates an account with the requested role. No session
// is started for it.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !readJSON(w, r, &req) {
		return
	}

	profile, err := s.sessions.CreateAccount(r.Context(), auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

// handleGetUser returns one account's profile.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account.Profile())
}

// handleUpdateUser applies an administrative update. Deactivation or a
// role change also ends the account's session.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !readJSON(w, r, &req) {
		return
	}

	update := auth.AccountUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		IsActive:  req.IsActive,
	}
	if err := validateUpdate(update); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	s.applyUpdate(w, r, chi.URLParam(r, "id"), update)
}

// handleDeleteUser removes an account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	s.emit(r.Context(), auth.SessionEvent{
		Type:      auth.EventAccountDeleted,
		AccountID: id,
		Outcome:   auth.OutcomeSuccess,
	})
	s.logger.Info("account deleted", "account_id", id, "by", callerID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProfile returns the caller's own profile.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	account, err := s.accounts.FindByID(r.Context(), claim.AccountID)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account.Profile())
}

// handleUpdateProfile lets the caller change their own names.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req updateProfileRequest
	if !readJSON(w, r, &req) {
		return
	}

	update := auth.AccountUpdate{FirstName: req.FirstName, LastName: req.LastName}
	if err := validateUpdate(update); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	s.applyUpdate(w, r, claim.AccountID, update)
}

// handleChangePassword replaces the caller's password and ends their session.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claim, ok := claimFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req changePasswordRequest
	if !readJSON(w, r, &req) {
		return
	}

	if err := s.sessions.ChangePassword(r.Context(), claim.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) applyUpdate(w http.ResponseWriter, r *http.Request, id string, update auth.AccountUpdate) {
	account, err := s.accounts.Update(r.Context(), id, update)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	s.emit(r.Context(), auth.SessionEvent{
		Type:      auth.EventAccountUpdated,
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		Outcome:   auth.OutcomeSuccess,
	})
	writeJSON(w, http.StatusOK, account.Profile())
}

// emit publishes an event raised by the API itself, stamping it the way
// the session manager does.
func (s *Server) emit(ctx context.Context, ev auth.SessionEvent) {
	ev.RemoteAddr = auth.RemoteAddrFrom(ctx)
	ev.At = time.Now().UTC()
	s.events.Publish(ev)
}

func validateUpdate(u auth.AccountUpdate) error {
	if u.FirstName != nil {
		if err := auth.ValidateName("firstName", *u.FirstName); err != nil {
			return err
		}
	}
	if u.LastName != nil {
		if err := auth.ValidateName("lastName", *u.LastName); err != nil {
			return err
		}
	}
	if u.Role != nil && !auth.IsValidRole(*u.Role) {
		return &auth.ValidationError{Field: "role", Message: "must be user or admin"}
	}
	return nil
}

func callerID(ctx context.Context) string {
	claim, _ := claimFromContext(ctx)
	return claim.AccountID
}
