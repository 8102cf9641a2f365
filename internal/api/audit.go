package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-auth/internal/audit"
	"github.com/nerrad567/gray-logic-auth/internal/auth"
)

// handleListAuditLogs returns paginated session audit entries with optional filters.
//
// Query parameters:
//   - action: filter by event type (login, refreshed, logout, ...)
//   - account_id: filter by account
//   - outcome: success or failure
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	filter, msg := parseAuditFilter(r)
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseAuditFilter reads the list query. A non-empty message means the
// query was rejected.
func parseAuditFilter(r *http.Request) (audit.Filter, string) {
	q := r.URL.Query()
	f := audit.Filter{
		Action:    q.Get("action"),
		AccountID: q.Get("account_id"),
		Outcome:   q.Get("outcome"),
	}

	if f.Action != "" && !auth.IsValidEventType(auth.EventType(f.Action)) {
		return f, "unknown action: " + f.Action
	}
	switch f.Outcome {
	case "", auth.OutcomeSuccess, auth.OutcomeFailure:
	default:
		return f, "outcome must be success or failure"
	}

	var err error
	if f.Limit, err = nonNegative(q.Get("limit")); err != nil {
		return f, "limit must be a non-negative integer"
	}
	if f.Offset, err = nonNegative(q.Get("offset")); err != nil {
		return f, "offset must be a non-negative integer"
	}
	return f, ""
}

func nonNegative(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
