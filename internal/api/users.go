package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/librarium-core/internal/audit"
	"github.com/nerrad567/librarium-core/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type updateMeRequest struct {
	Email *string `json:"email,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type updateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ─── Self-service ──────────────────────────────────────────────────

// handleGetMe returns the caller's own account.
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalFromContext(r.Context()).Account)
}

// handleUpdateMe lets the caller change their email. Role and active flag
// are staff-managed and cannot be set here.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	account, err := s.accounts.Update(r.Context(), p.AccountID, auth.AccountUpdate{Email: req.Email})
	if err != nil {
		s.writeAccountError(w, err, "failed to update account")
		return
	}

	s.audit.Record(audit.ActionUpdate, audit.EntityAccount, account.ID, p.AccountID, map[string]any{
		"fields": []string{"email"},
	})
	writeJSON(w, http.StatusOK, account)
}

// handleDeleteMe hard-deletes the caller's account. Tokens already issued
// for it stop resolving on the next request.
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	if _, err := s.staff.Delete(r.Context(), p.AccountID); err != nil {
		s.writeAccountError(w, err, "failed to delete account")
		return
	}

	s.logger.Info("account deleted", "account_id", p.AccountID, "by", "self")
	s.audit.Record(audit.ActionDelete, audit.EntityAccount, p.AccountID, p.AccountID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword replaces the caller's password after checking the
// current one.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := auth.ChangePassword(r.Context(), s.accounts, s.hasher, p.Account, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, auth.ErrPasswordMismatch) {
		writeBadRequest(w, err.Error())
		return
	}
	if err != nil {
		s.writeAccountError(w, err, "failed to change password")
		return
	}

	s.logger.Info("password changed", "account_id", p.AccountID)
	s.audit.Record(audit.ActionPassword, audit.EntityAccount, p.AccountID, p.AccountID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Staff account management ──────────────────────────────────────

// handleListUsers returns accounts, optionally filtered by role.
//
// Query parameters:
//   - role: staff or patron
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var opts auth.ListOptions
	if v := q.Get("role"); v != "" {
		role, err := auth.ParseRole(v)
		if err != nil {
			writeValidationError(w, err.Error())
			return
		}
		opts.Role = role
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))   //nolint:errcheck // invalid means default
	opts.Offset, _ = strconv.Atoi(q.Get("offset")) //nolint:errcheck // invalid means zero

	users, err := s.accounts.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleGetUser returns a single account by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAccountError(w, err, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleUpdateUser changes another account's email, role or active flag.
// Staff cannot change their own role or deactivate themselves, and the
// last active staff account cannot be demoted or deactivated.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	upd := auth.AccountUpdate{Email: req.Email, IsActive: req.IsActive}
	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil {
			writeValidationError(w, err.Error())
			return
		}
		upd.Role = &role
	}

	if id == p.AccountID {
		demotes := upd.Role != nil && *upd.Role != p.Account.Role
		deactivates := upd.IsActive != nil && !*upd.IsActive
		if demotes || deactivates {
			s.writeAccountError(w, auth.ErrSelfModification, "failed to update user")
			return
		}
	}

	account, err := s.staff.Update(r.Context(), id, upd)
	if err != nil {
		s.writeAccountError(w, err, "failed to update user")
		return
	}

	details := map[string]any{}
	if upd.Email != nil {
		details["email_changed"] = true
	}
	if upd.Role != nil {
		details["role"] = account.Role
	}
	if upd.IsActive != nil {
		details["is_active"] = account.IsActive
	}
	s.logger.Info("account updated", "account_id", account.ID, "by", p.AccountID)
	s.audit.Record(audit.ActionUpdate, audit.EntityAccount, account.ID, p.AccountID, details)

	writeJSON(w, http.StatusOK, account)
}

// handleDeleteUser removes another account. Staff delete themselves through
// DELETE /users/me.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principalFromContext(r.Context())

	if id == p.AccountID {
		s.writeAccountError(w, auth.ErrSelfModification, "failed to delete user")
		return
	}

	target, err := s.staff.Delete(r.Context(), id)
	if err != nil {
		s.writeAccountError(w, err, "failed to delete user")
		return
	}

	s.logger.Info("account deleted", "account_id", id, "by", p.AccountID)
	s.audit.Record(audit.ActionDelete, audit.EntityAccount, id, p.AccountID, map[string]any{
		"username": target.Username,
	})
	w.WriteHeader(http.StatusNoContent)
}
