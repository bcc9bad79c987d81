package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/librarium-core/internal/audit"
	"github.com/nerrad567/librarium-core/internal/auth"
	"github.com/nerrad567/librarium-core/internal/infrastructure/influxdb"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// Auth outcome labels for metrics and analytics.
const (
	authActionLogin     = "login"
	authActionRegister  = "register"
	authActionResolve   = "resolve"
	authActionAuthorize = "authorize"
	outcomeSuccess      = "success"
)

// loginRequest is the request body for POST /auth/login and /auth/token.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the response body for a successful login.
type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	Role        auth.Role `json:"role"`
}

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// meResponse describes the caller as the server sees them right now.
type meResponse struct {
	Account        *auth.Account     `json:"account"`
	Permissions    []auth.Permission `json:"permissions"`
	TokenExpiresAt time.Time         `json:"token_expires_at"`
}

// handleLogin authenticates a user and returns a bearer token.
// It accepts JSON or an OAuth2-style form body with username and password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLoginRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	result, err := s.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.recordAuth(r.Context(), authActionLogin, err, nil)
		writeAuthError(w, err)
		return
	}

	principal := &auth.Principal{AccountID: result.Account.ID, Role: result.Account.Role}
	s.recordAuth(r.Context(), authActionLogin, nil, principal)
	s.audit.Record(audit.ActionLogin, audit.EntityAccount, result.Account.ID, result.Account.ID, nil)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		ExpiresIn:   int(result.ExpiresIn.Seconds()),
		Role:        result.Account.Role,
	})
}

// decodeLoginRequest reads credentials from a form or JSON body.
func decodeLoginRequest(r *http.Request) (loginRequest, error) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty type falls through to JSON
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
		return req, nil
	default:
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
}

// handleRegister creates a patron account. Staff accounts are created from
// the CLI or by promoting an existing account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	account, err := auth.Register(r.Context(), s.accounts, s.hasher, auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     auth.RolePatron,
	})
	if err != nil {
		s.recordAuth(r.Context(), authActionRegister, err, nil)
		s.writeAccountError(w, err, "failed to register account")
		return
	}

	s.recordAuth(r.Context(), authActionRegister, nil, &auth.Principal{AccountID: account.ID, Role: account.Role})
	s.logger.Info("account registered", "account_id", account.ID, "role", account.Role)
	s.audit.Record(audit.ActionRegister, audit.EntityAccount, account.ID, account.ID, map[string]any{
		"username": account.Username,
	})

	writeJSON(w, http.StatusCreated, account)
}

// handleAuthMe returns the resolved principal with its live role and permissions.
func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		Account:        p.Account,
		Permissions:    auth.PermissionsForRole(p.Role),
		TokenExpiresAt: p.ExpiresAt,
	})
}

// recordAuth counts an auth outcome in Prometheus and InfluxDB.
// Only the kind and the subject ID are recorded.
func (s *Server) recordAuth(ctx context.Context, action string, err error, p *auth.Principal) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = string(auth.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}

	var subject, role string
	if p != nil {
		subject, role = p.AccountID, string(p.Role)
	}

	s.metrics.AuthOutcome(action, outcome)
	if s.influx != nil {
		s.influx.WriteAuthEvent(influxdb.AuthEvent{
			Action:  action,
			Outcome: outcome,
			Subject: subject,
			Role:    role,
			Time:    s.now(),
		})
	}

	if err != nil && action != authActionLogin {
		s.logger.Debug("auth rejected",
			"action", action,
			"kind", outcome,
			"subject", subject,
			"request_id", ctx.Value(ctxKeyRequestID),
		)
	}
}

// writeAccountError maps account validation and store errors to responses.
func (s *Server) writeAccountError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrEmptyPassword),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		writeValidationError(w, err.Error())
	case errors.Is(err, auth.ErrUsernameExists), errors.Is(err, auth.ErrEmailExists):
		writeConflict(w, err.Error())
	case errors.Is(err, auth.ErrNoAccount):
		writeNotFound(w, "account not found")
	case errors.Is(err, auth.ErrNoFieldsToUpdate):
		writeBadRequest(w, err.Error())
	case errors.Is(err, auth.ErrSelfModification):
		writeForbidden(w, err.Error())
	case errors.Is(err, auth.ErrLastStaffAccount):
		writeConflict(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}

// ─── WebSocket tickets ─────────────────────────────────────────────

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	accountID string
	role      auth.Role
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue stores a fresh ticket for the account.
func (ts *ticketStore) issue(accountID string, role auth.Role, now time.Time) string {
	ticket := generateTicket()

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{
		accountID: accountID,
		role:      role,
		expiresAt: now.Add(ticketTTL),
	}
	ts.mu.Unlock()

	return ticket
}

// consume checks if a ticket is valid and removes it (single-use).
func (ts *ticketStore) consume(ticket string, now time.Time) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	delete(ts.tickets, ticket)

	return entry, now.Before(entry.expiresAt)
}

// clean removes expired tickets from the store.
func (ts *ticketStore) clean(now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for ticket, entry := range ts.tickets {
		if !now.Before(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

func (ts *ticketStore) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tickets)
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the bearer token in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	ticket := s.tickets.issue(p.AccountID, p.Role, s.now())

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop removes expired tickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.clean(s.now())
		}
	}
}
