package auth

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// maxEmailLength follows RFC 5321's path limit.
const maxEmailLength = 254

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// IsValidEmail checks that email is a bare address ("a@b.c"), not a
// display-name form.
func IsValidEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at:], ".")
}

// Role is an account's authorisation tier.
type Role string

const (
	// RolePatron is a library member: browse the catalog, manage own account.
	RolePatron Role = "patron"

	// RoleStaff can do anything a patron can, plus catalog mutation,
	// account management and audit review.
	RoleStaff Role = "staff"
)

// ValidRoles is the closed set of roles, lowest first.
var ValidRoles = []Role{RolePatron, RoleStaff}

// ParseRole converts s to a Role, rejecting anything outside ValidRoles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// rank orders roles in the hierarchy; 0 means unknown.
func (r Role) rank() int {
	switch r {
	case RolePatron:
		return 1
	case RoleStaff:
		return 2
	default:
		return 0
	}
}

// Satisfies reports whether r meets the required role's position in the
// hierarchy. Unknown roles never satisfy anything and are never satisfied.
func (r Role) Satisfies(required Role) bool {
	have, need := r.rank(), required.rank()
	return have > 0 && need > 0 && have >= need
}

// Account is a persisted user record.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is the request-scoped identity used for authorization.
// It is rebuilt on every request and never cached.
type Principal struct {
	AccountID string
	// Role is the live role read from the account store.
	Role Role
	// TokenRole is the role captured in the token at issuance. Informational only.
	TokenRole Role
	Account   *Account
	ExpiresAt time.Time
}

// Account store and input validation errors.
var (
	ErrNoAccount          = errors.New("account does not exist")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidUsername    = errors.New("username must be 1-64 characters: letters, digits, dot, hyphen, underscore")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidRole        = errors.New("role must be staff or patron")
	ErrEmptyPassword      = errors.New("password is empty")
	ErrPasswordTooLong    = errors.New("password exceeds maximum length")
	ErrPasswordTooShort   = errors.New("password is shorter than the minimum length")
	ErrSelfModification   = errors.New("cannot modify own account in this way")
	ErrLastStaffAccount   = errors.New("cannot remove the last active staff account")
	ErrPasswordMismatch   = errors.New("current password is incorrect")
	ErrNoFieldsToUpdate   = errors.New("no fields to update")
	ErrMissingTokenSecret = errors.New("token signing secret is required")
)
