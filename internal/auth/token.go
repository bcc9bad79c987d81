package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token defaults.
const (
	DefaultTokenTTL  = time.Hour
	DefaultClockSkew = 60 * time.Second
	DefaultIssuer    = "librarium"
)

// signingMethod is the only algorithm accepted by Validate.
var signingMethod = jwt.SigningMethodHS256

// TokenConfig holds the token service's process-wide settings.
type TokenConfig struct {
	Secret    []byte
	TTL       time.Duration
	ClockSkew time.Duration
	Issuer    string
}

// Claims are the session token's payload.
// Subject carries the account ID; Role is a snapshot taken at issuance.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenService issues and validates HS256 session tokens.
// It is immutable after construction and safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	issuer string
}

// NewTokenService creates a TokenService. An empty secret is an error:
// the binary treats it as fatal at startup.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingTokenSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &TokenService{
		secret: secret,
		ttl:    cfg.TTL,
		skew:   cfg.ClockSkew,
		issuer: cfg.Issuer,
	}, nil
}

// TTL returns the access token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for accountID with iat = now and exp = now + TTL.
func (s *TokenService) Issue(accountID string, role Role, now time.Time) (string, *Claims, error) {
	if accountID == "" {
		return "", nil, fmt.Errorf("issuing token: %w", ErrNoAccount)
	}
	if !role.Valid() {
		return "", nil, fmt.Errorf("issuing token: %w", ErrInvalidRole)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// Validate checks a token against now, in this order:
//
//  1. structure and encoding    → KindMalformedToken
//  2. signature and algorithm   → KindInvalidSignature
//  3. issued-at beyond skew     → KindInvalidSignature
//  4. now >= expiry             → KindExpired
//
// Claims are returned only when every check passes.
func (s *TokenService) Validate(tokenString string, now time.Time) (*Claims, error) {
	if tokenString == "" {
		return nil, newError(KindMalformedToken, errors.New("empty token"))
	}

	claims := &Claims{}
	// Time-based claims are checked below against the caller's clock.
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	// Signature verified; claims are now trustworthy but must be complete.
	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, newError(KindMalformedToken, errors.New("missing required claims"))
	}
	if !claims.Role.Valid() {
		return nil, newError(KindMalformedToken, errors.New("invalid role claim"))
	}
	if claims.Issuer != s.issuer {
		return nil, newError(KindInvalidSignature, errors.New("issuer mismatch"))
	}

	if claims.IssuedAt.After(now.Add(s.skew)) {
		return nil, newError(KindInvalidSignature, errors.New("token not yet valid"))
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, newError(KindExpired, nil)
	}

	return claims, nil
}

func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return s.secret, nil
}

// classifyParseError maps jwt parse failures onto token kinds.
func classifyParseError(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(KindMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(KindInvalidSignature, err)
	default:
		// Claims JSON that decodes badly surfaces here as malformed.
		return newError(KindMalformedToken, err)
	}
}
