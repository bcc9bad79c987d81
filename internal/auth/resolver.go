package auth

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nerrad567/librarium-core/internal/infrastructure/telemetry"
)

// AccountStore is the lookup capability the auth core needs from
// persistence. Implementations return ErrNoAccount when no record matches;
// any other error is treated as the store being unavailable.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
}

// TokenValidator validates a session token at a point in time.
type TokenValidator interface {
	Validate(token string, now time.Time) (*Claims, error)
}

// Resolver turns a bearer token into a Principal.
type Resolver struct {
	tokens TokenValidator
	store  AccountStore
	tracer trace.Tracer
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverTracer records a span per resolution.
func WithResolverTracer(t trace.Tracer) ResolverOption {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(tokens TokenValidator, store AccountStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tokens: tokens,
		store:  store,
		tracer: noop.NewTracerProvider().Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates token at now and loads the subject's account.
//
// The account is read on every call. A missing or deactivated account fails
// with KindAccountNotFound even when the token itself is valid, and the
// Principal carries the account's current role rather than the role in the
// token. Store failures, including context cancellation, fail with
// KindStoreUnavailable and never with KindAccountNotFound.
func (r *Resolver) Resolve(ctx context.Context, token string, now time.Time) (p *Principal, err error) {
	ctx, span := telemetry.StartSpan(ctx, r.tracer, "auth.Resolve")
	defer func() {
		if p != nil {
			span.SetAttributes(attribute.String("auth.subject", p.AccountID))
		}
		span.SetAttributes(attribute.String("auth.outcome", outcomeOf(err)))
		telemetry.EndSpan(span, err)
	}()

	claims, err := r.tokens.Validate(token, now)
	if err != nil {
		if KindOf(err) == "" {
			return nil, newError(KindMalformedToken, err)
		}
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(KindStoreUnavailable, err)
	}

	account, err := r.store.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrNoAccount):
		return nil, newError(KindAccountNotFound, err)
	case err != nil:
		return nil, newError(KindStoreUnavailable, err)
	case account == nil:
		return nil, newError(KindAccountNotFound, ErrNoAccount)
	case !account.IsActive:
		return nil, newError(KindAccountNotFound, errors.New("account is inactive"))
	case !account.Role.Valid():
		return nil, newError(KindAccountNotFound, ErrInvalidRole)
	}

	return &Principal{
		AccountID: account.ID,
		Role:      account.Role,
		TokenRole: claims.Role,
		Account:   account,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
