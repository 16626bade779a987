package auth

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   uuid.UUID
	Username string
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached by Authenticate, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserID returns a pointer to the caller's id, or nil when anonymous.
func UserID(ctx context.Context) *uuid.UUID {
	p, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	id := p.UserID
	return &id
}
