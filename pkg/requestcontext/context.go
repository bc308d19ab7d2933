// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services read them, and
// neither side needs net/http for it.
package requestcontext

import (
	"context"

	"custos/pkg/domain"
)

type (
	callerKey    struct{}
	rolesKey     struct{}
	requestIDKey struct{}
)

// WithCaller records the authenticated caller address.
func WithCaller(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Caller returns the authenticated caller address, zero if unauthenticated.
func Caller(ctx context.Context) domain.Address {
	addr, _ := ctx.Value(callerKey{}).(domain.Address)
	return addr
}

// WithRoles records the caller's granted roles.
func WithRoles(ctx context.Context, roles []domain.Role) context.Context {
	return context.WithValue(ctx, rolesKey{}, roles)
}

// HasRole reports whether the caller holds the given role.
func HasRole(ctx context.Context, role domain.Role) bool {
	roles, _ := ctx.Value(rolesKey{}).([]domain.Role)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithRequestID records the request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request correlation ID, empty if unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
