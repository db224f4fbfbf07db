package auth

import (
	"context"
	"strings"
)

// Identity is the authenticated caller attached to a request context. Roles are
// loaded per request, so role changes apply without reissuing tokens.
type Identity struct {
	UserID string
	Email  string
	Roles  []string
}

// HasAnyRole reports whether the identity holds at least one of roles.
func (i Identity) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		want = strings.TrimSpace(strings.ToLower(want))
		for _, have := range i.Roles {
			if strings.ToLower(have) == want {
				return true
			}
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil || v.UserID == "" {
		return Identity{}, false
	}
	return *v, true
}
