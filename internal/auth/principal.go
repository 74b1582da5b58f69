package auth

import (
	"context"
	"strings"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps a token claim onto a Role. Anything unknown is an ordinary user.
func ParseRole(s string) Role {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "ROLE_")
	if s == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// Principal is the verified caller handed over by the identity layer.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) Authenticated() bool { return strings.TrimSpace(p.UserID) != "" }

// Elevated reports whether the role overrides ownership checks.
func (p Principal) Elevated() bool { return p.Role == RoleAdmin }

type contextKey string

const principalContextKey contextKey = "github.com/ariefcatur/go-orders-inventory/internal/auth/principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	if !ok || !p.Authenticated() {
		return Principal{}, false
	}
	return p, true
}
