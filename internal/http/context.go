package http

import (
	"context"

	"github.com/example/sessionboard/internal/application"
)

type contextKey string

const principalContextKey contextKey = "principal"

// ContextWithPrincipal returns a derived context containing the resolved principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the principal resolved for the request. The
// zero principal is anonymous.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

func principalOf(ctx context.Context) application.Principal {
	principal, _ := PrincipalFromContext(ctx)
	return principal
}
