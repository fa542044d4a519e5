package shared

import "context"

// Principal identifies the pre-authenticated caller. Authentication and
// permission checks happen upstream; the core only consumes the resolved
// identity and tenant scope.
type Principal struct {
	UserID   int64
	TenantID int64
}

type principalContextKey struct{}

// ContextWithPrincipal stores the caller principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the caller principal, or nil when the
// request carried no identity.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
