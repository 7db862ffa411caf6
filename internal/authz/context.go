package authz

import "context"

type claimsContextKey struct{}

// ContextWithClaims attaches the immutable session claims to the context.
// Every call path receives the claims explicitly this way; there is no
// ambient session-global state, which also makes the blocked branch
// impossible to skip unnoticed.
func ContextWithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, &c)
}

// ClaimsFromContext extracts the session claims from the context.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	if ctx == nil {
		return Claims{}, false
	}
	v, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || v == nil {
		return Claims{}, false
	}
	return *v, true
}
