package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"orgcore.org/internal/authz"
	"orgcore.org/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := authz.ParseToken(token)
		if err != nil {
			if errors.Is(err, authz.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		// A valid signature is not enough: the session must still exist in
		// the cache, so dropping the entry revokes the token before expiry.
		if a.sessions != nil && claims.SessionID != "" {
			if _, err := a.sessions.Get(r.Context(), claims.SessionID); err != nil {
				if errors.Is(err, session.ErrNotFound) {
					writeError(w, r, http.StatusUnauthorized, "session expired or revoked")
					return
				}
				writeError(w, r, http.StatusInternalServerError, "session lookup failed")
				return
			}
		}

		ctx := authz.ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission enforces the permission on the request's claims. Blocked
// claims hold no permissions, so a blocked session is denied here uniformly.
func requirePermission(ctx context.Context, perm string) error {
	claims, ok := authz.ClaimsFromContext(ctx)
	if !ok {
		return errors.New("not authenticated")
	}
	if !claims.HasPermission(perm) {
		return errors.New("permission denied: " + perm)
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
