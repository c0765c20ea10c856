package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/lekimminhquan/Online-Vina-BE/internal/httputil"
)

type contextKey struct{}

var claimsContextKey contextKey

// ClaimsFromContext returns the verified access-token claims stored by
// Middleware for the current request.
func ClaimsFromContext(ctx context.Context) (AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(AccessClaims)
	return claims, ok
}

// Middleware gates a handler behind a verified bearer access token and
// injects the claims into the request context.
func Middleware(issuer *TokenIssuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := issuer.VerifyAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims)))
	})
}
