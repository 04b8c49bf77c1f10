package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/kashyapanjali/periskope/internal/auth"
	"github.com/kashyapanjali/periskope/internal/domain"
)

type contextKey string

const callerKey contextKey = "caller"

// Caller is the authenticated identity behind a request.
type Caller struct {
	Identity *domain.Identity
	Claims   *auth.Claims
}

func callerFrom(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey).(*Caller)
	return c
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter browsers must use for websockets.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// RequireAuth rejects requests without a valid access token.
func RequireAuth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing access token")
				return
			}
			ident, claims, err := svc.Authenticate(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), callerKey, &Caller{Identity: ident, Claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
