package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/eduAuth"
)

// AccessValidator is implemented by *eduAuth.Engine.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*eduAuth.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard] or [RequireAccess].
func ClaimsFromContext(ctx context.Context) (*eduAuth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*eduAuth.AccessClaims)
	return claims, ok
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, claims *eduAuth.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Guard rejects requests without a valid bearer access token.
func Guard(validator AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}
