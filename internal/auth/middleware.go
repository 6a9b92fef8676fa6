package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type ownerKey struct{}

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	Parse(raw string) (string, error)
}

// WithOwner returns a copy of ctx carrying the authenticated user id.
func WithOwner(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, userID)
}

// OwnerFromContext returns the user id stored by Middleware.
func OwnerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a valid "Authorization: Bearer" token.
// onFail writes the rejection; nil selects a plain 401.
func Middleware(parser TokenParser, onFail func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				onFail(w, r)
				return
			}
			userID, err := parser.Parse(raw)
			if err != nil {
				slog.DebugContext(r.Context(), "Rejected bearer token", "error", err)
				onFail(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
