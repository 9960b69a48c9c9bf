package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/notifyhub/waitlist/internal/domain"
)

// Authenticator resolves a bearer token to an administrator.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Admin, error)
}

// RequireAdmin rejects requests without a valid "Authorization: Bearer"
// token and stores the resolved admin on the request context.
func RequireAdmin(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				deny(w, http.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}
			admin, err := a.Authenticate(r.Context(), token)
			switch {
			case errors.Is(err, domain.ErrAdminInactive):
				deny(w, http.StatusForbidden, err)
				return
			case errors.Is(err, domain.ErrUnauthorized):
				deny(w, http.StatusUnauthorized, domain.ErrUnauthorized)
				return
			case err != nil:
				deny(w, http.StatusInternalServerError, errors.New("internal server error"))
				return
			}
			ctx := context.WithValue(r.Context(), adminKey, admin)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminFromContext returns nil outside RequireAdmin.
func AdminFromContext(ctx context.Context) *domain.Admin {
	a, _ := ctx.Value(adminKey).(*domain.Admin)
	return a
}

// TokenFromContext returns the bearer token accepted by RequireAdmin.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
