package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"paperbroker/internal/httputil"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	adminIDKey
)

// UserID returns the authenticated user id set by WithAuth, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// AdminID returns the authenticated admin id set by WithAdminAuth, or "".
func AdminID(ctx context.Context) string {
	id, _ := ctx.Value(adminIDKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// Browser websocket clients cannot set headers; accept the token as a
	// query parameter there.
	return r.URL.Query().Get("token")
}

// WithAuth rejects requests without a valid user token.
func (s *Service) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.ParseToken(bearerToken(r))
		if err != nil || claims.Admin {
			httputil.WriteError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithAdminAuth rejects requests without a valid admin token.
func (s *Service) WithAdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.ParseToken(bearerToken(r))
		if err != nil || !claims.Admin {
			httputil.WriteError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), adminIDKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithInternalToken guards process-to-process endpoints (market data
// ingest) with a shared static token.
func WithInternalToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Internal-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			httputil.WriteError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
