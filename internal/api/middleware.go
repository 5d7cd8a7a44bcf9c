package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gatherly/gatherly/internal/database"
)

type contextKey string

const (
	userContextKey       contextKey = "user"
	credentialContextKey contextKey = "credential"
)

func WithUser(ctx context.Context, user database.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFrom(ctx context.Context) (database.User, bool) {
	user, ok := ctx.Value(userContextKey).(database.User)
	return user, ok
}

func withCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialContextKey, credential)
}

func credentialFrom(ctx context.Context) (string, bool) {
	credential, ok := ctx.Value(credentialContextKey).(string)
	return credential, ok
}

func (s *App) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// extractCredential reads the bearer credential from the Authorization
// header, falling back to the token query parameter for websocket upgrades
// where browsers cannot set headers.
func extractCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}

	return r.URL.Query().Get("token")
}

// authMiddleware runs the full access gate. Every failure maps to the same
// generic 401 so the caller cannot distinguish a revoked credential from a
// malformed one.
func (s *App) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential := extractCredential(r)

		user, err := s.authn.Authenticate(r.Context(), credential)
		if err != nil {
			s.log.Printf("authentication failed: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = withCredential(ctx, credential)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
