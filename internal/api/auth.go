package api

import (
	"context"
	"net/http"
	"strings"
)

type userKey struct{}

// identity trusts the user id injected by the upstream auth proxy. When the
// header is missing the configured default user is used, if any.
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(s.cfg.UserHeader))
		if user == "" {
			user = s.cfg.DefaultUser
		}
		if user == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}
