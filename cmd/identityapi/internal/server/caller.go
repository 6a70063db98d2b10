package server

import (
	"context"
	"net/http"
	"strings"
)

// UserIDHeader carries the caller's user ID as established by the gateway
// in front of this service.
const UserIDHeader = "X-User-ID"

type callerKey struct{}

// RequireCaller rejects requests without a caller identity and stores it in
// the request context.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing " + UserIDHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), userID)))
	})
}

// WithCaller returns a context carrying userID.
func WithCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// CallerID returns the caller stored by RequireCaller.
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}
