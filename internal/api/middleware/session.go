package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/agent-commerce/internal/auth"
)

const (
	SessionHeader = "X-Session-ID"
	sessionCookie = "session_token"
)

type contextKey string

const sessionContextKey contextKey = "session_id"

// respondError writes the same error body the API handlers use
func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"type":    "invalid_request",
		"code":    code,
		"message": message,
	})
}

// ExtractToken extracts the session token from the cookie or Authorization header
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// Session resolves the caller's shopping session: a session token first,
// then the X-Session-ID header, otherwise a freshly minted id. The resolved
// id is echoed back in X-Session-ID. A token that is present but invalid is
// rejected with 401.
func Session(tokens *auth.SessionTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if token := ExtractToken(r); token != "" && tokens != nil {
				id, err := tokens.Validate(token)
				if err != nil {
					respondError(w, http.StatusUnauthorized, "invalid_session_token", err.Error())
					return
				}
				sessionID = id
			}
			if sessionID == "" {
				sessionID = strings.TrimSpace(r.Header.Get(SessionHeader))
			}
			if sessionID == "" {
				sessionID = auth.NewSessionID()
			}

			w.Header().Set(SessionHeader, sessionID)
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionContextKey, sessionID)
}

// SessionID returns the session resolved by Session, or "" outside it.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionContextKey).(string)
	return id
}
