package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/agent-commerce/internal/auth"
)

func newTestTokens() *auth.SessionTokens {
	return auth.NewSessionTokens("test-secret-key", 15*time.Minute)
}

func captureSession(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = SessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// ============================================
// Session Resolution Tests
// ============================================

func TestSession_BearerToken(t *testing.T) {
	tokens := newTestTokens()
	token, _, _, err := tokens.Issue("sess_token")
	require.NoError(t, err)

	var captured string
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SessionHeader, "sess_header")
	rec := httptest.NewRecorder()

	Session(tokens)(captureSession(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess_token", captured)
	assert.Equal(t, "sess_token", rec.Header().Get(SessionHeader))
}

func TestSession_Cookie(t *testing.T) {
	tokens := newTestTokens()
	token, _, _, err := tokens.Issue("sess_cookie")
	require.NoError(t, err)

	var captured string
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	rec := httptest.NewRecorder()

	Session(tokens)(captureSession(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, "sess_cookie", captured)
}

func TestSession_Header(t *testing.T) {
	var captured string
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(SessionHeader, "  sess_header ")
	rec := httptest.NewRecorder()

	Session(newTestTokens())(captureSession(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, "sess_header", captured)
	assert.Equal(t, "sess_header", rec.Header().Get(SessionHeader))
}

func TestSession_MintsFreshID(t *testing.T) {
	var first, second string
	handler := Session(newTestTokens())

	rec := httptest.NewRecorder()
	handler(captureSession(&first)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
	handler(captureSession(&second)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cart", nil))

	assert.True(t, strings.HasPrefix(first, "sess_"))
	assert.Equal(t, first, rec.Header().Get(SessionHeader))
	assert.NotEqual(t, first, second)
}

func TestSession_InvalidToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()

	Session(newTestTokens())(next).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_session_token")
}

func TestSession_ForeignSignature(t *testing.T) {
	other := auth.NewSessionTokens("another-secret", time.Minute)
	token, _, _, err := other.Issue("sess_x")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Session(newTestTokens())(http.NotFoundHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", ExtractToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", ExtractToken(req))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractToken(req))
}

// ============================================
// Logging Tests
// ============================================

func TestRecoverer_LogsPanic(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	Recoverer(zap.New(core))(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	RequestLogger(zap.New(core))(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/tea", fields["route"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
}

func TestRequestLogger_SessionFromInnerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var captured string
	handler := RequestLogger(zap.New(core))(Session(newTestTokens())(captureSession(&captured)))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(SessionHeader, "sess_abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "sess_abc", captured)
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sess_abc", entries[0].ContextMap()["session_id"])
}
