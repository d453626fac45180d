package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskcluster/artifactcore/authz"
)

func TestMiddleware_Authenticate_AttachesScopes(t *testing.T) {
	secret := []byte("shh")
	mw := NewMiddleware(secret, nil)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"scopes": []any{"queue:get-artifact:public/x"}})
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)

	var got []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = authz.ScopesFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	mw.Authenticate(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"queue:get-artifact:public/x"}, got)
}

func TestMiddleware_Authenticate_NoHeaderLeavesScopesEmpty(t *testing.T) {
	mw := NewMiddleware([]byte("shh"), nil)
	var got []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = authz.ScopesFromContext(r.Context())
	})
	mw.Authenticate(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, got)
}

func TestMiddleware_Authenticate_WrongSigningKeyIgnored(t *testing.T) {
	mw := NewMiddleware([]byte("shh"), nil)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"scopes": []any{"x"}})
	signed, err := tok.SignedString([]byte("different"))
	require.NoError(t, err)

	var got []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = authz.ScopesFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	mw.Authenticate(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, got)
}

func TestRequestID_SetsHeaderAndContext(t *testing.T) {
	var gotFromCtx string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFromCtx = RequestIDFromContext(r.Context()).String()
	})
	rec := httptest.NewRecorder()
	RequestID(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, rec.Header().Get("X-Request-Id"), gotFromCtx)
}

func TestMiddleware_RateLimit_BlocksOverBurst(t *testing.T) {
	mw := NewMiddleware(nil, nil)
	t.Cleanup(mw.Stop)
	limit := mw.RateLimit(1, 1)

	calls := 0
	next := limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec1 := httptest.NewRecorder()
	next.ServeHTTP(rec1, req)
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	next.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", realIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", realIP(req))
}

func TestRequestLogger_ObservesOpAndStatus(t *testing.T) {
	mw := NewMiddleware(nil, nil)
	var observedOp string
	var observedStatus int
	obs := observerFunc(func(op string, status int, _ time.Duration) {
		observedOp, observedStatus = op, status
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	mw.RequestLogger("createArtifact", obs, next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "createArtifact", observedOp)
	assert.Equal(t, http.StatusTeapot, observedStatus)
}

func TestTrace_PassesThrough5xxStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	rec := httptest.NewRecorder()
	Trace("getArtifact", next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type observerFunc func(op string, status int, duration time.Duration)

func (f observerFunc) ObserveRequest(op string, status int, duration time.Duration) { f(op, status, duration) }
