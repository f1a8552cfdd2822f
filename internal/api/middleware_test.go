package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-echo/internal/config"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/internal/testutil"
	"github.com/npezzotti/go-echo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &EchoApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &EchoApp{}

	// simple handler that does not panic
	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_cleanupAuth(t *testing.T) {
	signingKey := []byte("test-signing-key")
	app := &EchoApp{
		log:        testutil.TestLogger(t),
		signingKey: signingKey,
	}

	buf := &bytes.Buffer{}
	app.log.SetOutput(buf)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	validToken, err := NewCleanupToken(signingKey, time.Minute)
	require.NoError(t, err)

	otherKeyToken, err := NewCleanupToken([]byte("other-key"), time.Minute)
	require.NoError(t, err)

	tcases := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid token", header: "Bearer " + validToken, status: http.StatusOK},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "not a bearer token", header: "Basic " + validToken, status: http.StatusUnauthorized},
		{name: "wrong signing key", header: "Bearer " + otherKeyToken, status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer invalid-token", status: http.StatusUnauthorized},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/cleanup", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			app.cleanupAuth(okHandler).ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			}
		})
	}

	assert.Contains(t, buf.String(), "failed to verify cleanup token")
}

func Test_cleanupAuth_NoSigningKey(t *testing.T) {
	app := &EchoApp{log: testutil.TestLogger(t)}

	called := false
	handler := app.cleanupAuth(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/cleanup", nil))
	assert.True(t, called, "cleanup is open without a signing key")
}

func TestCleanupRoute_RequiresToken(t *testing.T) {
	signingKey := []byte("route-key")
	app := newTestApp(t, &config.Config{ServerAddr: ":0", SigningKey: signingKey})

	rr := app.do(t, http.MethodPost, "/api/cleanup", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// unsupported methods are refused by the router before the token check
	rr = app.do(t, http.MethodDelete, "/api/cleanup", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "someone-else",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	wrongSubject, err := token.SignedString(signingKey)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/cleanup", nil)
	req.Header.Set("Authorization", "Bearer "+wrongSubject)
	rr = httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	valid, err := NewCleanupToken(signingKey, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/cleanup", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	rr = httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRateLimit(t *testing.T) {
	mockStats := &stats.MockStatsUpdater{}
	defer mockStats.AssertExpectations(t)
	mockStats.On("Incr", stats.RateLimited).Once()

	app := newTestApp(t, &config.Config{ServerAddr: ":0", RateLimit: 0.001, RateBurst: 2})
	app.stats = mockStats

	body := types.CreateRoomRequest{Code: "LIMITED"}
	assert.NotEqual(t, http.StatusTooManyRequests, app.do(t, http.MethodPost, "/api/rooms", body).Code)
	assert.NotEqual(t, http.StatusTooManyRequests, app.do(t, http.MethodPost, "/api/rooms", body).Code)

	rr := app.do(t, http.MethodPost, "/api/rooms", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, decode[ApiError](t, rr).StatusCode)

	// buckets are per route and reads are never limited
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/api/rooms?code=LIMITED", nil).Code)
	assert.NotEqual(t, http.StatusTooManyRequests, app.do(t, http.MethodPost, "/api/join", types.JoinRoomRequest{RoomCode: "LIMITED", UserId: "u1", Username: "a"}).Code)
}
