package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

func callLimited(t *testing.T, e *echo.Echo, handler echo.HandlerFunc, method, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/poll", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	return rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	e := echo.New()
	handler := newRateLimiter(10, 3)(okHandler)

	for range 3 {
		rec := callLimited(t, e, handler, http.MethodPost, testRemoteAddr)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	e := echo.New()
	handler := newRateLimiter(0.01, 1)(okHandler)

	rec := callLimited(t, e, handler, http.MethodPost, testRemoteAddr)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = callLimited(t, e, handler, http.MethodPost, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp["error"])
}

func TestRateLimiterDifferentIPsAreIndependent(t *testing.T) {
	e := echo.New()
	handler := newRateLimiter(0.01, 1)(okHandler)

	assert.Equal(t, http.StatusOK, callLimited(t, e, handler, http.MethodPut, testRemoteAddr).Code)
	assert.Equal(t, http.StatusOK, callLimited(t, e, handler, http.MethodPut, "5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, callLimited(t, e, handler, http.MethodPut, testRemoteAddr).Code)
}

func TestRateLimiterSkipsReads(t *testing.T) {
	e := echo.New()
	handler := newRateLimiter(0.01, 1)(okHandler)

	for range 5 {
		assert.Equal(t, http.StatusOK, callLimited(t, e, handler, http.MethodGet, testRemoteAddr).Code)
	}
}
