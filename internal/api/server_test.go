package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{}

func (stubProvider) Status() Status {
	return Status{Interface: "eth0", FlowsActive: 3}
}

func TestHealthAndStatusReturnJSON(t *testing.T) {
	s := New("127.0.0.1:0", stubProvider{})

	for _, route := range []string{HealthRoute, StatusRoute} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, route, nil)
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	}
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	s := New("127.0.0.1:0", stubProvider{}, WithRateLimit(0, 1))

	get := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, HealthRoute, nil)
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, get())
	require.Equal(t, http.StatusTooManyRequests, get())
}

func TestRateLimitMiddlewareRecoversAfterRefill(t *testing.T) {
	s := New("127.0.0.1:0", stubProvider{}, WithRateLimit(1000, 1))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthRoute, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	time.Sleep(5 * time.Millisecond)

	rec2 := httptest.NewRecorder()
	s.router.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, HealthRoute, nil))
	require.Equal(t, http.StatusOK, rec2.Code)
}
