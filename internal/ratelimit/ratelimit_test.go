package ratelimit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"eventstaff/internal/ratelimit"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketPerKey(t *testing.T) {
	tb := ratelimit.NewTokenBucket(1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := tb.Check(ctx, "a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := tb.Check(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.GreaterOrEqual(t, d.RetryAfterSeconds, 1)

	d, err = tb.Check(ctx, "b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

type stubGate struct {
	d   ratelimit.Decision
	err error
}

func (g stubGate) Check(ctx context.Context, key string) (ratelimit.Decision, error) {
	return g.d, g.err
}

func serve(gate ratelimit.Gate) *httptest.ResponseRecorder {
	log, _ := test.NewNullLogger()
	h := ratelimit.Middleware(gate, log, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/ping", nil))
	return w
}

func TestMiddleware(t *testing.T) {
	w := serve(stubGate{d: ratelimit.Decision{Allowed: true}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(stubGate{d: ratelimit.Decision{Allowed: false, RetryAfterSeconds: 7}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "7", w.Header().Get("Retry-After"))

	w = serve(stubGate{err: errors.New("limiter down")})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ratelimit.ClientIP(req))
	req.RemoteAddr = "10.0.0.2"
	assert.Equal(t, "10.0.0.2", ratelimit.ClientIP(req))
}
