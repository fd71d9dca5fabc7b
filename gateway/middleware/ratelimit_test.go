package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"escrow": {RatePerSecond: 1, Burst: 1},
	}, nil)
	frozen := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return frozen }

	handler := limiter.Middleware("escrow")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/escrow/0x01", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}

	frozen = frozen.Add(time.Second)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected refill after one second, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"escrow": {RatePerSecond: 1, Burst: 1},
		"stream": {RatePerSecond: 1, Burst: 1},
	}, nil)

	escrowHandler := limiter.Middleware("escrow")(okHandler())
	streamHandler := limiter.Middleware("stream")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/escrow/create", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	res := httptest.NewRecorder()
	escrowHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected escrow request to succeed, got %d", res.Code)
	}

	streamReq := httptest.NewRequest(http.MethodPost, "/stream/create", nil)
	streamReq.Header.Set("X-API-Key", "tenant-A")
	streamRes := httptest.NewRecorder()
	streamHandler.ServeHTTP(streamRes, streamReq)
	if streamRes.Code != http.StatusOK {
		t.Fatalf("expected first stream request to succeed, got %d", streamRes.Code)
	}

	streamRes = httptest.NewRecorder()
	streamHandler.ServeHTTP(streamRes, streamReq)
	if streamRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second stream request to hit limit, got %d", streamRes.Code)
	}
}

func TestRateLimiterAppliesRouteTokens(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"escrow": {
			RatePerSecond: 0.001,
			Burst:         5,
			DefaultTokens: 1,
			Tokens: map[string]int{
				"POST /escrow/create": 3,
			},
		},
	}, nil)

	handler := limiter.Middleware("escrow")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/escrow/create", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first create to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second create to exhaust burst, got %d", res.Code)
	}

	// Reads cost the default single token.
	getReq := httptest.NewRequest(http.MethodGet, "/escrow/0x01", nil)
	getRes := httptest.NewRecorder()
	handler.ServeHTTP(getRes, getReq)
	if getRes.Code != http.StatusOK {
		t.Fatalf("expected read to succeed with default token cost, got %d", getRes.Code)
	}
}

func TestRateLimiterPrefersAPIKeyOverIP(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"escrow": {RatePerSecond: 1, Burst: 1},
	}, nil)

	handler := limiter.Middleware("escrow")(okHandler())

	for _, tenant := range []string{"tenant-A", "tenant-B"} {
		req := httptest.NewRequest(http.MethodGet, "/escrow/0x01", nil)
		req.Header.Set("X-API-Key", tenant)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s request to succeed, got %d", tenant, res.Code)
		}
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"escrow": {RatePerSecond: 1, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.obtainLimiter("a", limiter.limits["escrow"], now)
	limiter.obtainLimiter("b", limiter.limits["escrow"], now.Add(10*time.Minute))
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected idle visitor to be evicted, have %d", len(limiter.visitors))
	}
}
