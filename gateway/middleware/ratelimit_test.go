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
		"ledger": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("ledger")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
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
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"ledger":     {RatePerSecond: 1, Burst: 1},
		"governance": {RatePerSecond: 1, Burst: 1},
	}, nil)
	ledger := limiter.Middleware("ledger")(okHandler())
	gov := limiter.Middleware("governance")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	res := httptest.NewRecorder()
	ledger.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected ledger request to succeed, got %d", res.Code)
	}

	govReq := httptest.NewRequest(http.MethodPost, "/v1/governance/pause", nil)
	govReq.Header.Set("X-API-Key", "tenant-A")
	govRes := httptest.NewRecorder()
	gov.ServeHTTP(govRes, govReq)
	if govRes.Code != http.StatusOK {
		t.Fatalf("expected first governance request to succeed, got %d", govRes.Code)
	}

	govRes = httptest.NewRecorder()
	gov.ServeHTTP(govRes, govReq)
	if govRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second governance request to hit limit, got %d", govRes.Code)
	}
}

func TestRateLimiterAppliesRouteTokens(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"ledger": {
			RatePerSecond: 5,
			Burst:         5,
			DefaultTokens: 1,
			Tokens:        map[string]int{"POST /v1/pools/0/deposits": 3},
		},
	}, nil)
	handler := limiter.Middleware("ledger")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/pools/0/deposits", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first deposit to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second deposit to exhaust the burst, got %d", res.Code)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	statusRes := httptest.NewRecorder()
	handler.ServeHTTP(statusRes, statusReq)
	if statusRes.Code != http.StatusOK {
		t.Fatalf("expected read to succeed with default token cost, got %d", statusRes.Code)
	}
}

func TestRateLimiterPrefersCallerOverIP(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"ledger": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("ledger")(okHandler())

	for _, b := range []byte{1, 2} {
		var caller [20]byte
		caller[19] = b
		req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
		req = req.WithContext(WithCaller(req.Context(), caller))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected caller %d to succeed, got %d", b, res.Code)
		}
	}
}

func TestRateLimiterForgetsIdleVisitors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(map[string]RateLimit{
		"ledger": {RatePerSecond: 0.001, Burst: 1},
	}, nil)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("ledger")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/pools", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	now = now.Add(visitorTTL + time.Second)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected idle visitor to be reset, got %d", res.Code)
	}
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked visitor, got %d", len(limiter.visitors))
	}
}
