package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/config"
	"github.com/causalmem/causalmem/internal/engine"
	"github.com/causalmem/causalmem/internal/types"
)

// fakeMemory is a scriptable Memory implementation.
type fakeMemory struct {
	addEventFn func(ctx context.Context, text string) (int64, error)
	queryFn    func(ctx context.Context, text string) (string, error)
	statsFn    func(ctx context.Context) (*types.Stats, error)
	pingErr    error
}

func (f *fakeMemory) AddEvent(ctx context.Context, text string) (int64, error) {
	if f.addEventFn == nil {
		return 1, nil
	}
	return f.addEventFn(ctx, text)
}

func (f *fakeMemory) Query(ctx context.Context, text string) (string, error) {
	if f.queryFn == nil {
		return engine.NoContextFound, nil
	}
	return f.queryFn(ctx, text)
}

func (f *fakeMemory) Stats(ctx context.Context) (*types.Stats, error) {
	if f.statsFn == nil {
		return &types.Stats{}, nil
	}
	return f.statsFn(ctx)
}

func (f *fakeMemory) Ping(context.Context) error { return f.pingErr }

func testConfig() *config.Config {
	return &config.Config{
		CORSOrigins:           []string{"*"},
		RateLimitEventsPerMin: 60,
		RateLimitQueryPerMin:  120,
	}
}

func newTestServer(t *testing.T, mem *fakeMemory, cfg *config.Config) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	return New(mem, cfg, zap.NewNop()).Routes()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return env
}

func TestRootBanner(t *testing.T) {
	h := newTestServer(t, &fakeMemory{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding banner: %v", err)
	}
	if body["name"] != "causalmem" {
		t.Errorf("name = %v", body["name"])
	}
	if _, ok := body["endpoints"].(map[string]any); !ok {
		t.Error("banner missing endpoint map")
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeMemory{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if body.Status != "healthy" || !body.DatabaseConnected {
		t.Errorf("health = %+v", body)
	}
}

func TestHealthDegraded(t *testing.T) {
	h := newTestServer(t, &fakeMemory{pingErr: fmt.Errorf("connection closed")}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if body.Status != "unhealthy" || body.DatabaseConnected {
		t.Errorf("health = %+v", body)
	}
}

func TestAddEvent(t *testing.T) {
	mem := &fakeMemory{
		addEventFn: func(_ context.Context, text string) (int64, error) {
			if text != "the cache was flushed" {
				t.Errorf("effect_text = %q", text)
			}
			return 42, nil
		},
	}
	h := newTestServer(t, mem, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/events",
		strings.NewReader(`{"effect_text":"the cache was flushed"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body addEventResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.EventID != 42 || !body.Success {
		t.Errorf("response = %+v", body)
	}
}

func TestAddEventValidationEnvelope(t *testing.T) {
	mem := &fakeMemory{
		addEventFn: func(_ context.Context, text string) (int64, error) {
			return 0, types.NewValidation("whitespace_text", "effect_text must not be whitespace only")
		},
	}
	h := newTestServer(t, mem, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/events",
		strings.NewReader(`{"effect_text":"   "}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error.Type != "ValidationError" || env.Error.Code != "whitespace_text" {
		t.Errorf("envelope error = %+v", env.Error)
	}
	if env.RequestID == "" || env.Timestamp == "" {
		t.Errorf("envelope missing correlation fields: %+v", env)
	}
	if rec.Header().Get("X-Request-ID") != env.RequestID {
		t.Error("request id header does not match envelope")
	}
}

func TestAddEventMalformedJSON(t *testing.T) {
	h := newTestServer(t, &fakeMemory{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/events", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error.Code != "invalid_json" {
		t.Errorf("code = %s", env.Error.Code)
	}
}

func TestAddEventEmbedderDown(t *testing.T) {
	mem := &fakeMemory{
		addEventFn: func(context.Context, string) (int64, error) {
			return 0, types.NewUnavailable("embedding service unreachable", nil)
		},
	}
	h := newTestServer(t, mem, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/events",
		strings.NewReader(`{"effect_text":"x"}`)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error.Type != "ServiceUnavailable" {
		t.Errorf("type = %s", env.Error.Type)
	}
}

func TestQuery(t *testing.T) {
	mem := &fakeMemory{
		queryFn: func(_ context.Context, q string) (string, error) {
			return "Initially, the server started.", nil
		},
	}
	h := newTestServer(t, mem, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/query",
		strings.NewReader(`{"query":"server"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body queryResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Narrative != "Initially, the server started." || !body.Success {
		t.Errorf("response = %+v", body)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "sekrit"
	h := newTestServer(t, &fakeMemory{}, cfg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/query",
		strings.NewReader(`{"query":"x"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d, want 401", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error.Type != "Unauthorized" {
		t.Errorf("type = %s", env.Error.Type)
	}

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"x"}`))
	req.Header.Set("x-api-key", "sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with key = %d, want 200", rec.Code)
	}

	// Read-only endpoints stay open.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health with auth enabled = %d, want 200", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEventsPerMin = 2
	h := newTestServer(t, &fakeMemory{}, cfg)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/events",
			strings.NewReader(`{"effect_text":"x"}`)))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/events",
		strings.NewReader(`{"effect_text":"x"}`)))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error.Type != "RateLimited" {
		t.Errorf("type = %s", env.Error.Type)
	}

	// The query limiter is independent of the events limiter.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/query",
		strings.NewReader(`{"query":"x"}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("query after events limit = %d, want 200", rec.Code)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	h := newTestServer(t, &fakeMemory{}, nil) // default config allows "*"
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q with wildcard origins, want unset", got)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("wildcard origins should still be allowed")
	}
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://app.example.com"}
	h := newTestServer(t, &fakeMemory{}, cfg)
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
}

func TestIPLimiterEvictsOldestWhenFull(t *testing.T) {
	l := newIPLimiter(1)

	// Exhaust the first IP's bucket.
	if !l.allow("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("second request should be limited")
	}

	// Cycling through more addresses than the cache holds evicts the
	// oldest entry instead of growing without bound.
	for i := 0; i < maxTrackedIPs; i++ {
		l.allow(fmt.Sprintf("client-%d", i))
	}
	if got := l.buckets.Len(); got > maxTrackedIPs {
		t.Errorf("tracked IPs = %d, want at most %d", got, maxTrackedIPs)
	}

	// The evicted IP starts over with a fresh bucket.
	if !l.allow("10.0.0.1") {
		t.Error("request after eviction should get a fresh bucket")
	}
}

func TestStats(t *testing.T) {
	mem := &fakeMemory{
		statsFn: func(context.Context) (*types.Stats, error) {
			return &types.Stats{TotalEvents: 3, LinkedEvents: 2, OrphanEvents: 1, ChainCoverage: 2.0 / 3.0}, nil
		},
	}
	h := newTestServer(t, mem, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	for _, key := range []string{"total_events", "linked_events", "orphan_events", "chain_coverage"} {
		if _, ok := body[key]; !ok {
			t.Errorf("stats missing %q", key)
		}
	}
}

func TestPanicBecomesInternalError(t *testing.T) {
	mem := &fakeMemory{
		queryFn: func(context.Context, string) (string, error) { panic("boom") },
	}
	h := newTestServer(t, mem, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/query",
		strings.NewReader(`{"query":"x"}`)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error.Type != "InternalError" {
		t.Errorf("type = %s", env.Error.Type)
	}
}
