package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/medpricing/medical-data-service/config"
	"github.com/medpricing/medical-data-service/handlers"
)

// mockHandler answers every route with its own name
type mockHandler struct{}

func reply(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondWithJSON(w, http.StatusOK, map[string]string{"handler": name})
	}
}

func (mockHandler) ServeMedicalCosts(w http.ResponseWriter, r *http.Request) {
	reply("ServeMedicalCosts")(w, r)
}
func (mockHandler) ServeDrugPrices(w http.ResponseWriter, r *http.Request) {
	reply("ServeDrugPrices")(w, r)
}
func (mockHandler) ServeDiseases(w http.ResponseWriter, r *http.Request) {
	reply("ServeDiseases")(w, r)
}
func (mockHandler) FindMedicals(w http.ResponseWriter, r *http.Request) { reply("FindMedicals")(w, r) }
func (mockHandler) FindDrugs(w http.ResponseWriter, r *http.Request)    { reply("FindDrugs")(w, r) }
func (mockHandler) FindDiseases(w http.ResponseWriter, r *http.Request) { reply("FindDiseases")(w, r) }
func (mockHandler) ResolveDisease(w http.ResponseWriter, r *http.Request) {
	reply("ResolveDisease")(w, r)
}
func (mockHandler) HealthCheck(w http.ResponseWriter, r *http.Request) { reply("HealthCheck")(w, r) }

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Address:        "127.0.0.1",
		Env:            config.EnvTest,
		MaxRequestBody: 1024,
		MaxHeaderSize:  1024,
		RateLimit:      config.DefaultRateLimit(),
	}
}

func TestRoutes(t *testing.T) {
	srv := NewServer(testConfig(), mockHandler{})

	tests := []struct {
		path    string
		handler string
	}{
		{"/api/medical-costs", "ServeMedicalCosts"},
		{"/api/drug-prices", "ServeDrugPrices"},
		{"/api/diseases", "ServeDiseases"},
		{"/api/some_medicals?item_code=T001", "FindMedicals"},
		{"/api/some_drugs?drug_code=D001", "FindDrugs"},
		{"/api/some_diseases?disease_name=x", "FindDiseases"},
		{"/api/one_disease_medical_drug?disease_name=x", "ResolveDisease"},
		{"/health", "HealthCheck"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", rr.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body["handler"] != tt.handler {
				t.Errorf("Expected handler %s, got %s", tt.handler, body["handler"])
			}
			if rr.Header().Get("X-RateLimit-Limit") != strconv.FormatInt(config.DefaultRateLimit().Capacity, 10) {
				t.Errorf("Expected rate limit headers, got %v", rr.Header())
			}
		})
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	srv := NewServer(testConfig(), mockHandler{})

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":404`) {
		t.Errorf("Expected JSON error body, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/diseases", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), mockHandler{})

	// Generate one request so the HTTP metrics have a sample
	srv.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/diseases", nil))

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `path="/api/diseases"`) {
		t.Errorf("Expected route pattern label in metrics output")
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	cfg := testConfig()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestSizeMiddleware(cfg)(next)

	t.Run("body too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/diseases", strings.NewReader(strings.Repeat("x", 2048)))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("Expected 413, got %d", rr.Code)
		}
	})

	t.Run("headers too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/diseases", nil)
		req.Header.Set("X-Padding", strings.Repeat("x", 2048))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestHeaderFieldsTooLarge {
			t.Errorf("Expected 431, got %d", rr.Code)
		}
	})

	t.Run("within limits", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/diseases", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rr.Code)
		}
	})
}

func TestRealIPMiddleware(t *testing.T) {
	var seen string
	handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "10.1.2.3" {
		t.Errorf("Expected first forwarded IP, got %s", seen)
	}
}

func TestTokenCost(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		Rate:        1,
		Capacity:    1000,
		ListingCost: 200,
		LookupCost:  20,
		ResolveCost: 30,
		HealthCost:  5,
	})

	tests := []struct {
		path     string
		expected int64
	}{
		{"/metrics", 0},
		{"/health", 5},
		{"/api/medical-costs", 200},
		{"/api/drug-prices", 200},
		{"/api/diseases", 200},
		{"/api/one_disease_medical_drug", 30},
		{"/api/some_medicals", 20},
		{"/api/some_drugs", 20},
		{"/api/some_diseases", 20},
		{"/unknown", 20},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if cost := rl.tokenCost(httptest.NewRequest(http.MethodGet, tt.path, nil)); cost != tt.expected {
				t.Errorf("Expected cost %d, got %d", tt.expected, cost)
			}
		})
	}
}

func TestDefaultRateLimitSustainsUpstreamCallers(t *testing.T) {
	rl := NewRateLimiter(config.DefaultRateLimit())
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// One upstream service resolving diseases in a burst
	for i := range 1000 {
		req := httptest.NewRequest(http.MethodGet, "/api/one_disease_medical_drug", nil)
		req.RemoteAddr = "10.0.0.9"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("Request %d rejected with %d", i+1, rr.Code)
		}
	}
}

func TestFreeRoutesSkipTheBucket(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Rate: 0.001, Capacity: 1, HealthCost: 0})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 5 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected free route to pass, got %d", rr.Code)
		}
	}
}

func TestRateLimiterRejectsWhenEmpty(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Rate: 0.001, Capacity: 250, ListingCost: 200, LookupCost: 20, ResolveCost: 30, HealthCost: 5})
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("/api/diseases", "10.0.0.1"); rr.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", rr.Code)
	}
	rr := send("/api/diseases", "10.0.0.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" || rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("Unexpected rate limit headers %v", rr.Header())
	}

	// Other clients have their own bucket
	if rr := send("/api/diseases", "10.0.0.2"); rr.Code != http.StatusOK {
		t.Errorf("Expected another client to pass, got %d", rr.Code)
	}

	// Free endpoints never consume tokens
	if rr := send("/metrics", "10.0.0.1"); rr.Code != http.StatusOK {
		t.Errorf("Expected /metrics to stay available, got %d", rr.Code)
	}
}

func TestRateLimiterRemoveIdle(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Rate: 1, Capacity: 100})
	rl.getBucket("10.0.0.1")
	busy := rl.getBucket("10.0.0.2")
	busy.TakeAvailable(50)

	if removed := rl.removeIdle(); removed != 1 {
		t.Errorf("Expected one idle client removed, got %d", removed)
	}
	rl.mu.RLock()
	_, kept := rl.clients["10.0.0.2"]
	rl.mu.RUnlock()
	if !kept {
		t.Error("Expected busy client to be kept")
	}

	rl.StartCleanup(time.Hour)
	rl.Stop()
	rl.Stop() // idempotent
}

func TestStartAndShutdown(t *testing.T) {
	srv := NewServer(testConfig(), mockHandler{})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server did not stop")
	}
}
