// Package integration contains tests that verify the interaction between
// multiple platform components. These tests use httptest servers with real
// handler wiring but stub out the proxied services; they need a reachable
// PostgreSQL with the schema applied and skip themselves otherwise.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/internal/auth/apikey"
	"github.com/smartgrocer/basket-analytics-platform/internal/auth/ratelimit"
	gwhandler "github.com/smartgrocer/basket-analytics-platform/internal/gateway/handler"
	"github.com/smartgrocer/basket-analytics-platform/internal/gateway/router"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := testPostgresConfig()
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "basketanalytics_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "basketanalytics"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// uniqueName returns a key name that will not collide with earlier test runs
// against the same database. Key names are unique in the api_keys table.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// newGatewayServer creates a test gateway backed by a real PostgreSQL
// database, with stub upstreams standing in for the platform services.
func newGatewayServer(t *testing.T, db *postgres.Client) *httptest.Server {
	t.Helper()

	ingestionBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"transaction_id": "00000000-0000-0000-0000-000000000001",
			"dataset":        "orders",
			"status":         "accepted",
		})
	}))
	t.Cleanup(ingestionBackend.Close)

	minerBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"dataset":   "orders",
			"itemsets":  []any{},
			"rules":     []any{},
			"cache_hit": false,
		})
	}))
	t.Cleanup(minerBackend.Close)

	analyticsBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"total_runs": 0})
	}))
	t.Cleanup(analyticsBackend.Close)

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	t.Cleanup(limiter.Close)

	h := gwhandler.New(gwhandler.Config{
		IngestionURL: ingestionBackend.URL,
		MinerURL:     minerBackend.URL,
		AnalyticsURL: analyticsBackend.URL,
	}, db, validator, nil)

	chain := router.New(h, validator, limiter, true, nil)
	return httptest.NewServer(chain)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestHealthEndpoint verifies the gateway health check is accessible without auth.
func TestHealthEndpoint(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
	if _, ok := body["upstreams"].(map[string]any); !ok {
		t.Error("expected upstreams circuit states in health response")
	}
}

// TestUnauthenticatedRequestRejected verifies that API endpoints reject
// requests without an API key.
func TestUnauthenticatedRequestRejected(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	defer srv.Close()

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/datasets"},
		{"GET", "/api/v1/transactions"},
		{"GET", "/api/v1/analytics/stats"},
	}

	for _, ep := range endpoints {
		req, _ := http.NewRequest(ep.method, srv.URL+ep.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: request failed: %v", ep.method, ep.path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", ep.method, ep.path, resp.StatusCode)
		}
	}
}

// TestAPIKeyLifecycle tests creating, using, and revoking an API key when
// PostgreSQL is available.
func TestAPIKeyLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	defer srv.Close()

	// The admin endpoints also require auth, so the first key is minted
	// directly through the validator.
	validator := apikey.NewValidator(db)
	name := uniqueName("integration-test")

	rawKey, err := validator.CreateKey(t.Context(), name, 100, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	// Use the key to list datasets through the gateway.
	req, _ := http.NewRequest("GET", srv.URL+"/api/v1/datasets", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("datasets request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	// Revoke by name; the raw key is unknown to anyone but the caller.
	if err := validator.RevokeKey(t.Context(), name); err != nil {
		t.Fatalf("revoking key: %v", err)
	}

	req2, _ := http.NewRequest("GET", srv.URL+"/api/v1/datasets", nil)
	req2.Header.Set("X-API-Key", rawKey)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("request after revoke failed: %v", err)
	}
	resp2.Body.Close()

	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after revoke, got %d", resp2.StatusCode)
	}
}

// TestTransactionIngestProxy verifies that transaction intake is proxied
// through the gateway to the ingestion backend.
func TestTransactionIngestProxy(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	defer srv.Close()

	validator := apikey.NewValidator(db)
	rawKey, err := validator.CreateKey(t.Context(), uniqueName("ingest-test"), 100, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	payload := map[string]string{
		"dataset": "orders",
		"group":   "member-1",
		"item":    "whole milk",
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", srv.URL+"/api/v1/transactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", rawKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, respBody)
	}
}

// TestMineProxy verifies that mining requests are proxied to the miner
// backend and the response comes back unchanged.
func TestMineProxy(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	defer srv.Close()

	validator := apikey.NewValidator(db)
	rawKey, err := validator.CreateKey(t.Context(), uniqueName("mine-test"), 100, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	req, _ := http.NewRequest("POST", srv.URL+"/api/v1/datasets/orders/mine",
		bytes.NewReader([]byte(`{"min_support":0.5,"min_confidence":0.6}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", rawKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("mine request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, respBody)
	}

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	if _, ok := result["itemsets"]; !ok {
		t.Error("expected itemsets field in proxied mine response")
	}
}

// TestRateLimiting verifies that the gateway enforces per-key rate limits.
func TestRateLimiting(t *testing.T) {
	db := skipIfNoPostgres(t)
	srv := newGatewayServer(t, db)
	defer srv.Close()

	validator := apikey.NewValidator(db)
	// A key with a very low limit.
	rawKey, err := validator.CreateKey(t.Context(), uniqueName("ratelimit-test"), 2, nil)
	if err != nil {
		t.Fatalf("creating key: %v", err)
	}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("GET", srv.URL+"/api/v1/datasets", nil)
		req.Header.Set("X-API-Key", rawKey)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest("GET", srv.URL+"/api/v1/datasets", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("rate limit request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
