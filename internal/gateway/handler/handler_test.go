package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func upstreamServer(name string, seen *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = append(*seen, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":%q}`, name)
	}))
}

func TestForwardRelaysRequestAndResponse(t *testing.T) {
	var seen []string
	miner := upstreamServer("miner", &seen)
	defer miner.Close()

	h := New(Config{IngestionURL: miner.URL, MinerURL: miner.URL, AnalyticsURL: miner.URL}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil)
	rr := httptest.NewRecorder()
	h.ProxyMiner(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "miner") {
		t.Errorf("body = %s, want upstream response", rr.Body.String())
	}
	if len(seen) != 1 || seen[0] != "GET /api/v1/datasets" {
		t.Errorf("upstream saw %v", seen)
	}
}

func TestForwardDeadUpstream(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	h := New(Config{IngestionURL: deadURL, MinerURL: deadURL, AnalyticsURL: deadURL}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil)
	rr := httptest.NewRecorder()
	h.ProxyMiner(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	h := New(Config{IngestionURL: deadURL, MinerURL: deadURL, AnalyticsURL: deadURL}, nil, nil, nil)

	// Default breaker threshold is five consecutive failures.
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ProxyMiner(rr, httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("request %d status = %d, want 502 while circuit closed", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ProxyMiner(rr, httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 once circuit is open", rr.Code)
	}

	health := httptest.NewRecorder()
	h.Health(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	var status struct {
		Upstreams map[string]string `json:"upstreams"`
	}
	if err := json.NewDecoder(health.Body).Decode(&status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status.Upstreams["miner"] != "open" {
		t.Errorf("miner circuit = %q, want open", status.Upstreams["miner"])
	}
}

func TestBreakersAreIndependent(t *testing.T) {
	var seen []string
	live := upstreamServer("ingestion", &seen)
	defer live.Close()
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	h := New(Config{IngestionURL: live.URL, MinerURL: deadURL, AnalyticsURL: deadURL}, nil, nil, nil)

	for i := 0; i < 6; i++ {
		h.ProxyMiner(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))
	}

	rr := httptest.NewRecorder()
	h.ProxyIngestion(rr, httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader("{}")))
	if rr.Code != http.StatusOK {
		t.Errorf("ingestion status = %d, want 200 while miner circuit is open", rr.Code)
	}
}

func TestHealthReportsClosedCircuits(t *testing.T) {
	h := New(Config{IngestionURL: "http://localhost:1", MinerURL: "http://localhost:1", AnalyticsURL: "http://localhost:1"}, nil, nil, nil)

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var status struct {
		Status    string            `json:"status"`
		Upstreams map[string]string `json:"upstreams"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("status = %q", status.Status)
	}
	for _, name := range []string{"ingestion", "miner", "analytics"} {
		if status.Upstreams[name] != "closed" {
			t.Errorf("%s circuit = %q, want closed", name, status.Upstreams[name])
		}
	}
}

func TestGetTransactionRejectsBadID(t *testing.T) {
	h := New(Config{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rr := httptest.NewRecorder()
	h.GetTransaction(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestListTransactionsRejectsBadDatasetName(t *testing.T) {
	h := New(Config{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?dataset=bad*glob", nil)
	rr := httptest.NewRecorder()
	h.ListTransactions(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	h := New(Config{}, nil, nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{oops"},
		{"missing name", `{"rate_limit":10}`},
		{"bad duration", `{"name":"ci","expires_in":"tomorrow"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.CreateAPIKey(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}
