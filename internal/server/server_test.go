package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletscope/internal/chain"
	"github.com/mbd888/walletscope/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	cleanAddr      = "0x1111111111111111111111111111111111111111"
	sanctionedAddr = "0x7f367cc41522ce07553e823bf3be79a889debe1b"
)

// testConfig returns a minimal config for testing
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	sanctioned := filepath.Join(dir, "sanctioned.txt")
	if err := os.WriteFile(sanctioned, []byte(sanctionedAddr+"\n"), 0o600); err != nil {
		t.Fatalf("write list file: %v", err)
	}

	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		DefaultNetwork:     "ethereum",
		NeighborLimit:      120,
		BatchSize:          10,
		Concurrency:        4,
		SanctionedList:     sanctioned,
		ListReloadInterval: time.Minute,
		ProviderTimeout:    time.Second,
		HistoryCacheTTL:    time.Minute,
		GraphCacheTTL:      time.Minute,
		ScoreCacheTTL:      time.Minute,
		CacheMaxEntries:    64,
		RateLimitRPM:       6000,
	}
}

// newTestServer creates a server backed by an in-memory history provider
func newTestServer(t *testing.T) (*Server, *chain.MemoryProvider) {
	t.Helper()

	provider := chain.NewMemoryProvider()
	now := time.Now()
	var txs []chain.Transaction
	for i := 0; i < 12; i++ {
		peer := fmt.Sprintf("0x%040d", i%4+2)
		txs = append(txs, chain.Transaction{
			Hash:      fmt.Sprintf("0xtx%d", i),
			From:      cleanAddr,
			To:        peer,
			Value:     "1000000000000000000",
			Timestamp: now.AddDate(0, 0, -300+i*20),
		})
	}
	provider.Seed("ethereum", cleanAddr, txs)
	provider.Seed("ethereum", sanctionedAddr, txs[:2])

	s, err := New(testConfig(t), WithProvider(provider))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s, provider
}

func doGET(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	s.Router().ServeHTTP(w, req)

	var body map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
		}
	}
	return w, body
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := doGET(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
	if resp["checks"] == nil {
		t.Error("Expected checks in health response")
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w, _ := doGET(t, s, "/health/live")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w, _ := doGET(t, s, "/health/ready")

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s, _ := newTestServer(t)

	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"GET:/v1/score",
		"GET:/v1/neighbors",
		"POST:/v1/score/batch",
		"GET:/v1/lists",
		"POST:/v1/lists/reload",
	}

	routeSet := make(map[string]bool)
	for _, route := range s.Router().Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end scoring through the full middleware chain
// ---------------------------------------------------------------------------

func TestScoreEndToEnd(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := doGET(t, s, "/v1/score?address="+cleanAddr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if resp["address"] != cleanAddr {
		t.Errorf("Expected address %s, got %v", cleanAddr, resp["address"])
	}
	score, ok := resp["score"].(float64)
	if !ok {
		t.Fatalf("Expected numeric score, got %v", resp["score"])
	}
	if score < 0 || score > 100 {
		t.Errorf("Score out of range: %v", score)
	}
	if resp["blocked"] != false {
		t.Errorf("Clean address should not be blocked: %v", resp["blocked"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}
}

func TestSanctionedAddressBlockedEndToEnd(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := doGET(t, s, "/v1/score?address="+sanctionedAddr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if resp["score"] != float64(100) {
		t.Errorf("Expected score 100 for sanctioned address, got %v", resp["score"])
	}
	if resp["blocked"] != true {
		t.Errorf("Sanctioned address should be blocked")
	}
}

func TestInvalidAddressRejected(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := doGET(t, s, "/v1/score?address=zzz")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if resp["error"] == nil {
		t.Error("Expected error code in response")
	}
}

// ---------------------------------------------------------------------------
// Lists endpoints
// ---------------------------------------------------------------------------

func TestListsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := doGET(t, s, "/v1/lists")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	listsField, ok := resp["lists"].([]interface{})
	if !ok || len(listsField) != 1 {
		t.Fatalf("Expected 1 list, got %v", resp["lists"])
	}
	entry := listsField[0].(map[string]interface{})
	if entry["name"] != "sanctioned" {
		t.Errorf("Expected list 'sanctioned', got %v", entry["name"])
	}
	if entry["entries"] != float64(1) {
		t.Errorf("Expected 1 entry, got %v", entry["entries"])
	}
}

func TestManualReloadFlushesScoreCache(t *testing.T) {
	s, provider := newTestServer(t)

	// First request caches the result.
	w, first := doGET(t, s, "/v1/score?address="+cleanAddr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	// Change the underlying history, then reload the lists: the
	// reload callback must flush score caches so the next request
	// recomputes from fresh data.
	provider.Seed("ethereum", cleanAddr, nil)

	wr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/lists/reload", nil)
	s.Router().ServeHTTP(wr, req)
	if wr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from reload, got %d: %s", wr.Code, wr.Body.String())
	}

	_, second := doGET(t, s, "/v1/score?address="+cleanAddr)
	if first["score"] == second["score"] {
		t.Errorf("Expected recomputed score after reload, got %v twice", second["score"])
	}
}

// ---------------------------------------------------------------------------
// Security headers
// ---------------------------------------------------------------------------

func TestSecurityHeadersApplied(t *testing.T) {
	s, _ := newTestServer(t)

	w, _ := doGET(t, s, "/health")
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected X-Content-Type-Options header")
	}
	if w.Header().Get("X-Frame-Options") == "" {
		t.Error("Expected X-Frame-Options header")
	}
}

// ---------------------------------------------------------------------------
// Server without list sources still scores
// ---------------------------------------------------------------------------

func TestServerWithoutLists(t *testing.T) {
	cfg := testConfig(t)
	cfg.SanctionedList = ""

	provider := chain.NewMemoryProvider()
	s, err := New(cfg, WithProvider(provider))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	w, resp := doGET(t, s, "/v1/score?address="+cleanAddr)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp["blocked"] != false {
		t.Errorf("No lists configured, nothing should be blocked")
	}
}
