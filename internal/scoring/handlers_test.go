package scoring

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service := newTestService(t, seededProvider())
	handler := NewHandler(service, "ethereum", 5)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/v1"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed), "body: %s", w.Body.String())
	return w, parsed
}

func TestGetScore(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/v1/score?address="+cleanAddr, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cleanAddr, body["address"])
	assert.Equal(t, "ethereum", body["network"])
	score, ok := body["score"].(float64)
	require.True(t, ok, "score missing")
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
	assert.Equal(t, false, body["blocked"])
	assert.NotContains(t, body, "explain")
}

func TestGetScoreExplain(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/v1/score?address="+cleanAddr+"&explain=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	explain, ok := body["explain"].(map[string]any)
	require.True(t, ok, "explain block missing")
	assert.NotEmpty(t, explain["version"])
	assert.Equal(t, body["score"], explain["score"])
	parts, ok := explain["parts"].([]any)
	require.True(t, ok)
	assert.Len(t, parts, 6)
	assert.Contains(t, explain, "signals")
}

func TestGetScoreSanctioned(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/v1/score?address="+sanctionedAddr, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100.0, body["score"])
	assert.Equal(t, true, body["blocked"])
	assert.Contains(t, body, "sanctionHits")
}

func TestGetScoreInvalidAddress(t *testing.T) {
	router := newTestRouter(t)

	for _, addr := range []string{"", "garbage", "0x123"} {
		w, body := doJSON(t, router, http.MethodGet, "/v1/score?address="+addr, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "address %q", addr)
		assert.Equal(t, "invalid_address", body["error"])
	}
}

func TestGetNeighbors(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/v1/neighbors?address="+cleanAddr+"&limit=3", nil)

	require.Equal(t, http.StatusOK, w.Code)
	g, ok := body["graph"].(map[string]any)
	require.True(t, ok, "graph missing")
	nodes, ok := g["nodes"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, nodes)
	assert.Equal(t, cleanAddr, nodes[0], "center must be the subject")
	assert.LessOrEqual(t, len(nodes), 4) // center + limit
}

func TestGetNeighborsBadLimit(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/v1/neighbors?address="+cleanAddr+"&limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_limit", body["error"])
}

func TestPostBatch(t *testing.T) {
	router := newTestRouter(t)

	payload, _ := json.Marshal(BatchRequest{
		Addresses: []string{cleanAddr, "junk", sanctionedAddr},
	})
	w, body := doJSON(t, router, http.MethodPost, "/v1/score/batch", payload)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["batchId"])
	assert.Equal(t, "ethereum", body["network"])

	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)

	second := results[1].(map[string]any)
	assert.Equal(t, "invalid_address", second["error"])

	counts := body["counts"].(map[string]any)
	assert.Equal(t, 3.0, counts["total"])
	assert.Equal(t, 2.0, counts["succeeded"])
	assert.Equal(t, 1.0, counts["failed"])
}

func TestPostBatchValidation(t *testing.T) {
	router := newTestRouter(t)

	// Empty address list
	w, body := doJSON(t, router, http.MethodPost, "/v1/score/batch", []byte(`{"addresses": []}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", body["error"])

	// Over the batch cap (handler configured with 5)
	payload, _ := json.Marshal(BatchRequest{Addresses: make([]string, 6)})
	w, body = doJSON(t, router, http.MethodPost, "/v1/score/batch", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "too_many_addresses", body["error"])

	// Malformed JSON
	w, body = doJSON(t, router, http.MethodPost, "/v1/score/batch", []byte(`{"addresses": `))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", body["error"])
}
