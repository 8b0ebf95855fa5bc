package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpReranker_Rerank_PreservesOrder(t *testing.T) {
	// Given: NoOpReranker and documents
	reranker := &NoOpReranker{}
	documents := []string{"doc1", "doc2", "doc3"}

	// When: reranking
	results, err := reranker.Rerank(context.Background(), "query", documents)

	// Then: order is preserved with decreasing scores
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.InDelta(t, 0.99, results[1].Score, 0.001)
	assert.InDelta(t, 0.98, results[2].Score, 0.001)
}

func TestNoOpReranker_AvailableAndClose(t *testing.T) {
	reranker := &NoOpReranker{}
	assert.True(t, reranker.Available(context.Background()))
	assert.NoError(t, reranker.Close())
}

func newRerankServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPReranker_Rerank(t *testing.T) {
	// Given: a server scoring documents by length, answering out of order
	var got rerankRequest
	srv := newRerankServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"results":[{"index":1,"score":0.9},{"index":0,"score":0.2}]}`))
	})
	reranker, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL + "/", Model: "bge"})
	require.NoError(t, err)
	defer reranker.Close()

	// When: reranking
	results, err := reranker.Rerank(context.Background(), "gate closure", []string{"a", "bb"})

	// Then: the request carries query, documents and model
	require.NoError(t, err)
	assert.Equal(t, "gate closure", got.Query)
	assert.Equal(t, []string{"a", "bb"}, got.Documents)
	assert.Equal(t, "bge", got.Model)
	assert.Equal(t, []RerankResult{{Index: 1, Score: 0.9}, {Index: 0, Score: 0.2}}, results)
	assert.True(t, reranker.Available(context.Background()))
}

func TestHTTPReranker_ServerError(t *testing.T) {
	// Given: a failing server
	srv := newRerankServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})
	reranker, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	// When: reranking
	_, err = reranker.Rerank(context.Background(), "q", []string{"a"})

	// Then: the status and body are reported
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestHTTPReranker_HealthCheckFails(t *testing.T) {
	// Given: a server without a health endpoint
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	// When: creating the client
	_, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})

	// Then: creation fails
	assert.Error(t, err)
}

func TestHTTPReranker_Closed(t *testing.T) {
	// Given: a closed reranker
	reranker, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{
		Endpoint:        "http://127.0.0.1:1",
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	require.NoError(t, reranker.Close())
	require.NoError(t, reranker.Close())

	// When / Then: calls fail without network access
	_, err = reranker.Rerank(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
	assert.False(t, reranker.Available(context.Background()))
}

func TestHTTPReranker_EmptyDocuments(t *testing.T) {
	reranker, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{SkipHealthCheck: true})
	require.NoError(t, err)

	results, err := reranker.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
