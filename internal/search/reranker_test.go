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

func TestNoOpReranker_PreservesOrder(t *testing.T) {
	r := &NoOpReranker{}

	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, rr := range results {
		assert.Equal(t, i, rr.Index)
		if i > 0 {
			assert.Less(t, rr.Score, results[i-1].Score)
		}
	}
}

func TestNoOpReranker_TopK(t *testing.T) {
	r := &NoOpReranker{}

	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func newTestHTTPReranker(t *testing.T, handler http.HandlerFunc) *HTTPReranker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{
		Endpoint:        srv.URL,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestHTTPReranker_Rerank(t *testing.T) {
	r := newTestHTTPReranker(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/rerank", req.URL.Path)

		var body rerankRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "버서커 스킬", body.Query)
		assert.Len(t, body.Documents, 2)

		// Server reverses the order.
		_ = json.NewEncoder(w).Encode(rerankResponse{
			Results: []struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{
				{Index: 1, Score: 0.9},
				{Index: 0, Score: 0.4},
			},
		})
	})

	results, err := r.Rerank(context.Background(), "버서커 스킬", []string{"doc_a", "doc_b"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 0, results[1].Index)
}

func TestHTTPReranker_EmptyDocuments(t *testing.T) {
	r := newTestHTTPReranker(t, func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("no request expected for empty documents")
	})

	results, err := r.Rerank(context.Background(), "query", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHTTPReranker_ServerError(t *testing.T) {
	r := newTestHTTPReranker(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})

	_, err := r.Rerank(context.Background(), "query", []string{"doc"}, 0)
	assert.Error(t, err)
}

func TestHTTPReranker_OutOfRangeIndexRejected(t *testing.T) {
	r := newTestHTTPReranker(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(rerankResponse{
			Results: []struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{{Index: 7, Score: 0.5}},
		})
	})

	_, err := r.Rerank(context.Background(), "query", []string{"doc"}, 0)
	assert.Error(t, err)
}

func TestNewHTTPReranker_HealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "starting up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	assert.Error(t, err)
}

func TestHTTPReranker_ClosedRejectsCalls(t *testing.T) {
	r := newTestHTTPReranker(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, r.Close())

	_, err := r.Rerank(context.Background(), "query", []string{"doc"}, 0)
	assert.Error(t, err)
	assert.False(t, r.Available(context.Background()))
}
