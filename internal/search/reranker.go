package search

import (
	"context"
)

// RerankResult is a single reranked document.
type RerankResult struct {
	// Index is the original position in the input documents slice.
	Index int
	// Score is the relevance score (0.0 to 1.0).
	Score float64
}

// Reranker reorders candidate documents with a cross-encoder model.
// Cross-encoders jointly encode query-document pairs, which scores
// relevance more accurately than bi-encoders at higher per-pair cost, so
// rerankers only ever see the bounded fusion output.
type Reranker interface {
	// Rerank scores documents against the query and returns results sorted
	// by score descending, truncated to topK when topK > 0.
	Rerank(ctx context.Context, q string, documents []string, topK int) ([]RerankResult, error)

	// Available checks if the reranker service is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoOpReranker preserves the incoming order. Used when reranking is
// disabled or the reranker service is down: the fused order stands.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank returns documents in original order with decreasing scores.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{
			Index: i,
			Score: 1.0 - float64(i)*0.01,
		}
	}

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	return results, nil
}

// Available always returns true for NoOpReranker.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (n *NoOpReranker) Close() error {
	return nil
}
