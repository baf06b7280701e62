// Package search implements the hybrid retrieval pipeline: ensemble
// BM25 + dense retrieval fused with weighted Reciprocal Rank Fusion,
// cross-encoder reranking, and metadata-aware rescoring, orchestrated
// concurrently with web-search grounding.
package search

import (
	"context"
	"time"

	"github.com/questline/guiderag/internal/query"
	"github.com/questline/guiderag/internal/store"
)

// Weights configures the relative importance of dense vs lexical retrieval.
// Dense + Lexical must sum to 1.0.
type Weights struct {
	Dense   float64 `json:"dense"`
	Lexical float64 `json:"lexical"`
}

// DefaultWeights favors lexical retrieval. Context-enhanced queries carry
// precise entity tokens (class names, fame values) that BM25 exploits well.
func DefaultWeights() Weights {
	return Weights{Dense: 0.3, Lexical: 0.7}
}

// RecencyWeights favors dense retrieval. Recency and paraphrase queries
// benefit more from embedding similarity than from exact term overlap.
func RecencyWeights() Weights {
	return Weights{Dense: 0.7, Lexical: 0.3}
}

// Result is the assembled output of one hybrid search call. It carries
// everything the answer-generation layer needs: ranked documents from both
// branches, preformatted context strings, and per-stage timings.
type Result struct {
	Query         string `json:"query"`
	EnhancedQuery string `json:"enhanced_query"`

	InternalDocs []*store.Document `json:"internal_docs"`
	WebDocs      []*store.Document `json:"web_docs"`

	InternalContext string `json:"internal_context"`
	WebContext      string `json:"web_context"`

	Weights       Weights `json:"weights"`
	UsedWebSearch bool    `json:"used_web_search"`

	// TimingsMs holds wall-clock durations per stage in milliseconds.
	TimingsMs map[string]float64 `json:"timings_ms"`

	// Cached reports whether this result was served from the result cache.
	// Not persisted; always false inside a stored entry.
	Cached bool `json:"-"`
}

// WebSearcher is the external grounding branch. Implementations return an
// empty slice on upstream failure rather than an error they expect callers
// to handle; a non-nil error is still treated as a degraded branch.
type WebSearcher interface {
	Search(ctx context.Context, q string, cc *query.CharacterContext) ([]*store.Document, error)
}

// LexicalSearcher is the BM25 branch of the internal pipeline.
type LexicalSearcher interface {
	Search(ctx context.Context, q string, limit int) ([]*store.LexicalResult, error)
}

// DenseSearcher is the vector branch of the internal pipeline.
type DenseSearcher interface {
	Search(ctx context.Context, vector []float32, k, fetchK int, lambda float64) ([]*store.VectorResult, error)
}

// Config tunes the retrieval pipeline. Constants here are heuristics
// validated by relative-ordering tests, not canonical values.
type Config struct {
	// DenseK is how many dense results feed fusion.
	DenseK int

	// DenseFetchK is the MMR candidate pool size (≈2.5-3x DenseK).
	DenseFetchK int

	// MMRLambda trades relevance against diversity in dense retrieval.
	MMRLambda float64

	// LexicalK is how many BM25 results feed fusion.
	LexicalK int

	// RRFConstant is the fusion smoothing constant.
	RRFConstant int

	// RerankTopN bounds the candidate set surviving the reranker.
	RerankTopN int

	// FinalTopN is the document count handed to context assembly.
	FinalTopN int

	// BranchTimeout bounds each of the two top-level branches.
	BranchTimeout time.Duration

	// WebSearchEnabled gates the external grounding branch.
	WebSearchEnabled bool
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		DenseK:        20,
		DenseFetchK:   60,
		MMRLambda:     0.8,
		LexicalK:      20,
		RRFConstant:   DefaultRRFConstant,
		RerankTopN:    10,
		FinalTopN:     5,
		BranchTimeout: 30 * time.Second,
	}
}

// applyDefaults fills zero values with defaults.
func (c Config) applyDefaults() Config {
	def := DefaultConfig()
	if c.DenseK <= 0 {
		c.DenseK = def.DenseK
	}
	if c.DenseFetchK < c.DenseK {
		c.DenseFetchK = c.DenseK * 3
	}
	if c.MMRLambda <= 0 || c.MMRLambda > 1 {
		c.MMRLambda = def.MMRLambda
	}
	if c.LexicalK <= 0 {
		c.LexicalK = def.LexicalK
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = def.RRFConstant
	}
	if c.RerankTopN <= 0 {
		c.RerankTopN = def.RerankTopN
	}
	if c.FinalTopN <= 0 {
		c.FinalTopN = def.FinalTopN
	}
	if c.BranchTimeout <= 0 {
		c.BranchTimeout = def.BranchTimeout
	}
	return c
}
