package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/questline/guiderag/internal/cache"
	"github.com/questline/guiderag/internal/embed"
	"github.com/questline/guiderag/internal/query"
	"github.com/questline/guiderag/internal/store"
	"github.com/questline/guiderag/internal/telemetry"
)

// resultCacheTag is the result-cache type tag for whole hybrid results.
const resultCacheTag = "hybrid_search"

// Orchestrator runs one hybrid search end to end: result-cache check,
// query enhancement, then the internal retrieval pipeline and the web
// grounding branch concurrently, then merge and context assembly.
//
// Branches degrade independently. A failed or timed-out branch contributes
// an empty document list and a logged error; it never fails the call.
type Orchestrator struct {
	config   Config
	embedder embed.Embedder
	lexical  LexicalSearcher
	dense    DenseSearcher
	docs     store.DocumentStore
	fusion   *RRFFusion
	weights  *WeightSelector
	reranker Reranker
	rescorer *Rescorer
	web      WebSearcher
	results  cache.ResultCache
	metrics  *telemetry.SearchMetrics
}

// OrchestratorDeps carries the collaborators the orchestrator wires
// together. Embedder, lexical, dense and docs are required; the rest
// defaults to inert implementations.
type OrchestratorDeps struct {
	Embedder embed.Embedder
	Lexical  LexicalSearcher
	Dense    DenseSearcher
	Docs     store.DocumentStore

	Reranker Reranker                 // nil = NoOpReranker
	Web      WebSearcher              // nil = web branch disabled
	Results  cache.ResultCache        // nil = no result caching
	Weights  *WeightSelector          // nil = default keyword selector
	Rescorer *Rescorer                // nil = default weights
	Metrics  *telemetry.SearchMetrics // nil = no telemetry
}

// NewOrchestrator creates a hybrid search orchestrator.
func NewOrchestrator(cfg Config, deps OrchestratorDeps) *Orchestrator {
	cfg = cfg.applyDefaults()

	if deps.Reranker == nil {
		deps.Reranker = &NoOpReranker{}
	}
	if deps.Weights == nil {
		deps.Weights = NewWeightSelector(nil)
	}
	if deps.Rescorer == nil {
		deps.Rescorer = NewRescorer(DefaultRescoreConfig())
	}

	return &Orchestrator{
		config:   cfg,
		embedder: deps.Embedder,
		lexical:  deps.Lexical,
		dense:    deps.Dense,
		docs:     deps.Docs,
		fusion:   NewRRFFusion(cfg.RRFConstant),
		weights:  deps.Weights,
		reranker: deps.Reranker,
		rescorer: deps.Rescorer,
		web:      deps.Web,
		results:  deps.Results,
		metrics:  deps.Metrics,
	}
}

// Search executes a hybrid search for the query with optional character
// context. Identical (query, context-projection) pairs within the cache
// window are served from the result cache.
func (o *Orchestrator) Search(ctx context.Context, q string, cc *query.CharacterContext) (*Result, error) {
	total := time.Now()

	cacheKey := cache.Key(q, cc.CacheProjection())
	if o.results != nil {
		var hit Result
		if o.results.GetResult(ctx, resultCacheTag, cacheKey, &hit) {
			hit.Cached = true
			// The stored timings describe the original cold call; only
			// total_ms is rewritten to reflect this lookup.
			if hit.TimingsMs == nil {
				hit.TimingsMs = make(map[string]float64)
			}
			hit.TimingsMs["total_ms"] = msSince(total)
			o.record(q, &hit, time.Since(total), true)
			return &hit, nil
		}
	}

	enhanced := query.Enhance(q, cc)
	weights := o.weights.DetermineWeights(enhanced)

	result := &Result{
		Query:         q,
		EnhancedQuery: enhanced,
		Weights:       weights,
		TimingsMs:     make(map[string]float64),
	}

	webEnabled := o.config.WebSearchEnabled && o.web != nil

	// The two branches run concurrently and join unconditionally. Branch
	// closures swallow their own failures, so g.Wait always returns nil;
	// a context-group cancel from one branch must not starve the other.
	g, gctx := errgroup.WithContext(ctx)

	var (
		internalDocs []*store.Document
		internalMs   float64
	)
	g.Go(func() error {
		start := time.Now()
		branchCtx, cancel := context.WithTimeout(gctx, o.config.BranchTimeout)
		defer cancel()

		docs, err := o.searchInternal(branchCtx, enhanced, weights)
		internalMs = msSince(start)
		if err != nil {
			slog.Error("internal search branch failed",
				slog.String("query", q),
				slog.Any("error", err))
			internalDocs = []*store.Document{}
			return nil
		}
		internalDocs = docs
		return nil
	})

	var (
		webDocs []*store.Document
		webMs   float64
	)
	if webEnabled {
		g.Go(func() error {
			start := time.Now()
			branchCtx, cancel := context.WithTimeout(gctx, o.config.BranchTimeout)
			defer cancel()

			docs, err := o.web.Search(branchCtx, q, cc)
			webMs = msSince(start)
			if err != nil {
				slog.Error("web search branch failed",
					slog.String("query", q),
					slog.Any("error", err))
				webDocs = []*store.Document{}
				return nil
			}
			webDocs = docs
			return nil
		})
	}

	_ = g.Wait()

	result.TimingsMs["internal_ms"] = internalMs
	if webEnabled {
		result.TimingsMs["web_ms"] = webMs
	}
	result.InternalDocs = internalDocs
	result.WebDocs = webDocs
	result.UsedWebSearch = webEnabled && len(webDocs) > 0
	result.InternalContext = query.FormatDocs(internalDocs, "내부")
	result.WebContext = query.FormatDocs(webDocs, "웹")
	result.TimingsMs["total_ms"] = msSince(total)

	if o.results != nil {
		o.results.SaveResult(ctx, resultCacheTag, cacheKey, result)
	}

	o.record(q, result, time.Since(total), false)
	slog.Info("hybrid search complete",
		slog.String("query", q),
		slog.Int("internal_docs", len(internalDocs)),
		slog.Int("web_docs", len(webDocs)),
		slog.Bool("web_search", result.UsedWebSearch),
		slog.Float64("total_ms", result.TimingsMs["total_ms"]))

	return result, nil
}

// searchInternal runs the internal pipeline: dense + lexical retrieval,
// rank fusion, document hydration, cross-encoder reranking, and metadata
// rescoring. Reranker failure falls back to the fused order.
func (o *Orchestrator) searchInternal(ctx context.Context, enhanced string, weights Weights) ([]*store.Document, error) {
	denseResults, lexResults := o.retrieve(ctx, enhanced)

	fused := o.fusion.Fuse(denseResults, lexResults, weights)
	if len(fused) == 0 {
		return []*store.Document{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.DocID
	}
	docs, err := o.docs.Get(ctx, ids)
	if err != nil {
		return nil, err
	}

	docs = o.rerank(ctx, enhanced, docs)
	return o.rescorer.Rescore(enhanced, docs, o.config.FinalTopN), nil
}

// retrieve runs dense and lexical retrieval. Each sub-stage degrades to an
// empty list on failure so fusion still sees the surviving side.
func (o *Orchestrator) retrieve(ctx context.Context, enhanced string) ([]*store.VectorResult, []*store.LexicalResult) {
	var denseResults []*store.VectorResult
	if vec, err := o.embedder.Embed(ctx, enhanced); err != nil {
		slog.Error("query embedding failed", slog.Any("error", err))
	} else if denseResults, err = o.dense.Search(ctx, vec, o.config.DenseK, o.config.DenseFetchK, o.config.MMRLambda); err != nil {
		slog.Error("dense retrieval failed", slog.Any("error", err))
		denseResults = nil
	}

	lexResults, err := o.lexical.Search(ctx, enhanced, o.config.LexicalK)
	if err != nil {
		slog.Error("lexical retrieval failed", slog.Any("error", err))
		lexResults = nil
	}

	return denseResults, lexResults
}

// rerank runs the cross-encoder over the fused candidates and truncates to
// RerankTopN. On failure the fused order is preserved, truncated the same.
func (o *Orchestrator) rerank(ctx context.Context, enhanced string, docs []*store.Document) []*store.Document {
	if len(docs) == 0 {
		return docs
	}

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	ranked, err := o.reranker.Rerank(ctx, enhanced, contents, o.config.RerankTopN)
	if err != nil {
		slog.Error("rerank failed, keeping fused order", slog.Any("error", err))
		if len(docs) > o.config.RerankTopN {
			return docs[:o.config.RerankTopN]
		}
		return docs
	}

	reordered := make([]*store.Document, 0, len(ranked))
	for _, r := range ranked {
		reordered = append(reordered, docs[r.Index])
	}
	return reordered
}

func (o *Orchestrator) record(q string, r *Result, elapsed time.Duration, cached bool) {
	if o.metrics == nil {
		return
	}
	o.metrics.Record(telemetry.SearchEvent{
		Query:         q,
		ResultCount:   len(r.InternalDocs) + len(r.WebDocs),
		UsedWebSearch: r.UsedWebSearch,
		CacheHit:      cached,
		Latency:       elapsed,
		Timestamp:     time.Now(),
	})
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
